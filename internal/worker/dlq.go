package worker

// dlq.go
// Jobs whose processor gave up are parked in dlq:{original_queue} for manual
// inspection. Nothing consumes these lists automatically; each list keeps the
// newest dlqMaxEntries entries.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DLQPrefix     = "dlq:"
	dlqMaxEntries = 1000
)

// EntradaDLQ is what an operator finds in a DLQ list.
type EntradaDLQ struct {
	Cola     string          `json:"cola"`
	Tipo     string          `json:"tipo"`
	Payload  json.RawMessage `json:"payload"`
	Motivo   string          `json:"motivo"`
	Intentos int             `json:"intentos"`
	Fallo    time.Time       `json:"fallo"`
}

func nuevaEntradaDLQ(queue, jobType string, payload json.RawMessage, reason string, attempts int, now time.Time) ([]byte, error) {
	if !json.Valid(payload) {
		// keep malformed jobs readable instead of failing the marshal
		raw, _ := json.Marshal(string(payload))
		payload = raw
	}
	return json.Marshal(EntradaDLQ{
		Cola:     queue,
		Tipo:     jobType,
		Payload:  payload,
		Motivo:   reason,
		Intentos: attempts,
		Fallo:    now.UTC(),
	})
}

// SendToDLQ parks a failed job. Errors are logged only: losing a DLQ entry
// must not take the worker down.
func SendToDLQ(ctx context.Context, rdb *redis.Client, queue, jobType string, payload json.RawMessage, reason string, attempts int) {
	data, err := nuevaEntradaDLQ(queue, jobType, payload, reason, attempts, time.Now())
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("dlq: failed to marshal entry")
		return
	}

	key := DLQPrefix + queue
	_, err = rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, data)
		p.LTrim(ctx, key, 0, dlqMaxEntries-1)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("dlq_key", key).Msg("dlq: push failed")
		return
	}

	log.Warn().
		Str("queue", queue).
		Str("job_type", jobType).
		Str("reason", reason).
		Msg("dlq: job parked")
}

// DLQLengths returns the number of parked entries per source queue.
func DLQLengths(ctx context.Context, rdb *redis.Client) (map[string]int64, error) {
	colas := []string{QueueUsoDescuento, QueueEmail}
	cmds := make([]*redis.IntCmd, len(colas))
	_, err := rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, q := range colas {
			cmds[i] = p.LLen(ctx, DLQPrefix+q)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(colas))
	for i, q := range colas {
		out[q] = cmds[i].Val()
	}
	return out, nil
}
