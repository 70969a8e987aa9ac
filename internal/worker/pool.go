package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueUsoDescuento = "jobs:uso_descuento"
	QueueEmail        = "jobs:email"
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// UsoDescuentoPayload asks the worker to bump a discount rule's usage counter.
type UsoDescuentoPayload struct {
	ReglaID  string `json:"regla_id"`
	CompraID string `json:"compra_id"`
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

func (d *Dispatcher) EnqueueUsoDescuento(ctx context.Context, reglaID, compraID uuid.UUID) error {
	return d.enqueue(ctx, QueueUsoDescuento, "uso_descuento", UsoDescuentoPayload{
		ReglaID:  reglaID.String(),
		CompraID: compraID.String(),
	})
}

func (d *Dispatcher) EnqueueEmail(ctx context.Context, payload EmailJobPayload) error {
	return d.enqueue(ctx, QueueEmail, "email", payload)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	if d == nil || d.rdb == nil {
		return fmt.Errorf("dispatcher: redis no disponible")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{Type: jobType, Payload: data})
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// Processor handles one decoded job payload. A returned error means the job
// is considered lost and goes to the DLQ.
type Processor interface {
	Process(ctx context.Context, raw json.RawMessage) error
}

// WorkerHandlers maps each queue to its processor. Nil handlers drop jobs
// with a warning.
type WorkerHandlers struct {
	UsoDescuento Processor
	Email        Processor
}

func (h WorkerHandlers) forQueue(queue string) Processor {
	switch queue {
	case QueueUsoDescuento:
		return h.UsoDescuento
	case QueueEmail:
		return h.Email
	}
	return nil
}

// StartWorkerPool launches numWorkers goroutines consuming all queues.
// Each goroutine blocks on BRPOP, so idle workers cost nothing.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, numWorkers int, handlers WorkerHandlers) {
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, i, handlers)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, id int, handlers WorkerHandlers) {
	queues := []string{QueueUsoDescuento, QueueEmail}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop; waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue
			}
			if len(result) < 2 {
				continue
			}
			if job, reason := processJob(ctx, handlers, result[0], result[1]); reason != "" {
				SendToDLQ(ctx, rdb, result[0], job.Type, job.Payload, reason, 1)
			}
		}
	}
}

// processJob decodes and runs one job. A non-empty reason means the job
// failed and should be dead-lettered.
func processJob(ctx context.Context, handlers WorkerHandlers, queue, raw string) (Job, string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		return Job{Type: "desconocido", Payload: json.RawMessage(raw)}, "payload inválido: " + err.Error()
	}
	p := handlers.forQueue(queue)
	if p == nil {
		log.Warn().Str("type", job.Type).Str("queue", queue).Msg("no handler for queue; dropping job")
		return job, ""
	}
	log.Debug().Str("type", job.Type).Str("queue", queue).Msg("processing job")
	if err := p.Process(ctx, job.Payload); err != nil {
		return job, err.Error()
	}
	return job, ""
}
