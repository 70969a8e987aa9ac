package worker

// uso_descuento_worker.go
// Processes QueueUsoDescuento: bumps reglas_descuento.usos_actuales once per
// validated purchase that used a rule. Transient store errors are retried
// with exponential backoff; exhausted jobs go to the DLQ.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clinica/internal/repository"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxUsoDescuentoAttempts = 3

// retryBaseDelay is the first backoff step; tests shrink it.
var retryBaseDelay = time.Second

type UsoDescuentoWorker struct {
	reglas repository.ReglaDescuentoRepository
}

func NewUsoDescuentoWorker(reglas repository.ReglaDescuentoRepository) *UsoDescuentoWorker {
	return &UsoDescuentoWorker{reglas: reglas}
}

func (w *UsoDescuentoWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload UsoDescuentoPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("uso_descuento_worker: payload inválido: %w", err)
	}
	reglaID, err := uuid.Parse(payload.ReglaID)
	if err != nil {
		return fmt.Errorf("uso_descuento_worker: regla_id inválido %q", payload.ReglaID)
	}

	err = withRetry(ctx, maxUsoDescuentoAttempts, func(attempt int) error {
		err := w.reglas.IncrementarUso(ctx, reglaID)
		if err != nil && !errors.Is(err, repository.ErrNoEncontrado) {
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("regla_id", payload.ReglaID).
				Msg("uso_descuento_worker: increment failed, retrying")
		}
		return err
	}, func(err error) bool { return !errors.Is(err, repository.ErrNoEncontrado) })

	switch {
	case err == nil:
		log.Info().Str("regla_id", payload.ReglaID).Str("compra_id", payload.CompraID).
			Msg("uso_descuento_worker: usage counter incremented")
		return nil
	case errors.Is(err, repository.ErrNoEncontrado):
		// Rule deleted since the purchase was validated; nothing to count.
		log.Warn().Str("regla_id", payload.ReglaID).Msg("uso_descuento_worker: rule no longer exists")
		return nil
	default:
		return fmt.Errorf("uso_descuento_worker: %d attempts failed: %w", maxUsoDescuentoAttempts, err)
	}
}

// withRetry calls fn up to maxAttempts times with exponential backoff
// starting at retryBaseDelay. retryable decides whether an error is worth
// another attempt; nil means every error is. Returns the last error, or the
// context error if ctx ends first.
func withRetry(ctx context.Context, maxAttempts int, fn func(attempt int) error, retryable func(error) bool) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = retryBaseDelay
	exp.RandomizationFactor = 0
	exp.Multiplier = 2
	exp.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		err := fn(attempt)
		attempt++
		if err != nil && retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(exp, uint64(maxAttempts-1)), ctx))
}
