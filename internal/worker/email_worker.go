package worker

// email_worker.go
// Processes QueueEmail: purchase decision notifications to the purchaser.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// EmailJobPayload is the job envelope sent to QueueEmail.
type EmailJobPayload struct {
	ToEmail string `json:"to_email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    string `json:"html,omitempty"`
}

// Enviador is the subset of infra.Mailer the worker needs.
type Enviador interface {
	Configurado() bool
	SendNotificacion(to, subject, text, html string) error
}

type EmailWorker struct {
	mailer Enviador
}

func NewEmailWorker(mailer Enviador) *EmailWorker {
	return &EmailWorker{mailer: mailer}
}

func (w *EmailWorker) Process(_ context.Context, raw json.RawMessage) error {
	var payload EmailJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("email_worker: payload inválido: %w", err)
	}
	if payload.ToEmail == "" {
		log.Warn().Msg("email_worker: empty to_email, skipping")
		return nil
	}
	if w.mailer == nil || !w.mailer.Configurado() {
		log.Warn().Str("to", payload.ToEmail).Msg("email_worker: SMTP not configured, dropping notification")
		return nil
	}

	if err := w.mailer.SendNotificacion(payload.ToEmail, payload.Subject, payload.Body, payload.HTML); err != nil {
		log.Error().Err(err).Str("to", payload.ToEmail).Msg("email_worker: failed to send email")
		return fmt.Errorf("email_worker: %w", err)
	}
	log.Info().Str("to", payload.ToEmail).Msg("email_worker: notification sent")
	return nil
}
