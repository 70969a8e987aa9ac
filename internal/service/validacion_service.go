package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinica/internal/dto"
	"clinica/internal/infra"
	"clinica/internal/model"
	"clinica/internal/repository"
	"clinica/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DecisionValidar  = "validar"
	DecisionRechazar = "rechazar"
)

// Despachador is the async side of validation: usage counters and e-mail.
// *worker.Dispatcher satisfies it.
type Despachador interface {
	EnqueueUsoDescuento(ctx context.Context, reglaID, compraID uuid.UUID) error
	EnqueueEmail(ctx context.Context, payload worker.EmailJobPayload) error
}

type ValidacionService interface {
	// Validar finalizes a pending purchase. Approval triggers auto-assignment;
	// an assignment failure is recorded on the purchase but never reverts
	// "validada".
	Validar(ctx context.Context, compraID uuid.UUID, req dto.ValidarCompraRequest, revisorID uuid.UUID) (*dto.ValidacionResponse, error)
}

type validacionService struct {
	compras    repository.CompraRepository
	usuarios   repository.UsuarioRepository
	reglas     repository.ReglaDescuentoRepository
	asignacion AsignacionService
	dispatcher Despachador // optional
	metrics    *infra.Metrics
	ahora      func() time.Time
}

func NewValidacionService(
	compras repository.CompraRepository,
	usuarios repository.UsuarioRepository,
	reglas repository.ReglaDescuentoRepository,
	asignacion AsignacionService,
	dispatcher Despachador,
	metrics *infra.Metrics,
) ValidacionService {
	return &validacionService{
		compras:    compras,
		usuarios:   usuarios,
		reglas:     reglas,
		asignacion: asignacion,
		dispatcher: dispatcher,
		metrics:    metrics,
		ahora:      time.Now,
	}
}

// ── Validar ───────────────────────────────────────────────────────────────────
//   1. Purchase must exist and still be "pendiente", checked before the
//      decision so repeat calls always report compra_finalizada
//   2. Conditional transition to validada/rechazada (lost race = finalized)
//   3. On approval: auto-assign and record the outcome on the purchase
//   4. Bump the discount rule usage counter (fire-and-continue)
//   5. Notify the purchaser (fire-and-forget)

func (s *validacionService) Validar(ctx context.Context, compraID uuid.UUID, req dto.ValidarCompraRequest, revisorID uuid.UUID) (*dto.ValidacionResponse, error) {
	compra, err := s.compras.FindByID(ctx, compraID)
	if err != nil {
		return nil, s.fallo(compraID, desdeStore(err, ErrCompraNoEncontrada))
	}
	// A finalized purchase answers the same way whatever the request body.
	if compra.EstadoCompra != model.CompraPendiente {
		return nil, ErrCompraFinalizada
	}

	var motivo *string
	switch req.Decision {
	case DecisionValidar:
	case DecisionRechazar:
		if req.MotivoRechazo == nil || strings.TrimSpace(*req.MotivoRechazo) == "" {
			return nil, invalida("motivo_requerido", "El motivo de rechazo es obligatorio")
		}
		m := strings.TrimSpace(*req.MotivoRechazo)
		motivo = &m
	default:
		return nil, invalida("decision_invalida", "La decisión debe ser 'validar' o 'rechazar'")
	}

	nuevo := model.CompraValidada
	if req.Decision == DecisionRechazar {
		nuevo = model.CompraRechazada
	}
	ok, err := s.compras.Finalizar(ctx, compraID, repository.FinalizacionCompra{
		Estado:        nuevo,
		RevisadoPor:   &revisorID,
		Fecha:         s.ahora(),
		MotivoRechazo: motivo,
	})
	if err != nil {
		return nil, s.fallo(compraID, persistencia(err))
	}
	if !ok {
		return nil, ErrCompraFinalizada
	}
	s.metrics.IncCompra(nuevo)

	resp := &dto.ValidacionResponse{CompraID: compraID.String(), EstadoCompra: nuevo}

	if nuevo == model.CompraRechazada {
		resp.Mensaje = "Compra rechazada"
		log.Info().Str("compra_id", compraID.String()).Str("revisor_id", revisorID.String()).Msg("validacion: purchase rejected")
		s.notificar(ctx, compra, nuevo, motivo)
		return resp, nil
	}

	res, asignErr := s.asignacion.Asignar(ctx, SolicitudAsignacion{
		UsuarioID:   compra.UsuarioID,
		PaqueteID:   compra.PaqueteID,
		Precio:      compra.PrecioFinal,
		Descuento:   compra.DescuentoAplicado,
		FechaInicio: s.ahora(),
		AsignadoPor: &revisorID,
		MetodoPago:  compra.MetodoPago,
		CompraID:    &compra.ID,
		Notas:       compra.Notas,
	})
	if asignErr != nil {
		msg := mensajeDe(asignErr)
		if err := s.compras.RegistrarAsignacion(ctx, compraID, nil, &msg); err != nil {
			log.Error().Err(err).Str("compra_id", compraID.String()).Msg("validacion: failed to record assignment error")
		}
		log.Warn().Err(asignErr).
			Str("compra_id", compraID.String()).
			Msg("validacion: purchase validated but auto-assignment failed; manual assignment required")
		resp.Mensaje = fmt.Sprintf("Compra validada, pero el paquete no pudo asignarse automáticamente: %s. Asígnelo manualmente.", msg)
	} else {
		id := res.UsuarioPaqueteID
		if err := s.compras.RegistrarAsignacion(ctx, compraID, &id, nil); err != nil {
			log.Error().Err(err).
				Str("compra_id", compraID.String()).
				Str("usuario_paquete_id", id.String()).
				Msg("validacion: entitlement created but purchase link not recorded")
		}
		idStr := id.String()
		resp.AsignacionCompletada = true
		resp.UsuarioPaqueteID = &idStr
		resp.Mensaje = "Compra validada y paquete asignado correctamente"
	}

	if compra.ReglaDescuentoID != nil {
		s.incrementarUso(ctx, *compra.ReglaDescuentoID, compraID)
	}
	s.notificar(ctx, compra, nuevo, nil)

	log.Info().
		Str("compra_id", compraID.String()).
		Str("revisor_id", revisorID.String()).
		Bool("asignacion_completada", resp.AsignacionCompletada).
		Msg("validacion: purchase validated")
	return resp, nil
}

func mensajeDe(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Mensaje != "" {
		return se.Mensaje
	}
	return err.Error()
}

func (s *validacionService) fallo(compraID uuid.UUID, err error) error {
	if KindOf(err) == KindPersistence {
		log.Error().Err(err).Str("compra_id", compraID.String()).Msg("validacion: store failure")
	}
	return err
}

// incrementarUso queues the counter bump, or applies it directly when no
// queue is available. Failures are logged only.
func (s *validacionService) incrementarUso(ctx context.Context, reglaID, compraID uuid.UUID) {
	if s.dispatcher != nil {
		err := s.dispatcher.EnqueueUsoDescuento(ctx, reglaID, compraID)
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("regla_id", reglaID.String()).Msg("validacion: enqueue usage increment failed, applying directly")
	}
	if err := s.reglas.IncrementarUso(ctx, reglaID); err != nil {
		log.Warn().Err(err).Str("regla_id", reglaID.String()).Msg("validacion: discount usage not incremented")
	}
}

func (s *validacionService) notificar(ctx context.Context, compra *model.Compra, estado string, motivo *string) {
	if s.dispatcher == nil {
		return
	}
	u, err := s.usuarios.FindByID(ctx, compra.UsuarioID)
	if err != nil || u.Email == nil || *u.Email == "" {
		return
	}
	nombrePaquete := "tu paquete"
	if compra.Paquete != nil {
		nombrePaquete = compra.Paquete.Nombre
	}

	payload := worker.EmailJobPayload{ToEmail: *u.Email}
	if estado == model.CompraRechazada {
		payload.Subject = "Tu compra fue rechazada"
		payload.Body = fmt.Sprintf("Hola %s, tu compra de %s fue rechazada. Motivo: %s", u.Nombre, nombrePaquete, *motivo)
	} else {
		payload.Subject = "Tu compra fue validada"
		payload.Body = fmt.Sprintf("Hola %s, tu compra de %s fue validada.", u.Nombre, nombrePaquete)
	}
	if err := s.dispatcher.EnqueueEmail(ctx, payload); err != nil {
		log.Warn().Err(err).Str("compra_id", compra.ID.String()).Msg("validacion: notification not queued")
	}
}
