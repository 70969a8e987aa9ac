package service

import (
	"context"
	"errors"
	"time"

	"clinica/internal/dto"
	"clinica/internal/model"
	"clinica/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type UsuarioPaqueteService interface {
	Obtener(ctx context.Context, id uuid.UUID) (*dto.UsuarioPaqueteResponse, error)
	ListarPorUsuario(ctx context.Context, usuarioID uuid.UUID) ([]dto.UsuarioPaqueteResponse, error)
	// CambiarEstado is the only way an entitlement leaves "activo"; reaching
	// 100% consumption does not change the state.
	CambiarEstado(ctx context.Context, id uuid.UUID, nuevo string, actorID uuid.UUID) (*dto.UsuarioPaqueteResponse, error)
	// RegistrarSesion consumes one session of an active, in-window entitlement.
	RegistrarSesion(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*dto.UsuarioPaqueteResponse, error)
}

type usuarioPaqueteService struct {
	ups   repository.UsuarioPaqueteRepository
	ahora func() time.Time
}

func NewUsuarioPaqueteService(ups repository.UsuarioPaqueteRepository) UsuarioPaqueteService {
	return &usuarioPaqueteService{ups: ups, ahora: time.Now}
}

// transiciones lists the allowed explicit state changes. completado and
// cancelado are terminal.
var transiciones = map[string][]string{
	model.UsuarioPaqueteActivo:  {model.UsuarioPaquetePausado, model.UsuarioPaqueteCompletado, model.UsuarioPaqueteCancelado},
	model.UsuarioPaquetePausado: {model.UsuarioPaqueteActivo, model.UsuarioPaqueteCompletado, model.UsuarioPaqueteCancelado},
}

func transicionPermitida(desde, hacia string) bool {
	for _, e := range transiciones[desde] {
		if e == hacia {
			return true
		}
	}
	return false
}

func (s *usuarioPaqueteService) Obtener(ctx context.Context, id uuid.UUID) (*dto.UsuarioPaqueteResponse, error) {
	up, err := s.ups.FindByID(ctx, id)
	if err != nil {
		return nil, desdeStore(err, ErrUsuarioPaqueteNoEncontrado)
	}
	return usuarioPaqueteToResponse(up, s.ahora()), nil
}

func (s *usuarioPaqueteService) ListarPorUsuario(ctx context.Context, usuarioID uuid.UUID) ([]dto.UsuarioPaqueteResponse, error) {
	ups, err := s.ups.ListByUsuario(ctx, usuarioID)
	if err != nil {
		return nil, persistencia(err)
	}
	hoy := s.ahora()
	out := make([]dto.UsuarioPaqueteResponse, 0, len(ups))
	for i := range ups {
		out = append(out, *usuarioPaqueteToResponse(&ups[i], hoy))
	}
	return out, nil
}

func (s *usuarioPaqueteService) CambiarEstado(ctx context.Context, id uuid.UUID, nuevo string, actorID uuid.UUID) (*dto.UsuarioPaqueteResponse, error) {
	up, err := s.ups.FindByID(ctx, id)
	if err != nil {
		return nil, desdeStore(err, ErrUsuarioPaqueteNoEncontrado)
	}
	if !transicionPermitida(up.Estado, nuevo) {
		return nil, invalida("transicion_invalida", "No se puede pasar de '"+up.Estado+"' a '"+nuevo+"'")
	}

	// Reactivating must not create a second active row for the pair.
	if nuevo == model.UsuarioPaqueteActivo {
		switch otro, err := s.ups.FindActivo(ctx, up.UsuarioID, up.PaqueteID); {
		case err == nil && otro.ID != up.ID:
			return nil, ErrDuplicado
		case err != nil && !errors.Is(err, repository.ErrNoEncontrado):
			return nil, persistencia(err)
		}
	}

	ok, err := s.ups.UpdateEstado(ctx, id, []string{up.Estado}, nuevo)
	if err != nil {
		// A unique violation here means another row was activated concurrently.
		e := desdeStore(err, ErrUsuarioPaqueteNoEncontrado)
		if KindOf(e) == KindPersistence {
			log.Error().Err(err).Str("usuario_paquete_id", id.String()).Msg("usuario_paquete: state change failed")
		}
		return nil, e
	}
	if !ok {
		return nil, invalida("estado_modificado", "El estado del paquete cambió mientras se procesaba, reintente")
	}

	log.Info().
		Str("usuario_paquete_id", id.String()).
		Str("desde", up.Estado).
		Str("hacia", nuevo).
		Str("actor_id", actorID.String()).
		Msg("usuario_paquete: state changed")
	up.Estado = nuevo
	return usuarioPaqueteToResponse(up, s.ahora()), nil
}

func (s *usuarioPaqueteService) RegistrarSesion(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*dto.UsuarioPaqueteResponse, error) {
	up, err := s.ups.FindByID(ctx, id)
	if err != nil {
		return nil, desdeStore(err, ErrUsuarioPaqueteNoEncontrado)
	}
	ahora := s.ahora()
	if up.Estado != model.UsuarioPaqueteActivo {
		return nil, invalida("paquete_no_activo", "El paquete no está activo")
	}
	switch ProyectarEstado(up.FechaInicio, up.FechaFin, ahora).Estado {
	case TemporalPendiente:
		return nil, invalida("paquete_no_iniciado", "El paquete aún no está vigente")
	case TemporalVencida:
		return nil, invalida("paquete_vencido", "El paquete está vencido")
	}
	if up.SesionesUtilizadas >= up.SesionesTotales {
		return nil, invalida("sin_sesiones", "No quedan sesiones disponibles")
	}

	ok, err := s.ups.ConsumirSesion(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("usuario_paquete_id", id.String()).Msg("usuario_paquete: session not recorded")
		return nil, persistencia(err)
	}
	if !ok {
		// Another request consumed the last session or changed the state.
		return nil, invalida("sin_sesiones", "No quedan sesiones disponibles")
	}
	up.SesionesUtilizadas++

	if err := s.ups.CompletarSiguienteSeguimiento(ctx, id, ahora); err != nil {
		log.Warn().Err(err).Str("usuario_paquete_id", id.String()).Msg("usuario_paquete: session tracking row not updated")
	}

	log.Info().
		Str("usuario_paquete_id", id.String()).
		Int("sesiones_utilizadas", up.SesionesUtilizadas).
		Int("sesiones_totales", up.SesionesTotales).
		Str("actor_id", actorID.String()).
		Msg("usuario_paquete: session consumed")
	return usuarioPaqueteToResponse(up, ahora), nil
}

func usuarioPaqueteToResponse(up *model.UsuarioPaquete, hoy time.Time) *dto.UsuarioPaqueteResponse {
	p := ProyectarEstado(up.FechaInicio, up.FechaFin, hoy)
	restantes := up.SesionesTotales - up.SesionesUtilizadas
	if restantes < 0 {
		restantes = 0
	}
	resp := &dto.UsuarioPaqueteResponse{
		ID:                 up.ID.String(),
		UsuarioID:          up.UsuarioID.String(),
		PaqueteID:          up.PaqueteID.String(),
		FechaInicio:        up.FechaInicio.Format("2006-01-02"),
		FechaFin:           up.FechaFin.Format("2006-01-02"),
		PrecioPagado:       up.PrecioPagado,
		DescuentoAplicado:  up.DescuentoAplicado,
		MetodoPago:         up.MetodoPago,
		Estado:             up.Estado,
		SesionesTotales:    up.SesionesTotales,
		SesionesUtilizadas: up.SesionesUtilizadas,
		SesionesRestantes:  restantes,
		PorcentajeConsumo:  PorcentajeConsumo(up.SesionesUtilizadas, up.SesionesTotales),
		EstadoTemporal:     p.Estado,
		DiasRestantes:      p.DiasRestantes,
	}
	if up.Paquete != nil {
		resp.Paquete = up.Paquete.Nombre
	}
	if up.FisioterapeutaID != nil {
		s := up.FisioterapeutaID.String()
		resp.FisioterapeutaID = &s
	}
	if up.CompraID != nil {
		s := up.CompraID.String()
		resp.CompraID = &s
	}
	return resp
}
