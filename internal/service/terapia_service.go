package service

import (
	"context"
	"time"

	"clinica/internal/dto"
	"clinica/internal/model"
	"clinica/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type TerapiaService interface {
	// AsignarTerapia creates one tracking unit per valid, active user. Invalid
	// users are reported individually and do not block the others.
	AsignarTerapia(ctx context.Context, req dto.AsignarTerapiaRequest, asignadoPor uuid.UUID) (*dto.AsignacionTerapiaResponse, error)
	ActualizarProgreso(ctx context.Context, progresoID uuid.UUID, req dto.ActualizarProgresoRequest) (*dto.ProgresoResponse, error)
	Abandonar(ctx context.Context, progresoID uuid.UUID) (*dto.ProgresoResponse, error)
	ListarPorAsignacion(ctx context.Context, asignacionID uuid.UUID) ([]dto.ProgresoResponse, error)
	ListarPorUsuario(ctx context.Context, usuarioID uuid.UUID) ([]dto.ProgresoResponse, error)
}

type terapiaService struct {
	terapias repository.TerapiaRepository
	usuarios repository.UsuarioRepository
	ahora    func() time.Time
}

func NewTerapiaService(terapias repository.TerapiaRepository, usuarios repository.UsuarioRepository) TerapiaService {
	return &terapiaService{terapias: terapias, usuarios: usuarios, ahora: time.Now}
}

// ── AsignarTerapia ────────────────────────────────────────────────────────────

func (s *terapiaService) AsignarTerapia(ctx context.Context, req dto.AsignarTerapiaRequest, asignadoPor uuid.UUID) (*dto.AsignacionTerapiaResponse, error) {
	terapiaID, err := uuid.Parse(req.TerapiaID)
	if err != nil {
		return nil, invalida("terapia_id_invalido", "terapia_id inválido")
	}
	inicio, err := time.Parse("2006-01-02", req.FechaInicio)
	if err != nil {
		return nil, invalida("fecha_inicio_invalida", "fecha_inicio debe tener formato AAAA-MM-DD")
	}
	fin, err := time.Parse("2006-01-02", req.FechaFin)
	if err != nil {
		return nil, invalida("fecha_fin_invalida", "fecha_fin debe tener formato AAAA-MM-DD")
	}
	if fin.Before(inicio) {
		return nil, invalida("fechas_invalidas", "fecha_fin no puede ser anterior a fecha_inicio")
	}
	if req.SesionesProgramadas < 0 {
		return nil, invalida("sesiones_invalidas", "sesiones_programadas no puede ser negativo")
	}

	detalle := make([]dto.ResultadoUsuario, len(req.UsuarioIDs))
	ids := make([]uuid.UUID, len(req.UsuarioIDs))
	candidatos := make([]uuid.UUID, 0, len(req.UsuarioIDs))
	vistos := make(map[uuid.UUID]bool, len(req.UsuarioIDs))
	for i, raw := range req.UsuarioIDs {
		uid, err := uuid.Parse(raw)
		if err != nil || uid == uuid.Nil {
			detalle[i] = dto.ResultadoUsuario{UsuarioID: raw, Codigo: "usuario_id_invalido", Mensaje: "usuario_id inválido"}
			continue
		}
		if vistos[uid] {
			detalle[i] = resultadoFallido(uid, invalida("usuario_repetido", "Usuario repetido en la solicitud"))
			continue
		}
		vistos[uid] = true
		ids[i] = uid
		candidatos = append(candidatos, uid)
	}

	activos := make(map[uuid.UUID]bool, len(candidatos))
	if len(candidatos) > 0 {
		usuarios, err := s.usuarios.FindActivosByIDs(ctx, candidatos)
		if err != nil {
			log.Error().Err(err).Msg("terapia: failed to load users")
			return nil, persistencia(err)
		}
		for _, u := range usuarios {
			if u.Activo {
				activos[u.ID] = true
			}
		}
	}

	asignacion := &model.AsignacionTerapia{
		ID:                    uuid.New(),
		TerapiaID:             terapiaID,
		AsignadoPor:           asignadoPor,
		FechaInicioProgramada: inicio,
		FechaFinProgramada:    fin,
		SesionesProgramadas:   req.SesionesProgramadas,
		Notas:                 req.Notas,
	}
	var unidades []model.ProgresoTerapia
	unidadPorIndice := make(map[int]uuid.UUID)
	for i, uid := range ids {
		if detalle[i].UsuarioID != "" {
			continue
		}
		if !activos[uid] {
			detalle[i] = resultadoFallido(uid, ErrUsuarioNoEncontrado)
			continue
		}
		u := model.ProgresoTerapia{
			ID:                    uuid.New(),
			AsignacionID:          asignacion.ID,
			UsuarioID:             uid,
			TerapiaID:             terapiaID,
			Progreso:              0,
			EstadoIndividual:      model.ProgresoPendiente,
			FechaInicioProgramada: inicio,
			FechaFinProgramada:    fin,
			SesionesProgramadas:   req.SesionesProgramadas,
		}
		unidades = append(unidades, u)
		unidadPorIndice[i] = u.ID
	}

	resp := &dto.AsignacionTerapiaResponse{}
	if len(unidades) > 0 {
		if err := s.terapias.CreateAsignacion(ctx, asignacion, unidades); err != nil {
			log.Error().Err(err).Str("terapia_id", terapiaID.String()).Msg("terapia: assignment insert failed")
			return nil, persistencia(err)
		}
		resp.AsignacionID = asignacion.ID.String()
		for i, pid := range unidadPorIndice {
			p := pid.String()
			detalle[i] = dto.ResultadoUsuario{
				UsuarioID:  ids[i].String(),
				Exito:      true,
				ProgresoID: &p,
				Mensaje:    "Terapia asignada",
			}
		}
	}

	resp.AsignacionMasivaResponse = resumir(detalle)
	log.Info().
		Str("terapia_id", terapiaID.String()).
		Int("exitosos", resp.Exitosos).
		Int("fallidos", resp.Fallidos).
		Msg("terapia: bulk assignment finished")
	return resp, nil
}

// ── Progreso ──────────────────────────────────────────────────────────────────

func (s *terapiaService) ActualizarProgreso(ctx context.Context, progresoID uuid.UUID, req dto.ActualizarProgresoRequest) (*dto.ProgresoResponse, error) {
	if req.Progreso < 0 || req.Progreso > 100 {
		return nil, invalida("progreso_invalido", "El progreso debe estar entre 0 y 100")
	}
	if req.SesionesCompletadas != nil && *req.SesionesCompletadas < 0 {
		return nil, invalida("sesiones_invalidas", "sesiones_completadas no puede ser negativo")
	}

	p, err := s.terapias.FindProgresoByID(ctx, progresoID)
	if err != nil {
		return nil, desdeStore(err, ErrProgresoNoEncontrado)
	}
	if p.EstadoIndividual == model.ProgresoAbandonada {
		return nil, invalida("progreso_abandonado", "La terapia fue abandonada y no admite actualizaciones")
	}

	ahora := s.ahora()
	aplicarProgreso(p, req.Progreso, ahora)
	if req.SesionesCompletadas != nil {
		p.SesionesCompletadas = *req.SesionesCompletadas
	}
	p.Adherencia = PorcentajeConsumo(p.SesionesCompletadas, p.SesionesProgramadas)
	if req.Notas != nil {
		p.Notas = req.Notas
	}

	ok, err := s.terapias.UpdateProgreso(ctx, p)
	if err != nil {
		log.Error().Err(err).Str("progreso_id", progresoID.String()).Msg("terapia: progress update failed")
		return nil, persistencia(err)
	}
	if !ok {
		return nil, invalida("progreso_abandonado", "La terapia fue abandonada y no admite actualizaciones")
	}
	return progresoToResponse(p, ahora), nil
}

// aplicarProgreso sets progreso, stamps the actual start/end dates and
// derives estado_individual.
func aplicarProgreso(p *model.ProgresoTerapia, progreso int, ahora time.Time) {
	p.Progreso = progreso
	if progreso > 0 && p.FechaInicioReal == nil {
		t := ahora
		p.FechaInicioReal = &t
	}
	switch {
	case progreso == 100:
		if p.FechaFinReal == nil {
			t := ahora
			p.FechaFinReal = &t
		}
		p.EstadoIndividual = model.ProgresoCompletada
	case progreso > 0:
		p.FechaFinReal = nil
		p.EstadoIndividual = model.ProgresoEnProgreso
	default:
		p.FechaFinReal = nil
		if p.FechaInicioReal != nil {
			p.EstadoIndividual = model.ProgresoEnProgreso
		} else {
			p.EstadoIndividual = model.ProgresoPendiente
		}
	}
}

func (s *terapiaService) Abandonar(ctx context.Context, progresoID uuid.UUID) (*dto.ProgresoResponse, error) {
	p, err := s.terapias.FindProgresoByID(ctx, progresoID)
	if err != nil {
		return nil, desdeStore(err, ErrProgresoNoEncontrado)
	}
	if err := noAbandonable(p); err != nil {
		return nil, err
	}
	ok, err := s.terapias.AbandonarProgreso(ctx, progresoID)
	if err != nil {
		log.Error().Err(err).Str("progreso_id", progresoID.String()).Msg("terapia: abandon failed")
		return nil, persistencia(err)
	}
	if !ok {
		// finalized by a concurrent request; report its current state
		if p, err = s.terapias.FindProgresoByID(ctx, progresoID); err != nil {
			return nil, desdeStore(err, ErrProgresoNoEncontrado)
		}
		if err := noAbandonable(p); err != nil {
			return nil, err
		}
		return nil, ErrProgresoNoEncontrado
	}
	p.EstadoIndividual = model.ProgresoAbandonada
	log.Info().Str("progreso_id", progresoID.String()).Msg("terapia: unit abandoned")
	return progresoToResponse(p, s.ahora()), nil
}

func noAbandonable(p *model.ProgresoTerapia) error {
	switch p.EstadoIndividual {
	case model.ProgresoAbandonada:
		return invalida("progreso_abandonado", "La terapia ya fue abandonada")
	case model.ProgresoCompletada:
		return invalida("progreso_completado", "La terapia ya fue completada")
	}
	return nil
}

func (s *terapiaService) ListarPorAsignacion(ctx context.Context, asignacionID uuid.UUID) ([]dto.ProgresoResponse, error) {
	ps, err := s.terapias.ListProgresoByAsignacion(ctx, asignacionID)
	if err != nil {
		return nil, persistencia(err)
	}
	return s.aResponses(ps), nil
}

func (s *terapiaService) ListarPorUsuario(ctx context.Context, usuarioID uuid.UUID) ([]dto.ProgresoResponse, error) {
	ps, err := s.terapias.ListProgresoByUsuario(ctx, usuarioID)
	if err != nil {
		return nil, persistencia(err)
	}
	return s.aResponses(ps), nil
}

func (s *terapiaService) aResponses(ps []model.ProgresoTerapia) []dto.ProgresoResponse {
	hoy := s.ahora()
	out := make([]dto.ProgresoResponse, 0, len(ps))
	for i := range ps {
		out = append(out, *progresoToResponse(&ps[i], hoy))
	}
	return out
}

func progresoToResponse(p *model.ProgresoTerapia, hoy time.Time) *dto.ProgresoResponse {
	proy := ProyectarEstado(p.FechaInicioProgramada, p.FechaFinProgramada, hoy)
	resp := &dto.ProgresoResponse{
		ID:                    p.ID.String(),
		AsignacionID:          p.AsignacionID.String(),
		UsuarioID:             p.UsuarioID.String(),
		TerapiaID:             p.TerapiaID.String(),
		Progreso:              p.Progreso,
		EstadoIndividual:      p.EstadoIndividual,
		FechaInicioProgramada: p.FechaInicioProgramada.Format("2006-01-02"),
		FechaFinProgramada:    p.FechaFinProgramada.Format("2006-01-02"),
		SesionesCompletadas:   p.SesionesCompletadas,
		SesionesProgramadas:   p.SesionesProgramadas,
		Adherencia:            p.Adherencia,
		EstadoTemporal:        proy.Estado,
		DiasRestantes:         proy.DiasRestantes,
	}
	if p.FechaInicioReal != nil {
		s := p.FechaInicioReal.Format(time.RFC3339)
		resp.FechaInicioReal = &s
	}
	if p.FechaFinReal != nil {
		s := p.FechaFinReal.Format(time.RFC3339)
		resp.FechaFinReal = &s
	}
	return resp
}
