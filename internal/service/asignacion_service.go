package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinica/internal/dto"
	"clinica/internal/infra"
	"clinica/internal/model"
	"clinica/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const metodoAsignacionDirecta = "asignacion_directa"

// SolicitudAsignacion is everything needed to create one entitlement.
// AsignadoPor is the acting administrator (or reviewer on auto-assignment).
type SolicitudAsignacion struct {
	UsuarioID        uuid.UUID
	PaqueteID        uuid.UUID
	Precio           decimal.Decimal
	Descuento        decimal.Decimal
	FechaInicio      time.Time
	AsignadoPor      *uuid.UUID
	MetodoPago       string
	CompraID         *uuid.UUID
	FisioterapeutaID *uuid.UUID
	Notas            *string
}

type ResultadoAsignacion struct {
	UsuarioPaqueteID uuid.UUID
	Estrategia       string
	Mensaje          string
}

type AsignacionService interface {
	Asignar(ctx context.Context, sol SolicitudAsignacion) (*ResultadoAsignacion, error)
	// AsignarMasivo assigns plantilla's package to each user independently.
	// It never fails as a whole; every user gets an outcome in request order.
	AsignarMasivo(ctx context.Context, usuarioIDs []uuid.UUID, plantilla SolicitudAsignacion) dto.AsignacionMasivaResponse
}

// AsignacionConfig tunes the assignment engine. Estrategias overrides the
// default procedure → manual chain.
type AsignacionConfig struct {
	VigenciaMeses  int
	WorkersMasivos int
	Breaker        *infra.CircuitBreaker
	Metrics        *infra.Metrics
	Estrategias    []EstrategiaAsignacion
}

type asignacionService struct {
	usuarios    repository.UsuarioRepository
	paquetes    repository.PaqueteRepository
	ups         repository.UsuarioPaqueteRepository
	estrategias []EstrategiaAsignacion
	workers     int
	metrics     *infra.Metrics
}

func NewAsignacionService(
	usuarios repository.UsuarioRepository,
	paquetes repository.PaqueteRepository,
	ups repository.UsuarioPaqueteRepository,
	cfg AsignacionConfig,
) AsignacionService {
	if cfg.VigenciaMeses <= 0 {
		cfg.VigenciaMeses = 3
	}
	if cfg.WorkersMasivos <= 0 {
		cfg.WorkersMasivos = 4
	}
	estrategias := cfg.Estrategias
	if len(estrategias) == 0 {
		estrategias = []EstrategiaAsignacion{
			NewEstrategiaProcedimiento(ups, cfg.Breaker, cfg.VigenciaMeses),
			NewEstrategiaManual(ups, cfg.VigenciaMeses),
		}
	}
	return &asignacionService{
		usuarios:    usuarios,
		paquetes:    paquetes,
		ups:         ups,
		estrategias: estrategias,
		workers:     cfg.WorkersMasivos,
		metrics:     cfg.Metrics,
	}
}

// ── Asignar ───────────────────────────────────────────────────────────────────
//   1. Validate required fields and price
//   2. Package and user must exist and be active
//   3. Pre-check: no active entitlement for the pair
//   4. Run the strategy chain; fall back only when the procedure itself is
//      unavailable, failed, or its breaker is open

func (s *asignacionService) Asignar(ctx context.Context, sol SolicitudAsignacion) (*ResultadoAsignacion, error) {
	if err := validarSolicitud(sol); err != nil {
		return nil, err
	}

	paquete, err := s.paquetes.FindByID(ctx, sol.PaqueteID)
	if err != nil {
		return nil, s.registrarFallo(sol, desdeStore(err, ErrPaqueteNoEncontrado))
	}
	if !paquete.Activo {
		return nil, s.registrarFallo(sol, ErrPaqueteNoEncontrado)
	}
	usuario, err := s.usuarios.FindByID(ctx, sol.UsuarioID)
	if err != nil {
		return nil, s.registrarFallo(sol, desdeStore(err, ErrUsuarioNoEncontrado))
	}
	if !usuario.Activo {
		return nil, s.registrarFallo(sol, ErrUsuarioNoEncontrado)
	}

	switch _, err := s.ups.FindActivo(ctx, sol.UsuarioID, sol.PaqueteID); {
	case err == nil:
		return nil, s.registrarFallo(sol, ErrDuplicado)
	case !errors.Is(err, repository.ErrNoEncontrado):
		return nil, s.registrarFallo(sol, persistencia(err))
	}

	if sol.MetodoPago == "" {
		sol.MetodoPago = metodoAsignacionDirecta
	}
	sol.FechaInicio = truncDia(sol.FechaInicio)

	var lastErr error
	for i, e := range s.estrategias {
		start := time.Now()
		id, err := e.Asignar(ctx, sol, paquete)
		if err == nil {
			s.metrics.ObserveAsignacion(e.Nombre(), "ok", time.Since(start))
			log.Info().
				Str("usuario_id", sol.UsuarioID.String()).
				Str("paquete_id", sol.PaqueteID.String()).
				Str("usuario_paquete_id", id.String()).
				Str("estrategia", e.Nombre()).
				Msg("asignacion: entitlement created")
			return &ResultadoAsignacion{
				UsuarioPaqueteID: id,
				Estrategia:       e.Nombre(),
				Mensaje:          "Paquete asignado correctamente",
			}, nil
		}
		s.metrics.ObserveAsignacion(e.Nombre(), resultadoMetrica(err), time.Since(start))
		lastErr = err
		if i < len(s.estrategias)-1 && debeRecurrir(err) {
			log.Warn().Err(err).
				Str("usuario_id", sol.UsuarioID.String()).
				Str("estrategia", e.Nombre()).
				Msg("asignacion: strategy unavailable, falling back")
			continue
		}
		break
	}
	return nil, s.registrarFallo(sol, aErrorServicio(lastErr))
}

func validarSolicitud(sol SolicitudAsignacion) error {
	switch {
	case sol.UsuarioID == uuid.Nil:
		return invalida("usuario_requerido", "usuario_id es obligatorio")
	case sol.PaqueteID == uuid.Nil:
		return invalida("paquete_requerido", "paquete_id es obligatorio")
	case sol.FechaInicio.IsZero():
		return invalida("fecha_inicio_requerida", "fecha_inicio es obligatoria")
	case !sol.Precio.IsPositive():
		return invalida("precio_invalido", "El precio final debe ser mayor a cero")
	case sol.Descuento.IsNegative():
		return invalida("descuento_invalido", "El descuento no puede ser negativo")
	}
	return nil
}

// debeRecurrir reports whether the next strategy should be tried.
// Business outcomes, constraint violations, timeouts and transport errors
// are final.
func debeRecurrir(err error) bool {
	return errors.Is(err, repository.ErrProcedimientoNoDisponible) ||
		errors.Is(err, repository.ErrProcedimientoFallido) ||
		errors.Is(err, infra.ErrCircuitOpen)
}

func aErrorServicio(err error) error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return desdeStore(err, nil)
}

func resultadoMetrica(err error) string {
	if k := KindOf(err); k != "" {
		return string(k)
	}
	switch {
	case errors.Is(err, repository.ErrDuplicado):
		return string(KindDuplicate)
	case debeRecurrir(err):
		return "no_disponible"
	default:
		return string(KindPersistence)
	}
}

// registrarFallo logs err at the level its kind deserves and returns it.
func (s *asignacionService) registrarFallo(sol SolicitudAsignacion, err error) error {
	ev := log.Info()
	if KindOf(err) == KindPersistence {
		ev = log.Error()
	}
	ev.Err(err).
		Str("usuario_id", sol.UsuarioID.String()).
		Str("paquete_id", sol.PaqueteID.String()).
		Msg("asignacion: not assigned")
	return err
}

// ── AsignarMasivo ─────────────────────────────────────────────────────────────

func (s *asignacionService) AsignarMasivo(ctx context.Context, usuarioIDs []uuid.UUID, plantilla SolicitudAsignacion) dto.AsignacionMasivaResponse {
	detalle := make([]dto.ResultadoUsuario, len(usuarioIDs))
	vistos := make(map[uuid.UUID]bool, len(usuarioIDs))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, uid := range usuarioIDs {
		if vistos[uid] {
			detalle[i] = resultadoFallido(uid, invalida("usuario_repetido", "Usuario repetido en la solicitud"))
			continue
		}
		vistos[uid] = true

		i, uid := i, uid
		sol := plantilla
		sol.UsuarioID = uid
		g.Go(func() error {
			res, err := s.Asignar(ctx, sol)
			if err != nil {
				detalle[i] = resultadoFallido(uid, err)
				return nil
			}
			id := res.UsuarioPaqueteID.String()
			detalle[i] = dto.ResultadoUsuario{
				UsuarioID:        uid.String(),
				Exito:            true,
				UsuarioPaqueteID: &id,
				Mensaje:          res.Mensaje,
			}
			return nil
		})
	}
	_ = g.Wait()

	return resumir(detalle)
}

func resultadoFallido(uid uuid.UUID, err error) dto.ResultadoUsuario {
	r := dto.ResultadoUsuario{UsuarioID: uid.String(), Mensaje: err.Error()}
	var se *Error
	if errors.As(err, &se) {
		r.Codigo = se.Codigo
		if r.Codigo == "" {
			r.Codigo = string(se.Kind)
		}
		r.Mensaje = se.Mensaje
	}
	return r
}

func resumir(detalle []dto.ResultadoUsuario) dto.AsignacionMasivaResponse {
	out := dto.AsignacionMasivaResponse{Detalle: detalle}
	for _, r := range detalle {
		if r.Exito {
			out.Exitosos++
		} else {
			out.Fallidos++
		}
	}
	if out.Exitosos > 0 && out.Fallidos > 0 {
		out.Codigo = string(KindPartialFailure)
	}
	return out
}

// FalloParcial returns a fallo_parcial error when a bulk operation had both
// successes and failures, and nil otherwise. The call itself still succeeded.
func FalloParcial(r dto.AsignacionMasivaResponse) error {
	if r.Exitosos == 0 || r.Fallidos == 0 {
		return nil
	}
	return &Error{
		Kind:    KindPartialFailure,
		Codigo:  string(KindPartialFailure),
		Mensaje: fmt.Sprintf("%d asignaciones exitosas, %d fallidas", r.Exitosos, r.Fallidos),
	}
}

// ── Estrategias ───────────────────────────────────────────────────────────────

// EstrategiaAsignacion creates the entitlement row(s) for a validated
// request. Implementations return service errors for business outcomes and
// classified repository errors otherwise.
type EstrategiaAsignacion interface {
	Nombre() string
	Asignar(ctx context.Context, sol SolicitudAsignacion, paquete *model.Paquete) (uuid.UUID, error)
}

// estrategiaProcedimiento runs asignar_paquete_usuario: checks, insert and
// per-session rows in a single server-side transaction.
type estrategiaProcedimiento struct {
	repo          repository.UsuarioPaqueteRepository
	cb            *infra.CircuitBreaker
	vigenciaMeses int
}

// NewEstrategiaProcedimiento builds the procedure strategy. A nil breaker
// gets a default one that only trips on procedure unavailability/failure.
func NewEstrategiaProcedimiento(repo repository.UsuarioPaqueteRepository, cb *infra.CircuitBreaker, vigenciaMeses int) EstrategiaAsignacion {
	if cb == nil {
		cfg := infra.DefaultCBConfig()
		cfg.IsFailure = EsFalloProcedimiento
		cb = infra.NewCircuitBreaker(cfg)
	}
	return &estrategiaProcedimiento{repo: repo, cb: cb, vigenciaMeses: vigenciaMeses}
}

// EsFalloProcedimiento is the breaker's failure predicate.
func EsFalloProcedimiento(err error) bool {
	return errors.Is(err, repository.ErrProcedimientoNoDisponible) ||
		errors.Is(err, repository.ErrProcedimientoFallido)
}

func (e *estrategiaProcedimiento) Nombre() string { return "procedimiento" }

func (e *estrategiaProcedimiento) Asignar(ctx context.Context, sol SolicitudAsignacion, _ *model.Paquete) (uuid.UUID, error) {
	var res *repository.ResultadoProcedimiento
	err := e.cb.Execute(func() error {
		r, err := e.repo.AsignarPorProcedimiento(ctx, repository.ParametrosAsignacion{
			UsuarioID:        sol.UsuarioID,
			PaqueteID:        sol.PaqueteID,
			Precio:           sol.Precio,
			Descuento:        sol.Descuento,
			FechaInicio:      sol.FechaInicio,
			AsignadoPor:      sol.AsignadoPor,
			MetodoPago:       sol.MetodoPago,
			CompraID:         sol.CompraID,
			FisioterapeutaID: sol.FisioterapeutaID,
			Notas:            sol.Notas,
			VigenciaMeses:    e.vigenciaMeses,
		})
		if err != nil {
			return err
		}
		if !r.Exito && !codigoProcedimientoConocido(r.Codigo) {
			return fmt.Errorf("%w: codigo %q: %s", repository.ErrProcedimientoFallido, r.Codigo, r.Mensaje)
		}
		res = r
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	switch res.Codigo {
	case repository.ProcOK:
		if res.UsuarioPaqueteID == nil {
			return uuid.Nil, fmt.Errorf("%w: éxito sin usuario_paquete_id", repository.ErrProcedimientoFallido)
		}
		return *res.UsuarioPaqueteID, nil
	case repository.ProcDuplicado:
		return uuid.Nil, ErrDuplicado
	case repository.ProcPaqueteNoEncontrado:
		return uuid.Nil, ErrPaqueteNoEncontrado
	default:
		return uuid.Nil, ErrUsuarioNoEncontrado
	}
}

func codigoProcedimientoConocido(c string) bool {
	switch c {
	case repository.ProcDuplicado, repository.ProcPaqueteNoEncontrado, repository.ProcUsuarioNoEncontrado:
		return true
	}
	return false
}

// estrategiaManual inserts the entitlement row directly, then the
// per-session tracking rows best-effort.
type estrategiaManual struct {
	repo          repository.UsuarioPaqueteRepository
	vigenciaMeses int
	ahora         func() time.Time
}

func NewEstrategiaManual(repo repository.UsuarioPaqueteRepository, vigenciaMeses int) EstrategiaAsignacion {
	return &estrategiaManual{repo: repo, vigenciaMeses: vigenciaMeses, ahora: time.Now}
}

func (e *estrategiaManual) Nombre() string { return "manual" }

func (e *estrategiaManual) Asignar(ctx context.Context, sol SolicitudAsignacion, paquete *model.Paquete) (uuid.UUID, error) {
	inicio := truncDia(sol.FechaInicio)
	up := &model.UsuarioPaquete{
		ID:                 uuid.New(),
		UsuarioID:          sol.UsuarioID,
		PaqueteID:          sol.PaqueteID,
		FechaInicio:        inicio,
		FechaFin:           sumarMeses(inicio, e.vigenciaMeses),
		FechaCompra:        e.ahora(),
		PrecioPagado:       sol.Precio,
		DescuentoAplicado:  sol.Descuento,
		MetodoPago:         sol.MetodoPago,
		Estado:             model.UsuarioPaqueteActivo,
		SesionesTotales:    paquete.NumeroSesiones,
		SesionesUtilizadas: 0,
		FisioterapeutaID:   sol.FisioterapeutaID,
		CompraID:           sol.CompraID,
		AsignadoPor:        sol.AsignadoPor,
		Notas:              sol.Notas,
	}
	if err := e.repo.Create(ctx, up); err != nil {
		if errors.Is(err, repository.ErrDuplicado) {
			return uuid.Nil, conCausa(ErrDuplicado, err)
		}
		return uuid.Nil, err
	}

	rows := make([]model.SeguimientoSesion, paquete.NumeroSesiones)
	for i := range rows {
		rows[i] = model.SeguimientoSesion{
			ID:               uuid.New(),
			UsuarioPaqueteID: up.ID,
			NumeroSesion:     i + 1,
			Estado:           "pendiente",
		}
	}
	if err := e.repo.CreateSeguimientos(ctx, rows); err != nil {
		log.Warn().Err(err).
			Str("usuario_paquete_id", up.ID.String()).
			Msg("asignacion: session tracking rows not created")
	}
	return up.ID, nil
}

// sumarMeses adds n calendar months, clamping to the last day of the target
// month (Jan 31 + 1 month = Feb 28/29), the way Postgres interval math does.
func sumarMeses(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	primero := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	ultimo := primero.AddDate(0, 1, -1).Day()
	if d > ultimo {
		d = ultimo
	}
	return time.Date(primero.Year(), primero.Month(), d, 0, 0, 0, 0, t.Location())
}
