package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"clinica/internal/dto"
	"clinica/internal/model"
	"clinica/internal/repository"
	"clinica/internal/worker"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ── In-memory store ───────────────────────────────────────────────────────────
// One shared store behind thin per-repository views. The usuario_paquetes
// "table" enforces the single-active-row rule the way the partial unique
// index does in Postgres.

type fakeStore struct {
	mu sync.Mutex

	usuarios     map[uuid.UUID]*model.Usuario
	paquetes     map[uuid.UUID]*model.Paquete
	reglas       []model.ReglaDescuento
	reglasErr    error
	incrementErr error
	usos         map[uuid.UUID]int

	compras       map[uuid.UUID]*model.Compra
	finalizarErr  error
	perderCarrera bool // Finalizar reports the row was no longer pending

	ups             map[uuid.UUID]*model.UsuarioPaquete
	createUpErr     error
	seguimientos    []model.SeguimientoSesion
	seguimientosErr error
	procErr         error
	procLlamadas    int
	manualCreates   int

	asignaciones map[uuid.UUID]*model.AsignacionTerapia
	progresos    map[uuid.UUID]*model.ProgresoTerapia
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		usuarios:     make(map[uuid.UUID]*model.Usuario),
		paquetes:     make(map[uuid.UUID]*model.Paquete),
		usos:         make(map[uuid.UUID]int),
		compras:      make(map[uuid.UUID]*model.Compra),
		ups:          make(map[uuid.UUID]*model.UsuarioPaquete),
		asignaciones: make(map[uuid.UUID]*model.AsignacionTerapia),
		progresos:    make(map[uuid.UUID]*model.ProgresoTerapia),
	}
}

func noEncontrado(what string) error {
	return fmt.Errorf("%w: %s", repository.ErrNoEncontrado, what)
}

func (s *fakeStore) addUsuario(nombre string) *model.Usuario {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := nombre + "@clinica.test"
	u := &model.Usuario{ID: uuid.New(), Username: nombre, Nombre: nombre, Email: &email, Rol: "usuario", Activo: true}
	s.usuarios[u.ID] = u
	return u
}

func (s *fakeStore) addPaquete(precio string, sesiones int) *model.Paquete {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &model.Paquete{
		ID:             uuid.New(),
		Nombre:         "Paquete " + precio,
		Precio:         decimal.RequireFromString(precio),
		Descuento:      decimal.Zero,
		NumeroSesiones: sesiones,
		Tipo:           "terapia",
		Activo:         true,
	}
	s.paquetes[p.ID] = p
	return p
}

func (s *fakeStore) addRegla(alcance string, objetivo *uuid.UUID, valor string, desde, hasta time.Time) *model.ReglaDescuento {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := model.ReglaDescuento{
		ID:          uuid.New(),
		Nombre:      "Regla " + valor,
		Alcance:     alcance,
		ObjetivoID:  objetivo,
		Valor:       decimal.RequireFromString(valor),
		FechaInicio: desde,
		FechaFin:    hasta,
		Activo:      true,
	}
	s.reglas = append(s.reglas, r)
	return &s.reglas[len(s.reglas)-1]
}

func (s *fakeStore) addCompra(u *model.Usuario, p *model.Paquete, precioFinal string) *model.Compra {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &model.Compra{
		ID:           uuid.New(),
		UsuarioID:    u.ID,
		PaqueteID:    p.ID,
		PrecioBase:   p.Precio,
		PrecioFinal:  decimal.RequireFromString(precioFinal),
		MetodoPago:   "transferencia",
		EstadoCompra: model.CompraPendiente,
		CreatedAt:    time.Now(),
	}
	c.DescuentoAplicado = c.PrecioBase.Sub(c.PrecioFinal)
	s.compras[c.ID] = c
	return c
}

func (s *fakeStore) addUsuarioPaquete(u *model.Usuario, p *model.Paquete, estado string, usadas int) *model.UsuarioPaquete {
	s.mu.Lock()
	defer s.mu.Unlock()
	hoy := truncDia(time.Now())
	up := &model.UsuarioPaquete{
		ID:                 uuid.New(),
		UsuarioID:          u.ID,
		PaqueteID:          p.ID,
		FechaInicio:        hoy,
		FechaFin:           sumarMeses(hoy, 3),
		PrecioPagado:       p.Precio,
		MetodoPago:         "transferencia",
		Estado:             estado,
		SesionesTotales:    p.NumeroSesiones,
		SesionesUtilizadas: usadas,
	}
	s.ups[up.ID] = up
	return up
}

func (s *fakeStore) activos(usuarioID, paqueteID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activosLocked(usuarioID, paqueteID, uuid.Nil)
}

func (s *fakeStore) activosLocked(usuarioID, paqueteID, excepto uuid.UUID) int {
	n := 0
	for _, up := range s.ups {
		if up.ID != excepto && up.UsuarioID == usuarioID && up.PaqueteID == paqueteID && up.Estado == model.UsuarioPaqueteActivo {
			n++
		}
	}
	return n
}

func (s *fakeStore) totalUsuarioPaquetes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ups)
}

func (s *fakeStore) compra(id uuid.UUID) model.Compra {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.compras[id]
}

func (s *fakeStore) repos() (fakeUsuarios, fakePaquetes, fakeReglas, fakeCompras, fakeUsuarioPaquetes, fakeTerapias) {
	return fakeUsuarios{s}, fakePaquetes{s}, fakeReglas{s}, fakeCompras{s}, fakeUsuarioPaquetes{s}, fakeTerapias{s}
}

// ── usuarios ──────────────────────────────────────────────────────────────────

type fakeUsuarios struct{ *fakeStore }

func (r fakeUsuarios) FindByID(_ context.Context, id uuid.UUID) (*model.Usuario, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.usuarios[id]
	if !ok {
		return nil, noEncontrado("usuario")
	}
	cp := *u
	return &cp, nil
}

func (r fakeUsuarios) FindActivosByIDs(_ context.Context, ids []uuid.UUID) ([]model.Usuario, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Usuario
	for _, id := range ids {
		if u, ok := r.usuarios[id]; ok && u.Activo {
			out = append(out, *u)
		}
	}
	return out, nil
}

// ── paquetes ──────────────────────────────────────────────────────────────────

type fakePaquetes struct{ *fakeStore }

func (r fakePaquetes) FindByID(_ context.Context, id uuid.UUID) (*model.Paquete, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.paquetes[id]
	if !ok {
		return nil, noEncontrado("paquete")
	}
	cp := *p
	return &cp, nil
}

// ── reglas ────────────────────────────────────────────────────────────────────

type fakeReglas struct{ *fakeStore }

func (r fakeReglas) ListVigentes(_ context.Context, dia time.Time) ([]model.ReglaDescuento, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reglasErr != nil {
		return nil, r.reglasErr
	}
	out := make([]model.ReglaDescuento, len(r.reglas))
	copy(out, r.reglas)
	return out, nil
}

func (r fakeReglas) IncrementarUso(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.incrementErr != nil {
		return r.incrementErr
	}
	r.usos[id]++
	return nil
}

// ── compras ───────────────────────────────────────────────────────────────────

type fakeCompras struct{ *fakeStore }

func (r fakeCompras) Create(_ context.Context, c *model.Compra) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	cp := *c
	cp.Paquete = nil
	r.compras[c.ID] = &cp
	return nil
}

func (r fakeCompras) FindByID(_ context.Context, id uuid.UUID) (*model.Compra, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.compras[id]
	if !ok {
		return nil, noEncontrado("compra")
	}
	cp := *c
	if p, ok := r.paquetes[c.PaqueteID]; ok {
		pc := *p
		cp.Paquete = &pc
	}
	return &cp, nil
}

func (r fakeCompras) List(_ context.Context, f dto.CompraFilter) ([]model.Compra, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Compra
	for _, c := range r.compras {
		if f.Estado != "" && f.Estado != "all" && c.EstadoCompra != f.Estado {
			continue
		}
		if f.UsuarioID != "" && c.UsuarioID.String() != f.UsuarioID {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (r fakeCompras) Finalizar(_ context.Context, id uuid.UUID, f repository.FinalizacionCompra) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalizarErr != nil {
		return false, r.finalizarErr
	}
	c, ok := r.compras[id]
	if !ok || c.EstadoCompra != model.CompraPendiente || r.perderCarrera {
		return false, nil
	}
	fecha := f.Fecha
	c.EstadoCompra = f.Estado
	c.ValidadoPor = f.RevisadoPor
	c.FechaValidacion = &fecha
	c.MotivoRechazo = f.MotivoRechazo
	return true, nil
}

func (r fakeCompras) RegistrarAsignacion(_ context.Context, id uuid.UUID, upID *uuid.UUID, errAsig *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.compras[id]
	if !ok || c.EstadoCompra != model.CompraValidada {
		return noEncontrado("compra validada")
	}
	c.UsuarioPaqueteID = upID
	c.AsignacionCompletada = upID != nil
	c.ErrorAsignacion = errAsig
	return nil
}

func (r fakeCompras) CountAsignacionPendiente(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.compras {
		if c.EstadoCompra == model.CompraValidada && !c.AsignacionCompletada {
			n++
		}
	}
	return n, nil
}

// ── usuario_paquetes ──────────────────────────────────────────────────────────

type fakeUsuarioPaquetes struct{ *fakeStore }

func (r fakeUsuarioPaquetes) Create(_ context.Context, up *model.UsuarioPaquete) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manualCreates++
	if r.createUpErr != nil {
		return r.createUpErr
	}
	return r.insertLocked(up)
}

func (r fakeUsuarioPaquetes) insertLocked(up *model.UsuarioPaquete) error {
	if up.Estado == model.UsuarioPaqueteActivo && r.activosLocked(up.UsuarioID, up.PaqueteID, uuid.Nil) > 0 {
		return fmt.Errorf("%w: ux_usuario_paquetes_activo", repository.ErrDuplicado)
	}
	if up.ID == uuid.Nil {
		up.ID = uuid.New()
	}
	cp := *up
	r.ups[up.ID] = &cp
	return nil
}

func (r fakeUsuarioPaquetes) FindByID(_ context.Context, id uuid.UUID) (*model.UsuarioPaquete, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	up, ok := r.ups[id]
	if !ok {
		return nil, noEncontrado("usuario_paquete")
	}
	cp := *up
	return &cp, nil
}

func (r fakeUsuarioPaquetes) FindActivo(_ context.Context, usuarioID, paqueteID uuid.UUID) (*model.UsuarioPaquete, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, up := range r.ups {
		if up.UsuarioID == usuarioID && up.PaqueteID == paqueteID && up.Estado == model.UsuarioPaqueteActivo {
			cp := *up
			return &cp, nil
		}
	}
	return nil, noEncontrado("usuario_paquete activo")
}

func (r fakeUsuarioPaquetes) ListByUsuario(_ context.Context, usuarioID uuid.UUID) ([]model.UsuarioPaquete, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.UsuarioPaquete
	for _, up := range r.ups {
		if up.UsuarioID == usuarioID {
			out = append(out, *up)
		}
	}
	return out, nil
}

func (r fakeUsuarioPaquetes) UpdateEstado(_ context.Context, id uuid.UUID, desde []string, nuevo string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	up, ok := r.ups[id]
	if !ok {
		return false, nil
	}
	match := false
	for _, d := range desde {
		if up.Estado == d {
			match = true
		}
	}
	if !match {
		return false, nil
	}
	if nuevo == model.UsuarioPaqueteActivo && r.activosLocked(up.UsuarioID, up.PaqueteID, up.ID) > 0 {
		return false, fmt.Errorf("%w: ux_usuario_paquetes_activo", repository.ErrDuplicado)
	}
	up.Estado = nuevo
	return true, nil
}

func (r fakeUsuarioPaquetes) ConsumirSesion(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	up, ok := r.ups[id]
	if !ok || up.Estado != model.UsuarioPaqueteActivo || up.SesionesUtilizadas >= up.SesionesTotales {
		return false, nil
	}
	up.SesionesUtilizadas++
	return true, nil
}

func (r fakeUsuarioPaquetes) AsignarPorProcedimiento(_ context.Context, p repository.ParametrosAsignacion) (*repository.ResultadoProcedimiento, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procLlamadas++
	if r.procErr != nil {
		return nil, r.procErr
	}
	paq, ok := r.paquetes[p.PaqueteID]
	if !ok || !paq.Activo {
		return &repository.ResultadoProcedimiento{Codigo: repository.ProcPaqueteNoEncontrado}, nil
	}
	if u, ok := r.usuarios[p.UsuarioID]; !ok || !u.Activo {
		return &repository.ResultadoProcedimiento{Codigo: repository.ProcUsuarioNoEncontrado}, nil
	}
	up := &model.UsuarioPaquete{
		ID:              uuid.New(),
		UsuarioID:       p.UsuarioID,
		PaqueteID:       p.PaqueteID,
		FechaInicio:     p.FechaInicio,
		FechaFin:        sumarMeses(p.FechaInicio, p.VigenciaMeses),
		PrecioPagado:    p.Precio,
		MetodoPago:      p.MetodoPago,
		Estado:          model.UsuarioPaqueteActivo,
		SesionesTotales: paq.NumeroSesiones,
		CompraID:        p.CompraID,
		AsignadoPor:     p.AsignadoPor,
	}
	if err := r.insertLocked(up); err != nil {
		return &repository.ResultadoProcedimiento{Codigo: repository.ProcDuplicado, Mensaje: err.Error()}, nil
	}
	id := up.ID
	return &repository.ResultadoProcedimiento{Exito: true, Codigo: repository.ProcOK, UsuarioPaqueteID: &id}, nil
}

func (r fakeUsuarioPaquetes) CreateSeguimientos(_ context.Context, rows []model.SeguimientoSesion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seguimientosErr != nil {
		return r.seguimientosErr
	}
	r.seguimientos = append(r.seguimientos, rows...)
	return nil
}

func (r fakeUsuarioPaquetes) CompletarSiguienteSeguimiento(_ context.Context, id uuid.UUID, fecha time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.seguimientos {
		sg := &r.seguimientos[i]
		if sg.UsuarioPaqueteID == id && sg.Estado == "pendiente" {
			sg.Estado = "completada"
			f := fecha
			sg.FechaRealizada = &f
			return nil
		}
	}
	return nil
}

// ── terapias ──────────────────────────────────────────────────────────────────

type fakeTerapias struct{ *fakeStore }

func (r fakeTerapias) CreateAsignacion(_ context.Context, a *model.AsignacionTerapia, unidades []model.ProgresoTerapia) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.asignaciones[a.ID] = &cp
	for i := range unidades {
		unidades[i].AsignacionID = a.ID
		u := unidades[i]
		r.progresos[u.ID] = &u
	}
	return nil
}

func (r fakeTerapias) FindProgresoByID(_ context.Context, id uuid.UUID) (*model.ProgresoTerapia, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.progresos[id]
	if !ok {
		return nil, noEncontrado("progreso")
	}
	cp := *p
	return &cp, nil
}

func (r fakeTerapias) UpdateProgreso(_ context.Context, p *model.ProgresoTerapia) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	actual, ok := r.progresos[p.ID]
	if !ok || actual.EstadoIndividual == model.ProgresoAbandonada {
		return false, nil
	}
	if actual.FechaInicioReal != nil || p.FechaInicioReal == nil {
		p.FechaInicioReal = actual.FechaInicioReal
	}
	if actual.FechaFinReal != nil && p.FechaFinReal != nil {
		p.FechaFinReal = actual.FechaFinReal
	}
	cp := *p
	r.progresos[p.ID] = &cp
	return true, nil
}

func (r fakeTerapias) AbandonarProgreso(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.progresos[id]
	if !ok || p.EstadoIndividual == model.ProgresoAbandonada || p.EstadoIndividual == model.ProgresoCompletada {
		return false, nil
	}
	p.EstadoIndividual = model.ProgresoAbandonada
	return true, nil
}

func (r fakeTerapias) ListProgresoByAsignacion(_ context.Context, asignacionID uuid.UUID) ([]model.ProgresoTerapia, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ProgresoTerapia
	for _, p := range r.progresos {
		if p.AsignacionID == asignacionID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r fakeTerapias) ListProgresoByUsuario(_ context.Context, usuarioID uuid.UUID) ([]model.ProgresoTerapia, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ProgresoTerapia
	for _, p := range r.progresos {
		if p.UsuarioID == usuarioID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// ── Dispatcher ────────────────────────────────────────────────────────────────

type fakeDispatcher struct {
	mu       sync.Mutex
	usos     []uuid.UUID
	emails   []worker.EmailJobPayload
	usoErr   error
	emailErr error
}

func (d *fakeDispatcher) EnqueueUsoDescuento(_ context.Context, reglaID, _ uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.usoErr != nil {
		return d.usoErr
	}
	d.usos = append(d.usos, reglaID)
	return nil
}

func (d *fakeDispatcher) EnqueueEmail(_ context.Context, p worker.EmailJobPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.emailErr != nil {
		return d.emailErr
	}
	d.emails = append(d.emails, p)
	return nil
}

// ── Wiring helpers ────────────────────────────────────────────────────────────

func newAsignacionSvc(s *fakeStore) AsignacionService {
	u, p, _, _, ups, _ := s.repos()
	return NewAsignacionService(u, p, ups, AsignacionConfig{VigenciaMeses: 3, WorkersMasivos: 4})
}

func ptr[T any](v T) *T { return &v }
