package repository

import (
	"context"
	"fmt"
	"time"

	"clinica/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ParametrosAsignacion are the arguments of the asignar_paquete_usuario
// server-side procedure.
type ParametrosAsignacion struct {
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
	VigenciaMeses    int
}

// Codes returned by asignar_paquete_usuario in its "codigo" column.
const (
	ProcOK                  = "ok"
	ProcDuplicado           = "duplicado"
	ProcPaqueteNoEncontrado = "paquete_no_encontrado"
	ProcUsuarioNoEncontrado = "usuario_no_encontrado"
)

// ResultadoProcedimiento is the single row returned by the procedure.
type ResultadoProcedimiento struct {
	Exito            bool
	Codigo           string
	UsuarioPaqueteID *uuid.UUID
	Mensaje          string
}

type UsuarioPaqueteRepository interface {
	Create(ctx context.Context, up *model.UsuarioPaquete) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.UsuarioPaquete, error)
	// FindActivo returns ErrNoEncontrado when the pair holds no active entitlement.
	FindActivo(ctx context.Context, usuarioID, paqueteID uuid.UUID) (*model.UsuarioPaquete, error)
	ListByUsuario(ctx context.Context, usuarioID uuid.UUID) ([]model.UsuarioPaquete, error)
	// UpdateEstado moves the row to nuevo only if its current estado is one of
	// desde; false means the guard did not match.
	UpdateEstado(ctx context.Context, id uuid.UUID, desde []string, nuevo string) (bool, error)
	// ConsumirSesion increments sesiones_utilizadas by one when the row is
	// active and still has budget; false means the guard did not match.
	ConsumirSesion(ctx context.Context, id uuid.UUID) (bool, error)
	AsignarPorProcedimiento(ctx context.Context, p ParametrosAsignacion) (*ResultadoProcedimiento, error)
	CreateSeguimientos(ctx context.Context, rows []model.SeguimientoSesion) error
	CompletarSiguienteSeguimiento(ctx context.Context, usuarioPaqueteID uuid.UUID, fecha time.Time) error
}

type usuarioPaqueteRepo struct{ conn }

func NewUsuarioPaqueteRepository(db *gorm.DB, timeout time.Duration) UsuarioPaqueteRepository {
	return &usuarioPaqueteRepo{conn{db: db, timeout: timeout}}
}

func (r *usuarioPaqueteRepo) Create(ctx context.Context, up *model.UsuarioPaquete) error {
	db, cancel := r.ctx(ctx)
	defer cancel()
	return clasificar(db.Omit("Paquete").Create(up).Error)
}

func (r *usuarioPaqueteRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.UsuarioPaquete, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	var up model.UsuarioPaquete
	if err := db.Preload("Paquete").First(&up, "id = ?", id).Error; err != nil {
		return nil, clasificar(err)
	}
	return &up, nil
}

func (r *usuarioPaqueteRepo) FindActivo(ctx context.Context, usuarioID, paqueteID uuid.UUID) (*model.UsuarioPaquete, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	var up model.UsuarioPaquete
	err := db.Where("usuario_id = ? AND paquete_id = ? AND estado = ?", usuarioID, paqueteID, model.UsuarioPaqueteActivo).
		First(&up).Error
	if err != nil {
		return nil, clasificar(err)
	}
	return &up, nil
}

func (r *usuarioPaqueteRepo) ListByUsuario(ctx context.Context, usuarioID uuid.UUID) ([]model.UsuarioPaquete, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	var ups []model.UsuarioPaquete
	err := db.Preload("Paquete").
		Where("usuario_id = ?", usuarioID).
		Order("fecha_inicio DESC").
		Find(&ups).Error
	return ups, clasificar(err)
}

func (r *usuarioPaqueteRepo) UpdateEstado(ctx context.Context, id uuid.UUID, desde []string, nuevo string) (bool, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	res := db.Model(&model.UsuarioPaquete{}).
		Where("id = ? AND estado IN ?", id, desde).
		Update("estado", nuevo)
	if res.Error != nil {
		return false, clasificar(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *usuarioPaqueteRepo) ConsumirSesion(ctx context.Context, id uuid.UUID) (bool, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	res := db.Model(&model.UsuarioPaquete{}).
		Where("id = ? AND estado = ? AND sesiones_utilizadas < sesiones_totales", id, model.UsuarioPaqueteActivo).
		Update("sesiones_utilizadas", gorm.Expr("sesiones_utilizadas + 1"))
	if res.Error != nil {
		return false, clasificar(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *usuarioPaqueteRepo) AsignarPorProcedimiento(ctx context.Context, p ParametrosAsignacion) (*ResultadoProcedimiento, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()

	var row struct {
		Exito            bool
		Codigo           string
		UsuarioPaqueteID *uuid.UUID
		Mensaje          string
	}
	err := db.Raw(
		`SELECT exito, codigo, usuario_paquete_id, mensaje
		   FROM asignar_paquete_usuario(?::uuid, ?::uuid, ?::numeric, ?::numeric, ?::date,
		                                ?::uuid, ?::text, ?::uuid, ?::uuid, ?::text, ?::int)`,
		p.UsuarioID, p.PaqueteID, p.Precio, p.Descuento, p.FechaInicio.Format("2006-01-02"),
		p.AsignadoPor, p.MetodoPago, p.CompraID, p.FisioterapeutaID, p.Notas, p.VigenciaMeses,
	).Scan(&row).Error
	if err != nil {
		return nil, clasificarProcedimiento(err)
	}
	if row.Codigo == "" {
		return nil, fmt.Errorf("%w: asignar_paquete_usuario no devolvió filas", ErrProcedimientoFallido)
	}
	return &ResultadoProcedimiento{
		Exito:            row.Exito,
		Codigo:           row.Codigo,
		UsuarioPaqueteID: row.UsuarioPaqueteID,
		Mensaje:          row.Mensaje,
	}, nil
}

func (r *usuarioPaqueteRepo) CreateSeguimientos(ctx context.Context, rows []model.SeguimientoSesion) error {
	if len(rows) == 0 {
		return nil
	}
	db, cancel := r.ctx(ctx)
	defer cancel()
	return clasificar(db.CreateInBatches(rows, 100).Error)
}

func (r *usuarioPaqueteRepo) CompletarSiguienteSeguimiento(ctx context.Context, usuarioPaqueteID uuid.UUID, fecha time.Time) error {
	db, cancel := r.ctx(ctx)
	defer cancel()
	return clasificar(db.Exec(
		`UPDATE seguimiento_sesiones SET estado = 'completada', fecha_realizada = ?
		  WHERE id = (SELECT id FROM seguimiento_sesiones
		               WHERE usuario_paquete_id = ? AND estado = 'pendiente'
		               ORDER BY numero_sesion LIMIT 1)`,
		fecha, usuarioPaqueteID,
	).Error)
}
