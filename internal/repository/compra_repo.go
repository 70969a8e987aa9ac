package repository

import (
	"context"
	"time"

	"clinica/internal/dto"
	"clinica/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FinalizacionCompra is the patch applied when a purchase leaves "pendiente".
type FinalizacionCompra struct {
	Estado        string
	RevisadoPor   *uuid.UUID
	Fecha         time.Time
	MotivoRechazo *string
}

type CompraRepository interface {
	Create(ctx context.Context, c *model.Compra) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Compra, error)
	List(ctx context.Context, filter dto.CompraFilter) ([]model.Compra, int64, error)
	// Finalizar transitions a purchase out of "pendiente". It reports false
	// when the row was no longer pending (another reviewer got there first).
	Finalizar(ctx context.Context, id uuid.UUID, f FinalizacionCompra) (bool, error)
	// RegistrarAsignacion records the auto-assignment outcome: the entitlement
	// id on success, or the failure message.
	RegistrarAsignacion(ctx context.Context, id uuid.UUID, usuarioPaqueteID *uuid.UUID, errorAsignacion *string) error
	CountAsignacionPendiente(ctx context.Context) (int64, error)
}

type compraRepo struct{ conn }

func NewCompraRepository(db *gorm.DB, timeout time.Duration) CompraRepository {
	return &compraRepo{conn{db: db, timeout: timeout}}
}

func (r *compraRepo) Create(ctx context.Context, c *model.Compra) error {
	db, cancel := r.ctx(ctx)
	defer cancel()
	return clasificar(db.Create(c).Error)
}

func (r *compraRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Compra, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	var c model.Compra
	if err := db.Preload("Paquete").First(&c, "id = ?", id).Error; err != nil {
		return nil, clasificar(err)
	}
	return &c, nil
}

func (r *compraRepo) List(ctx context.Context, filter dto.CompraFilter) ([]model.Compra, int64, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()

	var compras []model.Compra
	var total int64
	offset := (filter.Page - 1) * filter.Limit

	q := db.Model(&model.Compra{})
	if filter.Estado != "" && filter.Estado != "all" {
		q = q.Where("estado_compra = ?", filter.Estado)
	}
	if filter.UsuarioID != "" {
		q = q.Where("usuario_id = ?", filter.UsuarioID)
	}
	if filter.SinAsignar {
		q = q.Where("estado_compra = ? AND asignacion_completada = false", model.CompraValidada)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, clasificar(err)
	}

	// The proof blob is heavy and only needed on the detail view.
	err := q.Omit("comprobante_base64").Preload("Paquete").
		Order("created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&compras).Error

	return compras, total, clasificar(err)
}

func (r *compraRepo) Finalizar(ctx context.Context, id uuid.UUID, f FinalizacionCompra) (bool, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	res := db.Model(&model.Compra{}).
		Where("id = ? AND estado_compra = ?", id, model.CompraPendiente).
		Updates(map[string]interface{}{
			"estado_compra":    f.Estado,
			"validado_por":     f.RevisadoPor,
			"fecha_validacion": f.Fecha,
			"motivo_rechazo":   f.MotivoRechazo,
		})
	if res.Error != nil {
		return false, clasificar(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *compraRepo) RegistrarAsignacion(ctx context.Context, id uuid.UUID, usuarioPaqueteID *uuid.UUID, errorAsignacion *string) error {
	db, cancel := r.ctx(ctx)
	defer cancel()
	// Guarded on "validada" so asignacion_completada can never be true on
	// any other state.
	return clasificar(db.Model(&model.Compra{}).
		Where("id = ? AND estado_compra = ?", id, model.CompraValidada).
		Updates(map[string]interface{}{
			"asignacion_completada": usuarioPaqueteID != nil,
			"usuario_paquete_id":    usuarioPaqueteID,
			"error_asignacion":      errorAsignacion,
		}).Error)
}

func (r *compraRepo) CountAsignacionPendiente(ctx context.Context) (int64, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	var n int64
	err := db.Model(&model.Compra{}).
		Where("estado_compra = ? AND asignacion_completada = false", model.CompraValidada).
		Count(&n).Error
	return n, clasificar(err)
}
