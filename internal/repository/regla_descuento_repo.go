package repository

import (
	"context"
	"time"

	"clinica/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReglaDescuentoRepository interface {
	// ListVigentes returns active rules whose window contains the given day.
	ListVigentes(ctx context.Context, dia time.Time) ([]model.ReglaDescuento, error)
	IncrementarUso(ctx context.Context, id uuid.UUID) error
}

type reglaDescuentoRepo struct{ conn }

func NewReglaDescuentoRepository(db *gorm.DB, timeout time.Duration) ReglaDescuentoRepository {
	return &reglaDescuentoRepo{conn{db: db, timeout: timeout}}
}

func (r *reglaDescuentoRepo) ListVigentes(ctx context.Context, dia time.Time) ([]model.ReglaDescuento, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	var reglas []model.ReglaDescuento
	fecha := dia.Format("2006-01-02")
	err := db.
		Where("activo = true AND fecha_inicio <= ? AND fecha_fin >= ?", fecha, fecha).
		Find(&reglas).Error
	return reglas, clasificar(err)
}

func (r *reglaDescuentoRepo) IncrementarUso(ctx context.Context, id uuid.UUID) error {
	db, cancel := r.ctx(ctx)
	defer cancel()
	res := db.Model(&model.ReglaDescuento{}).
		Where("id = ?", id).
		Update("usos_actuales", gorm.Expr("usos_actuales + 1"))
	if res.Error != nil {
		return clasificar(res.Error)
	}
	if res.RowsAffected == 0 {
		return clasificar(gorm.ErrRecordNotFound)
	}
	return nil
}
