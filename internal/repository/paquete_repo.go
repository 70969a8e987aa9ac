package repository

import (
	"context"
	"time"

	"clinica/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaqueteRepository is read-only: the catalog is never mutated by the
// entitlement core.
type PaqueteRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Paquete, error)
}

type paqueteRepo struct{ conn }

func NewPaqueteRepository(db *gorm.DB, timeout time.Duration) PaqueteRepository {
	return &paqueteRepo{conn{db: db, timeout: timeout}}
}

func (r *paqueteRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Paquete, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	var p model.Paquete
	if err := db.First(&p, "id = ?", id).Error; err != nil {
		return nil, clasificar(err)
	}
	return &p, nil
}
