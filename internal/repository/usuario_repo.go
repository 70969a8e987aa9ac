package repository

import (
	"context"
	"time"

	"clinica/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UsuarioRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Usuario, error)
	// FindActivosByIDs returns the active users among ids, in no particular order.
	FindActivosByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Usuario, error)
}

type usuarioRepo struct{ conn }

func NewUsuarioRepository(db *gorm.DB, timeout time.Duration) UsuarioRepository {
	return &usuarioRepo{conn{db: db, timeout: timeout}}
}

func (r *usuarioRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Usuario, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	var u model.Usuario
	if err := db.First(&u, "id = ?", id).Error; err != nil {
		return nil, clasificar(err)
	}
	return &u, nil
}

func (r *usuarioRepo) FindActivosByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Usuario, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	var users []model.Usuario
	err := db.Where("id IN ? AND activo = true", ids).Find(&users).Error
	return users, clasificar(err)
}
