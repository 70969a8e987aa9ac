package model

import (
	"time"

	"github.com/google/uuid"
)

// Usuario stores clinic users with role-based access.
// Rol: "usuario" | "fisioterapeuta" | "administrador"
type Usuario struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Username string    `gorm:"uniqueIndex;not null"`
	Nombre   string    `gorm:"not null"`
	Email    *string
	Rol      string `gorm:"type:varchar(20);not null"`
	// PerfilID is the profile kind used by perfil_especifico discount rules
	PerfilID  *uuid.UUID `gorm:"type:uuid;index"`
	Activo    bool       `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides GORM's default singular → plural logic for Spanish names.
func (Usuario) TableName() string { return "usuarios" }
