package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	AlcanceTodos             = "todos"
	AlcancePerfilEspecifico  = "perfil_especifico"
	AlcanceUsuarioEspecifico = "usuario_especifico"
	// AlcancePaquete is never stored: it names the package's own flat
	// discount when it competes against the stored rules.
	AlcancePaquete = "paquete"
)

// ReglaDescuento is a percentage discount with a validity window.
// ObjetivoID holds the perfil id or usuario id for scoped rules.
// UsosActuales only grows when a purchase that used the rule is validated.
type ReglaDescuento struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Nombre     string     `gorm:"not null"`
	Alcance    string     `gorm:"type:varchar(30);not null;default:'todos'"`
	ObjetivoID *uuid.UUID `gorm:"type:uuid;index"`
	// PaqueteID restricts the rule to one package; nil applies to all
	PaqueteID    *uuid.UUID      `gorm:"type:uuid;index"`
	Valor        decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	FechaInicio  time.Time       `gorm:"type:date;not null"`
	FechaFin     time.Time       `gorm:"type:date;not null"`
	Activo       bool            `gorm:"not null;default:true"`
	UsosActuales int             `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ReglaDescuento) TableName() string { return "reglas_descuento" }
