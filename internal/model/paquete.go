package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Paquete is a catalog bundle of therapy or routine sessions.
// Tipo: "terapia" | "rutina"
// The catalog is read-only for the entitlement core: prices are copied into
// UsuarioPaquete at assignment time and never re-read.
type Paquete struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Nombre      string    `gorm:"not null"`
	Descripcion *string
	Precio      decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	// Descuento is the flat package-level discount percentage
	Descuento      decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	NumeroSesiones int             `gorm:"not null"`
	Tipo           string          `gorm:"type:varchar(20);not null"`
	Activo         bool            `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Paquete) TableName() string { return "paquetes" }
