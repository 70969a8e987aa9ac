package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	UsuarioPaqueteActivo     = "activo"
	UsuarioPaquetePausado    = "pausado"
	UsuarioPaqueteCompletado = "completado"
	UsuarioPaqueteCancelado  = "cancelado"
)

// UsuarioPaquete is a consumable entitlement: one package bound to one user
// with a validity window and a session budget.
// At most one row per (usuario_id, paquete_id) may have estado='activo';
// the partial unique index ux_usuario_paquetes_activo enforces it.
type UsuarioPaquete struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UsuarioID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	PaqueteID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	FechaInicio        time.Time       `gorm:"type:date;not null"`
	FechaFin           time.Time       `gorm:"type:date;not null"`
	FechaCompra        time.Time       `gorm:"not null"`
	PrecioPagado       decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	DescuentoAplicado  decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	MetodoPago         string          `gorm:"type:varchar(30);not null"`
	Estado             string          `gorm:"type:varchar(20);not null;default:'activo'"`
	SesionesTotales    int             `gorm:"not null"`
	SesionesUtilizadas int             `gorm:"not null;default:0"`
	FisioterapeutaID   *uuid.UUID      `gorm:"type:uuid"`
	CompraID           *uuid.UUID      `gorm:"type:uuid;index"`
	AsignadoPor        *uuid.UUID      `gorm:"type:uuid"`
	Notas              *string
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Paquete *Paquete `gorm:"foreignKey:PaqueteID"`
}

func (UsuarioPaquete) TableName() string { return "usuario_paquetes" }

// SeguimientoSesion is the per-session tracking row of an entitlement.
// Estado: "pendiente" | "completada"
type SeguimientoSesion struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UsuarioPaqueteID uuid.UUID `gorm:"type:uuid;not null;index"`
	NumeroSesion     int       `gorm:"not null"`
	Estado           string    `gorm:"type:varchar(20);not null;default:'pendiente'"`
	FechaRealizada   *time.Time
	CreatedAt        time.Time
}

func (SeguimientoSesion) TableName() string { return "seguimiento_sesiones" }
