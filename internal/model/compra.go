package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	CompraPendiente = "pendiente"
	CompraValidada  = "validada"
	CompraRechazada = "rechazada"
	CompraCancelada = "cancelada"
)

// Compra is a package purchase awaiting (or past) administrator review.
// Invariants: MotivoRechazo is set iff EstadoCompra == "rechazada";
// AsignacionCompletada is only true when EstadoCompra == "validada".
type Compra struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UsuarioID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	PaqueteID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	PrecioBase        decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	DescuentoAplicado decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	PrecioFinal       decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	ReglaDescuentoID  *uuid.UUID      `gorm:"type:uuid"`
	MetodoPago        string          `gorm:"type:varchar(30);not null"`
	// Comprobante de pago: base64 blob produced by the encoder, opaque here
	ComprobanteBase64 *string `gorm:"type:text;column:comprobante_base64"`
	ComprobanteNombre *string
	ComprobanteTipo   *string `gorm:"type:varchar(100)"`
	Banco             *string
	NumeroTransaccion *string
	FechaPago         *time.Time `gorm:"type:date"`
	HoraPago          *string    `gorm:"type:varchar(8)"`
	EstadoCompra      string     `gorm:"type:varchar(20);not null;default:'pendiente';index"`
	MotivoRechazo     *string
	ValidadoPor       *uuid.UUID `gorm:"type:uuid"`
	FechaValidacion   *time.Time
	// AsignacionCompletada tracks fulfillment independently of the review
	AsignacionCompletada bool       `gorm:"not null;default:false"`
	UsuarioPaqueteID     *uuid.UUID `gorm:"type:uuid"`
	ErrorAsignacion      *string
	Notas                *string
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Paquete *Paquete `gorm:"foreignKey:PaqueteID"`
	Usuario *Usuario `gorm:"foreignKey:UsuarioID"`
}

func (Compra) TableName() string { return "compras_paquetes" }
