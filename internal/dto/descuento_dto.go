package dto

import "github.com/shopspring/decimal"

// DescuentoCalculado is the outcome of the discount resolver.
// ReglaID is nil both when no discount applies and when the winner is the
// package's own flat discount (Alcance "paquete").
type DescuentoCalculado struct {
	ReglaID        *string         `json:"regla_id,omitempty"`
	Nombre         string          `json:"nombre,omitempty"`
	Alcance        string          `json:"alcance,omitempty"`
	Porcentaje     decimal.Decimal `json:"porcentaje"`
	MontoDescuento decimal.Decimal `json:"monto_descuento"`
	PrecioBase     decimal.Decimal `json:"precio_base"`
	PrecioFinal    decimal.Decimal `json:"precio_final"`
	Aplicado       bool            `json:"aplicado"`
}
