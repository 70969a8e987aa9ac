package dto

import "github.com/shopspring/decimal"

// AsignarPaqueteRequest assigns a package to one user without a purchase.
type AsignarPaqueteRequest struct {
	UsuarioID        string          `json:"usuario_id"        validate:"required,uuid"`
	PaqueteID        string          `json:"paquete_id"        validate:"required,uuid"`
	PrecioFinal      decimal.Decimal `json:"precio_final"      validate:"required"`
	FechaInicio      string          `json:"fecha_inicio"      validate:"required,datetime=2006-01-02"`
	MetodoPago       string          `json:"metodo_pago"`
	Descuento        decimal.Decimal `json:"descuento"`
	FisioterapeutaID *string         `json:"fisioterapeuta_id" validate:"omitempty,uuid"`
	Notas            *string         `json:"notas"`
}

// AsignacionMasivaRequest assigns the same package to several users.
type AsignacionMasivaRequest struct {
	UsuarioIDs       []string        `json:"usuario_ids"       validate:"required,min=1,dive,uuid"`
	PaqueteID        string          `json:"paquete_id"        validate:"required,uuid"`
	PrecioFinal      decimal.Decimal `json:"precio_final"      validate:"required"`
	FechaInicio      string          `json:"fecha_inicio"      validate:"required,datetime=2006-01-02"`
	MetodoPago       string          `json:"metodo_pago"`
	FisioterapeutaID *string         `json:"fisioterapeuta_id" validate:"omitempty,uuid"`
	Notas            *string         `json:"notas"`
}

type AsignacionResponse struct {
	UsuarioPaqueteID string `json:"usuario_paquete_id"`
	Estrategia       string `json:"estrategia"`
	Mensaje          string `json:"mensaje"`
}

// ResultadoUsuario is the per-user outcome inside a bulk operation.
type ResultadoUsuario struct {
	UsuarioID        string  `json:"usuario_id"`
	Exito            bool    `json:"exito"`
	UsuarioPaqueteID *string `json:"usuario_paquete_id,omitempty"`
	ProgresoID       *string `json:"progreso_id,omitempty"`
	Codigo           string  `json:"codigo,omitempty"`
	Mensaje          string  `json:"mensaje"`
}

// AsignacionMasivaResponse summarizes a bulk operation. Codigo is
// "fallo_parcial" when outcomes are mixed.
type AsignacionMasivaResponse struct {
	Exitosos int                `json:"exitosos"`
	Fallidos int                `json:"fallidos"`
	Codigo   string             `json:"codigo,omitempty"`
	Detalle  []ResultadoUsuario `json:"detalle"`
}
