package dto

import "github.com/shopspring/decimal"

// ─── Filter / List ──────────────────────────────────────────────────────────

// CompraFilter is bound from query string of GET /v1/compras.
type CompraFilter struct {
	Estado    string `form:"estado"`     // pendiente | validada | rechazada | cancelada | all
	UsuarioID string `form:"usuario_id"` // empty = all (admin) or forced to caller
	// SinAsignar lists validated purchases whose auto-assignment is still pending
	SinAsignar bool `form:"sin_asignar"`
	Page       int  `form:"page,default=1"   validate:"min=1"`
	Limit      int  `form:"limit,default=50" validate:"min=1,max=200"`
}

type CompraListResponse struct {
	Data  []CompraResponse `json:"data"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// ─── Request DTOs ────────────────────────────────────────────────────────────

// RegistrarCompraRequest is the payment information of a purchase.
// Bound from multipart form fields; the proof file travels separately.
type RegistrarCompraRequest struct {
	PaqueteID         string  `form:"paquete_id"         json:"paquete_id"         validate:"required,uuid"`
	MetodoPago        string  `form:"metodo_pago"        json:"metodo_pago"        validate:"required,oneof=transferencia deposito efectivo tarjeta"`
	Banco             *string `form:"banco"              json:"banco"`
	NumeroTransaccion *string `form:"numero_transaccion" json:"numero_transaccion"`
	FechaPago         *string `form:"fecha_pago"         json:"fecha_pago"         validate:"omitempty,datetime=2006-01-02"`
	HoraPago          *string `form:"hora_pago"          json:"hora_pago"          validate:"omitempty,datetime=15:04"`
	Notas             *string `form:"notas"              json:"notas"`
}

// ComprobantePago is the raw proof-of-payment file uploaded with a purchase.
type ComprobantePago struct {
	Nombre    string
	TipoMIME  string
	Contenido []byte
}

type ValidarCompraRequest struct {
	Decision      string  `json:"decision"       validate:"required,oneof=validar rechazar"`
	MotivoRechazo *string `json:"motivo_rechazo"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type CompraResponse struct {
	ID                   string          `json:"id"`
	UsuarioID            string          `json:"usuario_id"`
	PaqueteID            string          `json:"paquete_id"`
	Paquete              string          `json:"paquete,omitempty"`
	PrecioBase           decimal.Decimal `json:"precio_base"`
	DescuentoAplicado    decimal.Decimal `json:"descuento_aplicado"`
	PrecioFinal          decimal.Decimal `json:"precio_final"`
	MetodoPago           string          `json:"metodo_pago"`
	EstadoCompra         string          `json:"estado_compra"`
	MotivoRechazo        *string         `json:"motivo_rechazo,omitempty"`
	AsignacionCompletada bool            `json:"asignacion_completada"`
	UsuarioPaqueteID     *string         `json:"usuario_paquete_id,omitempty"`
	ErrorAsignacion      *string         `json:"error_asignacion,omitempty"`
	FechaValidacion      *string         `json:"fecha_validacion,omitempty"`
	Mensaje              string          `json:"mensaje,omitempty"`
	CreatedAt            string          `json:"created_at"`
}

// ValidacionResponse reports the review decision and, separately, whether the
// entitlement was created.
type ValidacionResponse struct {
	CompraID             string  `json:"compra_id"`
	EstadoCompra         string  `json:"estado_compra"`
	AsignacionCompletada bool    `json:"asignacion_completada"`
	UsuarioPaqueteID     *string `json:"usuario_paquete_id,omitempty"`
	Mensaje              string  `json:"mensaje"`
}
