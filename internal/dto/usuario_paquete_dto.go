package dto

import "github.com/shopspring/decimal"

type CambiarEstadoRequest struct {
	Estado string  `json:"estado" validate:"required,oneof=activo pausado completado cancelado"`
	Motivo *string `json:"motivo"`
}

// UsuarioPaqueteResponse carries the stored entitlement plus its projection,
// recomputed on every read.
type UsuarioPaqueteResponse struct {
	ID                 string          `json:"id"`
	UsuarioID          string          `json:"usuario_id"`
	PaqueteID          string          `json:"paquete_id"`
	Paquete            string          `json:"paquete,omitempty"`
	FechaInicio        string          `json:"fecha_inicio"`
	FechaFin           string          `json:"fecha_fin"`
	PrecioPagado       decimal.Decimal `json:"precio_pagado"`
	DescuentoAplicado  decimal.Decimal `json:"descuento_aplicado"`
	MetodoPago         string          `json:"metodo_pago"`
	Estado             string          `json:"estado"`
	SesionesTotales    int             `json:"sesiones_totales"`
	SesionesUtilizadas int             `json:"sesiones_utilizadas"`
	SesionesRestantes  int             `json:"sesiones_restantes"`
	PorcentajeConsumo  decimal.Decimal `json:"porcentaje_consumo"`
	EstadoTemporal     string          `json:"estado_temporal"`
	DiasRestantes      int             `json:"dias_restantes"`
	FisioterapeutaID   *string         `json:"fisioterapeuta_id,omitempty"`
	CompraID           *string         `json:"compra_id,omitempty"`
}
