package service

import (
	"time"

	"github.com/shopspring/decimal"
)

// Temporal states derived from an entitlement's (or tracking unit's) window.
// They are never stored.
const (
	TemporalPendiente = "pendiente"
	TemporalVigente   = "vigente"
	TemporalVencida   = "vencida"
)

// Proyeccion is the read-time status of a dated window.
type Proyeccion struct {
	Estado        string
	DiasRestantes int
}

// truncDia keeps the calendar date of t (in its own location) at UTC
// midnight, so dates stored as DATE and wall-clock "now" compare by day.
func truncDia(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ProyectarEstado compares hoy against [inicio, fin] at day granularity.
// DiasRestantes is fin − hoy in days and goes negative once expired.
func ProyectarEstado(inicio, fin, hoy time.Time) Proyeccion {
	i, f, h := truncDia(inicio), truncDia(fin), truncDia(hoy)
	dias := int(f.Sub(h).Hours() / 24)
	switch {
	case h.Before(i):
		return Proyeccion{Estado: TemporalPendiente, DiasRestantes: dias}
	case h.After(f):
		return Proyeccion{Estado: TemporalVencida, DiasRestantes: dias}
	default:
		return Proyeccion{Estado: TemporalVigente, DiasRestantes: dias}
	}
}

// PorcentajeConsumo is usadas/totales×100 clamped to [0, 100], two decimals.
func PorcentajeConsumo(usadas, totales int) decimal.Decimal {
	if totales <= 0 {
		return decimal.Zero
	}
	pct := decimal.NewFromInt(int64(usadas)).Mul(cien).Div(decimal.NewFromInt(int64(totales))).Round(2)
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(cien) {
		return cien
	}
	return pct
}
