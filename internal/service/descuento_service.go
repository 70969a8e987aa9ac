package service

import (
	"context"
	"time"

	"clinica/internal/dto"
	"clinica/internal/model"
	"clinica/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Descuento is the winning discount for a (usuario, paquete) pair.
// ReglaID is nil when nothing applies or when the winner is the package's
// own flat discount.
type Descuento struct {
	ReglaID     *uuid.UUID
	Nombre      string
	Alcance     string
	Porcentaje  decimal.Decimal
	Monto       decimal.Decimal
	PrecioBase  decimal.Decimal
	PrecioFinal decimal.Decimal
}

func (d Descuento) Aplicado() bool { return d.Porcentaje.IsPositive() }

func (d Descuento) toDTO() dto.DescuentoCalculado {
	out := dto.DescuentoCalculado{
		Nombre:         d.Nombre,
		Alcance:        d.Alcance,
		Porcentaje:     d.Porcentaje,
		MontoDescuento: d.Monto,
		PrecioBase:     d.PrecioBase,
		PrecioFinal:    d.PrecioFinal,
		Aplicado:       d.Aplicado(),
	}
	if d.ReglaID != nil {
		s := d.ReglaID.String()
		out.ReglaID = &s
	}
	return out
}

type DescuentoService interface {
	// MejorDescuento never fails: a store error resolves to "no discount".
	MejorDescuento(ctx context.Context, usuario *model.Usuario, paquete *model.Paquete) Descuento
	// CalcularDescuento is the purchase-form preview.
	CalcularDescuento(ctx context.Context, usuarioID, paqueteID uuid.UUID) (*dto.DescuentoCalculado, error)
}

type descuentoService struct {
	reglas   repository.ReglaDescuentoRepository
	usuarios repository.UsuarioRepository
	paquetes repository.PaqueteRepository
	ahora    func() time.Time
}

func NewDescuentoService(
	reglas repository.ReglaDescuentoRepository,
	usuarios repository.UsuarioRepository,
	paquetes repository.PaqueteRepository,
) DescuentoService {
	return &descuentoService{reglas: reglas, usuarios: usuarios, paquetes: paquetes, ahora: time.Now}
}

var cien = decimal.NewFromInt(100)

// prioridadAlcance breaks ties between candidates with the same final price:
// the more specific scope wins.
var prioridadAlcance = map[string]int{
	model.AlcanceUsuarioEspecifico: 3,
	model.AlcancePerfilEspecifico:  2,
	model.AlcancePaquete:           1,
	model.AlcanceTodos:             0,
}

// precioConDescuento returns base − base×pct/100 rounded to cents. pct is
// clamped to [0, 100].
func precioConDescuento(base, pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		pct = decimal.Zero
	}
	if pct.GreaterThan(cien) {
		pct = cien
	}
	return base.Sub(base.Mul(pct).Div(cien)).Round(2)
}

func sinDescuento(base decimal.Decimal) Descuento {
	return Descuento{Porcentaje: decimal.Zero, Monto: decimal.Zero, PrecioBase: base, PrecioFinal: base}
}

// ── MejorDescuento ────────────────────────────────────────────────────────────
// Candidates: stored rules that are active, in window today and in scope for
// the user, plus the package's flat discount. Lowest final price wins; ties
// go to the more specific scope.

func (s *descuentoService) MejorDescuento(ctx context.Context, usuario *model.Usuario, paquete *model.Paquete) Descuento {
	base := paquete.Precio
	hoy := truncDia(s.ahora())

	reglas, err := s.reglas.ListVigentes(ctx, hoy)
	if err != nil {
		log.Warn().Err(err).
			Str("usuario_id", usuario.ID.String()).
			Str("paquete_id", paquete.ID.String()).
			Msg("descuento: rules unavailable, resolving without discount")
		return sinDescuento(base)
	}

	mejor := sinDescuento(base)
	encontrado := false
	considerar := func(c Descuento) {
		if !c.Porcentaje.IsPositive() {
			return
		}
		if !encontrado || mejorQue(c, mejor) {
			mejor = c
			encontrado = true
		}
	}

	for i := range reglas {
		r := &reglas[i]
		if !reglaAplica(r, usuario, paquete, hoy) {
			continue
		}
		final := precioConDescuento(base, r.Valor)
		id := r.ID
		considerar(Descuento{
			ReglaID:     &id,
			Nombre:      r.Nombre,
			Alcance:     r.Alcance,
			Porcentaje:  r.Valor,
			Monto:       base.Sub(final),
			PrecioBase:  base,
			PrecioFinal: final,
		})
	}

	final := precioConDescuento(base, paquete.Descuento)
	considerar(Descuento{
		Nombre:      "Descuento del paquete",
		Alcance:     model.AlcancePaquete,
		Porcentaje:  paquete.Descuento,
		Monto:       base.Sub(final),
		PrecioBase:  base,
		PrecioFinal: final,
	})

	return mejor
}

func mejorQue(a, b Descuento) bool {
	if c := a.PrecioFinal.Cmp(b.PrecioFinal); c != 0 {
		return c < 0
	}
	pa, pb := prioridadAlcance[a.Alcance], prioridadAlcance[b.Alcance]
	if pa != pb {
		return pa > pb
	}
	// Same price and scope: keep the result stable across calls.
	if a.ReglaID != nil && b.ReglaID != nil {
		return a.ReglaID.String() < b.ReglaID.String()
	}
	return false
}

func reglaAplica(r *model.ReglaDescuento, u *model.Usuario, p *model.Paquete, hoy time.Time) bool {
	if !r.Activo {
		return false
	}
	if hoy.Before(truncDia(r.FechaInicio)) || hoy.After(truncDia(r.FechaFin)) {
		return false
	}
	if r.PaqueteID != nil && *r.PaqueteID != p.ID {
		return false
	}
	switch r.Alcance {
	case model.AlcanceTodos:
		return true
	case model.AlcancePerfilEspecifico:
		return r.ObjetivoID != nil && u.PerfilID != nil && *r.ObjetivoID == *u.PerfilID
	case model.AlcanceUsuarioEspecifico:
		return r.ObjetivoID != nil && *r.ObjetivoID == u.ID
	default:
		return false
	}
}

func (s *descuentoService) CalcularDescuento(ctx context.Context, usuarioID, paqueteID uuid.UUID) (*dto.DescuentoCalculado, error) {
	paquete, err := s.paquetes.FindByID(ctx, paqueteID)
	if err != nil {
		return nil, desdeStore(err, ErrPaqueteNoEncontrado)
	}
	if !paquete.Activo {
		return nil, ErrPaqueteNoEncontrado
	}
	usuario, err := s.usuarios.FindByID(ctx, usuarioID)
	if err != nil {
		return nil, desdeStore(err, ErrUsuarioNoEncontrado)
	}
	d := s.MejorDescuento(ctx, usuario, paquete).toDTO()
	return &d, nil
}
