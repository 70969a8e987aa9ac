package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"clinica/internal/model"
	"clinica/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hoyFijo = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

func newDescuentoSvc(s *fakeStore) *descuentoService {
	u, p, r, _, _, _ := s.repos()
	svc := NewDescuentoService(r, u, p).(*descuentoService)
	svc.ahora = func() time.Time { return hoyFijo }
	return svc
}

func ventana() (time.Time, time.Time) {
	return hoyFijo.AddDate(0, 0, -10), hoyFijo.AddDate(0, 0, 10)
}

func TestMejorDescuento_LowestFinalPriceWins(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	p := s.addPaquete("100", 10)
	desde, hasta := ventana()
	s.addRegla(model.AlcanceTodos, nil, "0.5", desde, hasta) // 99.50
	ganadora := s.addRegla(model.AlcanceTodos, nil, "20", desde, hasta)
	s.addRegla(model.AlcanceTodos, nil, "10", desde, hasta)

	d := newDescuentoSvc(s).MejorDescuento(context.Background(), u, p)

	require.NotNil(t, d.ReglaID)
	assert.Equal(t, ganadora.ID, *d.ReglaID)
	assert.True(t, d.PrecioFinal.Equal(decimal.NewFromInt(80)), "got %s", d.PrecioFinal)
	assert.True(t, d.Monto.Equal(decimal.NewFromInt(20)))
	assert.True(t, d.Aplicado())
}

func TestMejorDescuento_NoRulesReturnsBasePrice(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	p := s.addPaquete("150.00", 10)

	d := newDescuentoSvc(s).MejorDescuento(context.Background(), u, p)

	assert.Nil(t, d.ReglaID)
	assert.False(t, d.Aplicado())
	assert.True(t, d.PrecioFinal.Equal(p.Precio))
}

func TestMejorDescuento_TieGoesToMostSpecificScope(t *testing.T) {
	s := newFakeStore()
	perfil := uuid.New()
	u := s.addUsuario("ana")
	u.PerfilID = &perfil
	p := s.addPaquete("200", 8)
	p.Descuento = decimal.NewFromInt(15)
	desde, hasta := ventana()
	s.addRegla(model.AlcanceTodos, nil, "15", desde, hasta)
	porPerfil := s.addRegla(model.AlcancePerfilEspecifico, &perfil, "15", desde, hasta)

	d := newDescuentoSvc(s).MejorDescuento(context.Background(), u, p)
	require.NotNil(t, d.ReglaID)
	assert.Equal(t, porPerfil.ID, *d.ReglaID)
	assert.Equal(t, model.AlcancePerfilEspecifico, d.Alcance)

	porUsuario := s.addRegla(model.AlcanceUsuarioEspecifico, &u.ID, "15", desde, hasta)
	d = newDescuentoSvc(s).MejorDescuento(context.Background(), u, p)
	require.NotNil(t, d.ReglaID)
	assert.Equal(t, porUsuario.ID, *d.ReglaID)
}

func TestMejorDescuento_PackageFlatDiscountBeatsGlobalOnTie(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	p := s.addPaquete("100", 4)
	p.Descuento = decimal.NewFromInt(10)
	desde, hasta := ventana()
	s.addRegla(model.AlcanceTodos, nil, "10", desde, hasta)

	d := newDescuentoSvc(s).MejorDescuento(context.Background(), u, p)

	assert.Nil(t, d.ReglaID)
	assert.Equal(t, model.AlcancePaquete, d.Alcance)
	assert.True(t, d.PrecioFinal.Equal(decimal.NewFromInt(90)))
}

func TestMejorDescuento_IgnoresOutOfScopeAndOutOfWindow(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	otro := uuid.New()
	p := s.addPaquete("100", 4)
	desde, hasta := ventana()

	s.addRegla(model.AlcanceUsuarioEspecifico, &otro, "50", desde, hasta)
	s.addRegla(model.AlcancePerfilEspecifico, &otro, "50", desde, hasta)
	s.addRegla(model.AlcanceTodos, nil, "60", hoyFijo.AddDate(0, 0, 1), hasta)
	s.addRegla(model.AlcanceTodos, nil, "70", desde, hoyFijo.AddDate(0, 0, -1))
	inactiva := s.addRegla(model.AlcanceTodos, nil, "80", desde, hasta)
	inactiva.Activo = false
	soloOtroPaquete := s.addRegla(model.AlcanceTodos, nil, "90", desde, hasta)
	soloOtroPaquete.PaqueteID = &otro
	// Window boundaries are inclusive at day granularity.
	borde := s.addRegla(model.AlcanceTodos, nil, "5", truncDia(hoyFijo), truncDia(hoyFijo))

	d := newDescuentoSvc(s).MejorDescuento(context.Background(), u, p)

	require.NotNil(t, d.ReglaID)
	assert.Equal(t, borde.ID, *d.ReglaID)
	assert.True(t, d.PrecioFinal.Equal(decimal.NewFromInt(95)))
}

func TestMejorDescuento_StoreFailureMeansNoDiscount(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	p := s.addPaquete("100", 4)
	p.Descuento = decimal.NewFromInt(30)
	s.reglasErr = repository.ErrTiempoAgotado

	d := newDescuentoSvc(s).MejorDescuento(context.Background(), u, p)

	assert.False(t, d.Aplicado())
	assert.True(t, d.PrecioFinal.Equal(p.Precio))
}

func TestPrecioConDescuento_RoundsToCents(t *testing.T) {
	got := precioConDescuento(decimal.RequireFromString("99.99"), decimal.RequireFromString("33.333"))
	assert.Equal(t, "66.66", got.StringFixed(2))
	assert.True(t, precioConDescuento(decimal.NewFromInt(50), decimal.NewFromInt(150)).IsZero())
}

func TestCalcularDescuento_NotFound(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	svc := newDescuentoSvc(s)

	_, err := svc.CalcularDescuento(context.Background(), u.ID, uuid.New())
	assert.True(t, errors.Is(err, ErrPaqueteNoEncontrado))

	p := s.addPaquete("100", 4)
	_, err = svc.CalcularDescuento(context.Background(), uuid.New(), p.ID)
	assert.True(t, errors.Is(err, ErrUsuarioNoEncontrado))

	res, err := svc.CalcularDescuento(context.Background(), u.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, res.Aplicado)
	assert.Equal(t, "100", res.PrecioFinal.String())
}
