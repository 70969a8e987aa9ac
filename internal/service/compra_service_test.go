package service

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"clinica/internal/dto"
	"clinica/internal/infra"
	"clinica/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompraSvc(s *fakeStore) CompraService {
	u, p, _, c, _, _ := s.repos()
	desc := newDescuentoSvc(s)
	svc := NewCompraService(c, p, u, desc, infra.NewCodificadorBase64(1024), nil).(*compraService)
	svc.ahora = func() time.Time { return hoyFijo }
	return svc
}

func pdf() *dto.ComprobantePago {
	return &dto.ComprobantePago{Nombre: "pago.pdf", TipoMIME: "application/pdf", Contenido: []byte("%PDF-1.4 ...")}
}

func TestRegistrarCompra_CreatesPendingPurchaseOnly(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	p := s.addPaquete("200", 10)
	desde, hasta := ventana()
	regla := s.addRegla(model.AlcanceTodos, nil, "25", desde, hasta)

	resp, err := newCompraSvc(s).RegistrarCompra(context.Background(), u.ID, dto.RegistrarCompraRequest{
		PaqueteID:  p.ID.String(),
		MetodoPago: "transferencia",
	}, pdf())

	require.NoError(t, err)
	assert.Equal(t, model.CompraPendiente, resp.EstadoCompra)
	assert.Equal(t, "150", resp.PrecioFinal.String())
	assert.Equal(t, "50", resp.DescuentoAplicado.String())
	assert.Contains(t, resp.Mensaje, "Un administrador revisará")
	assert.Equal(t, 0, s.totalUsuarioPaquetes(), "no entitlement before validation")

	c := s.compra(uuid.MustParse(resp.ID))
	require.NotNil(t, c.ReglaDescuentoID)
	assert.Equal(t, regla.ID, *c.ReglaDescuentoID)
	require.NotNil(t, c.ComprobanteBase64)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pdf().Contenido), *c.ComprobanteBase64)
	assert.Equal(t, "application/pdf", *c.ComprobanteTipo)
	assert.Equal(t, 0, s.usos[regla.ID], "usage is counted on validation, not on submit")
}

func TestRegistrarCompra_Rejections(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	p := s.addPaquete("200", 10)
	inactivo := s.addPaquete("300", 10)
	inactivo.Activo = false
	svc := newCompraSvc(s)

	req := func(paquete string, metodo string) dto.RegistrarCompraRequest {
		return dto.RegistrarCompraRequest{PaqueteID: paquete, MetodoPago: metodo}
	}

	_, err := svc.RegistrarCompra(context.Background(), u.ID, req("x", "transferencia"), pdf())
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	_, err = svc.RegistrarCompra(context.Background(), u.ID, req(uuid.NewString(), "transferencia"), pdf())
	assert.ErrorIs(t, err, ErrPaqueteNoEncontrado)

	_, err = svc.RegistrarCompra(context.Background(), u.ID, req(inactivo.ID.String(), "transferencia"), pdf())
	assert.ErrorIs(t, err, ErrPaqueteNoEncontrado)

	_, err = svc.RegistrarCompra(context.Background(), uuid.New(), req(p.ID.String(), "transferencia"), pdf())
	assert.ErrorIs(t, err, ErrUsuarioNoEncontrado)

	_, err = svc.RegistrarCompra(context.Background(), u.ID, req(p.ID.String(), "transferencia"), nil)
	assert.ErrorIs(t, err, invalida("comprobante_requerido", ""))

	exe := &dto.ComprobantePago{Nombre: "pago.exe", TipoMIME: "application/octet-stream", Contenido: []byte("MZ")}
	_, err = svc.RegistrarCompra(context.Background(), u.ID, req(p.ID.String(), "deposito"), exe)
	assert.ErrorIs(t, err, invalida("comprobante_tipo_invalido", ""))

	grande := &dto.ComprobantePago{Nombre: "scan.png", TipoMIME: "image/png", Contenido: make([]byte, 2048)}
	_, err = svc.RegistrarCompra(context.Background(), u.ID, req(p.ID.String(), "deposito"), grande)
	assert.ErrorIs(t, err, invalida("comprobante_invalido", ""))

	mal := req(p.ID.String(), "transferencia")
	mal.FechaPago = ptr("10/03/2026")
	_, err = svc.RegistrarCompra(context.Background(), u.ID, mal, pdf())
	assert.ErrorIs(t, err, invalida("fecha_pago_invalida", ""))

	assert.Empty(t, s.compras)
}

func TestRegistrarCompra_CashNeedsNoProof(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	p := s.addPaquete("80", 4)

	resp, err := newCompraSvc(s).RegistrarCompra(context.Background(), u.ID, dto.RegistrarCompraRequest{
		PaqueteID:  p.ID.String(),
		MetodoPago: "efectivo",
		FechaPago:  ptr("2026-03-09"),
	}, nil)

	require.NoError(t, err)
	c := s.compra(uuid.MustParse(resp.ID))
	assert.Nil(t, c.ComprobanteBase64)
	require.NotNil(t, c.FechaPago)
	assert.Equal(t, "2026-03-09", c.FechaPago.Format("2006-01-02"))
}

func TestCancelarCompra(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	otro := s.addUsuario("beto")
	p := s.addPaquete("80", 4)
	c := s.addCompra(u, p, "80")
	svc := newCompraSvc(s)

	err := svc.CancelarCompra(context.Background(), c.ID, otro.ID)
	assert.ErrorIs(t, err, ErrCompraNoEncontrada)
	assert.Equal(t, model.CompraPendiente, s.compra(c.ID).EstadoCompra)

	require.NoError(t, svc.CancelarCompra(context.Background(), c.ID, u.ID))
	assert.Equal(t, model.CompraCancelada, s.compra(c.ID).EstadoCompra)

	err = svc.CancelarCompra(context.Background(), c.ID, u.ID)
	assert.ErrorIs(t, err, ErrCompraFinalizada)

	err = svc.CancelarCompra(context.Background(), uuid.New(), u.ID)
	assert.ErrorIs(t, err, ErrCompraNoEncontrada)
}

func TestListarCompras_FiltersAndPaging(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	otro := s.addUsuario("beto")
	p := s.addPaquete("80", 4)
	s.addCompra(u, p, "80")
	s.addCompra(otro, p, "80")
	validada := s.addCompra(u, p, "60")
	validada.EstadoCompra = model.CompraValidada
	svc := newCompraSvc(s)

	res, err := svc.Listar(context.Background(), dto.CompraFilter{Estado: model.CompraPendiente})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 50, res.Limit)

	res, err = svc.Listar(context.Background(), dto.CompraFilter{Estado: "all", UsuarioID: u.ID.String(), Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, res.Data, 2)
	for _, c := range res.Data {
		assert.Equal(t, u.ID.String(), c.UsuarioID)
	}

	_, err = svc.Listar(context.Background(), dto.CompraFilter{UsuarioID: "nope"})
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}

func TestObtenerCompra(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	p := s.addPaquete("80", 4)
	c := s.addCompra(u, p, "80")
	svc := newCompraSvc(s)

	resp, err := svc.Obtener(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Nombre, resp.Paquete)

	_, err = svc.Obtener(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrCompraNoEncontrada)
}
