package service

import (
	"context"
	"testing"
	"time"

	"clinica/internal/model"
	"clinica/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrarSesion_ConsumesUpToTotalAndStaysActive(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	p := s.addPaquete("100", 3)
	up := s.addUsuarioPaquete(u, p, model.UsuarioPaqueteActivo, 0)
	svc := NewUsuarioPaqueteService(fakeUsuarioPaquetes{s})

	for i := 1; i <= 3; i++ {
		resp, err := svc.RegistrarSesion(context.Background(), up.ID, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, i, resp.SesionesUtilizadas)
	}
	resp, err := svc.Obtener(context.Background(), up.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UsuarioPaqueteActivo, resp.Estado, "full consumption never changes the state")
	assert.Equal(t, "100", resp.PorcentajeConsumo.String())
	assert.Equal(t, 0, resp.SesionesRestantes)

	_, err = svc.RegistrarSesion(context.Background(), up.ID, uuid.New())
	assert.ErrorIs(t, err, invalida("sin_sesiones", ""))
	assert.Equal(t, 3, s.ups[up.ID].SesionesUtilizadas)
}

func TestRegistrarSesion_MarksTrackingRows(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	p := s.addPaquete("100", 2)
	s.procErr = repository.ErrProcedimientoNoDisponible
	res, err := newAsignacionSvc(s).Asignar(context.Background(), solicitud(u, p))
	require.NoError(t, err)

	_, err = NewUsuarioPaqueteService(fakeUsuarioPaquetes{s}).RegistrarSesion(context.Background(), res.UsuarioPaqueteID, uuid.New())
	require.NoError(t, err)

	completadas := 0
	for _, sg := range s.seguimientos {
		if sg.Estado == "completada" {
			completadas++
			assert.Equal(t, 1, sg.NumeroSesion)
		}
	}
	assert.Equal(t, 1, completadas)
}

func TestRegistrarSesion_Rejections(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	p := s.addPaquete("100", 3)
	svc := NewUsuarioPaqueteService(fakeUsuarioPaquetes{s})

	pausado := s.addUsuarioPaquete(u, p, model.UsuarioPaquetePausado, 0)
	_, err := svc.RegistrarSesion(context.Background(), pausado.ID, uuid.New())
	assert.ErrorIs(t, err, invalida("paquete_no_activo", ""))

	otro := s.addPaquete("50", 3)
	futuro := s.addUsuarioPaquete(u, otro, model.UsuarioPaqueteActivo, 0)
	futuro.FechaInicio = truncDia(time.Now()).AddDate(0, 0, 2)
	_, err = svc.RegistrarSesion(context.Background(), futuro.ID, uuid.New())
	assert.ErrorIs(t, err, invalida("paquete_no_iniciado", ""))

	tercero := s.addPaquete("70", 3)
	vencido := s.addUsuarioPaquete(u, tercero, model.UsuarioPaqueteActivo, 0)
	vencido.FechaInicio = truncDia(time.Now()).AddDate(0, -3, 0)
	vencido.FechaFin = truncDia(time.Now()).AddDate(0, 0, -1)
	_, err = svc.RegistrarSesion(context.Background(), vencido.ID, uuid.New())
	assert.ErrorIs(t, err, invalida("paquete_vencido", ""))

	_, err = svc.RegistrarSesion(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrUsuarioPaqueteNoEncontrado)
}

func TestCambiarEstado_Transitions(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	p := s.addPaquete("100", 3)
	up := s.addUsuarioPaquete(u, p, model.UsuarioPaqueteActivo, 1)
	svc := NewUsuarioPaqueteService(fakeUsuarioPaquetes{s})
	actor := uuid.New()

	resp, err := svc.CambiarEstado(context.Background(), up.ID, model.UsuarioPaquetePausado, actor)
	require.NoError(t, err)
	assert.Equal(t, model.UsuarioPaquetePausado, resp.Estado)

	resp, err = svc.CambiarEstado(context.Background(), up.ID, model.UsuarioPaqueteActivo, actor)
	require.NoError(t, err)
	assert.Equal(t, model.UsuarioPaqueteActivo, resp.Estado)

	_, err = svc.CambiarEstado(context.Background(), up.ID, model.UsuarioPaqueteActivo, actor)
	assert.ErrorIs(t, err, invalida("transicion_invalida", ""))

	_, err = svc.CambiarEstado(context.Background(), up.ID, model.UsuarioPaqueteCompletado, actor)
	require.NoError(t, err)

	for _, nuevo := range []string{model.UsuarioPaqueteActivo, model.UsuarioPaquetePausado, model.UsuarioPaqueteCancelado} {
		_, err = svc.CambiarEstado(context.Background(), up.ID, nuevo, actor)
		assert.ErrorIs(t, err, invalida("transicion_invalida", ""), "completado is terminal")
	}
	assert.Equal(t, model.UsuarioPaqueteCompletado, s.ups[up.ID].Estado)
}

func TestCambiarEstado_ReactivationRespectsSingleActive(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	p := s.addPaquete("100", 3)
	pausado := s.addUsuarioPaquete(u, p, model.UsuarioPaquetePausado, 1)
	s.addUsuarioPaquete(u, p, model.UsuarioPaqueteActivo, 0)
	svc := NewUsuarioPaqueteService(fakeUsuarioPaquetes{s})

	_, err := svc.CambiarEstado(context.Background(), pausado.ID, model.UsuarioPaqueteActivo, uuid.New())

	assert.ErrorIs(t, err, ErrDuplicado)
	assert.Equal(t, model.UsuarioPaquetePausado, s.ups[pausado.ID].Estado)
	assert.Equal(t, 1, s.activos(u.ID, p.ID))
}

func TestListarPorUsuario(t *testing.T) {
	s := newFakeStore()
	u := s.addUsuario("ana")
	otro := s.addUsuario("beto")
	p := s.addPaquete("100", 4)
	s.addUsuarioPaquete(u, p, model.UsuarioPaqueteActivo, 1)
	s.addUsuarioPaquete(u, p, model.UsuarioPaqueteCancelado, 0)
	s.addUsuarioPaquete(otro, p, model.UsuarioPaqueteActivo, 0)

	res, err := NewUsuarioPaqueteService(fakeUsuarioPaquetes{s}).ListarPorUsuario(context.Background(), u.ID)

	require.NoError(t, err)
	assert.Len(t, res, 2)
	for _, r := range res {
		assert.Equal(t, TemporalVigente, r.EstadoTemporal)
	}
}
