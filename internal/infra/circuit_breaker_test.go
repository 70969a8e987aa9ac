package infra

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errCaido   = errors.New("procedure missing")
	errNegocio = errors.New("duplicado")
)

func newTestBreaker(t *testing.T) (*CircuitBreaker, *time.Time, *[]CBState) {
	t.Helper()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var cambios []CBState
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      time.Minute,
		IsFailure:        func(err error) bool { return errors.Is(err, errCaido) },
		OnStateChange:    func(_ string, _, to CBState) { cambios = append(cambios, to) },
	})
	cb.now = func() time.Time { return now }
	return cb, &now, &cambios
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb, _, cambios := newTestBreaker(t)
	fail := func() error { return errCaido }

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(fail), errCaido)
	}
	assert.Equal(t, CBClosed, cb.State())
	assert.NoError(t, cb.Execute(func() error { return nil }), "success resets the count")
	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}
	assert.Equal(t, CBOpen, cb.State())

	llamado := false
	err := cb.Execute(func() error { llamado = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, llamado)
	assert.Equal(t, []CBState{CBOpen}, *cambios)
}

func TestCircuitBreaker_BusinessErrorsDoNotTrip(t *testing.T) {
	cb, _, _ := newTestBreaker(t)
	for i := 0; i < 10; i++ {
		err := cb.Execute(func() error { return errNegocio })
		assert.ErrorIs(t, err, errNegocio, "errors pass through unchanged")
	}
	assert.Equal(t, CBClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, now, cambios := newTestBreaker(t)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errCaido })
	}
	require.Equal(t, CBOpen, cb.State())

	*now = now.Add(time.Minute)
	assert.Equal(t, CBHalfOpen, cb.State())
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, CBHalfOpen, cb.State())
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, CBClosed, cb.State())
	assert.Equal(t, []CBState{CBOpen, CBHalfOpen, CBClosed}, *cambios)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now, _ := newTestBreaker(t)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errCaido })
	}
	*now = now.Add(2 * time.Minute)

	assert.ErrorIs(t, cb.Execute(func() error { return errCaido }), errCaido)
	assert.Equal(t, CBOpen, cb.State())
}

func TestDefaultCBConfig(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	assert.Equal(t, "asignar_paquete_usuario", cb.Name())
	assert.Equal(t, CBClosed, cb.State())
	assert.Equal(t, "half-open", CBHalfOpen.String())
}
