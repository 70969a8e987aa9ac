package service

import (
	"errors"
	"fmt"

	"clinica/internal/repository"
)

// Kind classifies a service failure. Handlers map kinds onto HTTP statuses;
// callers branch with errors.Is against the sentinels below.
type Kind string

const (
	KindNotFound         Kind = "no_encontrado"
	KindInvalidRequest   Kind = "solicitud_invalida"
	KindDuplicate        Kind = "asignacion_activa_duplicada"
	KindAlreadyFinalized Kind = "compra_finalizada"
	KindPersistence      Kind = "error_persistencia"
	KindPartialFailure   Kind = "fallo_parcial"
	mensajePersistencia       = "No se pudo completar la operación, intente nuevamente"
)

// Error is the typed result of every failed operation.
// Codigo refines the kind (e.g. "paquete_no_encontrado" or, for persistence
// errors, the store cause code such as "tiempo_agotado").
type Error struct {
	Kind    Kind
	Codigo  string
	Mensaje string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Mensaje, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Mensaje)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, and on Codigo when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Codigo == "" || t.Codigo == e.Codigo
}

var (
	ErrNoEncontrado               = &Error{Kind: KindNotFound}
	ErrPaqueteNoEncontrado        = &Error{Kind: KindNotFound, Codigo: "paquete_no_encontrado", Mensaje: "Paquete no encontrado o inactivo"}
	ErrUsuarioNoEncontrado        = &Error{Kind: KindNotFound, Codigo: "usuario_no_encontrado", Mensaje: "Usuario no encontrado o inactivo"}
	ErrCompraNoEncontrada         = &Error{Kind: KindNotFound, Codigo: "compra_no_encontrada", Mensaje: "Compra no encontrada"}
	ErrUsuarioPaqueteNoEncontrado = &Error{Kind: KindNotFound, Codigo: "usuario_paquete_no_encontrado", Mensaje: "Paquete de usuario no encontrado"}
	ErrProgresoNoEncontrado       = &Error{Kind: KindNotFound, Codigo: "progreso_no_encontrado", Mensaje: "Progreso de terapia no encontrado"}

	ErrSolicitudInvalida = &Error{Kind: KindInvalidRequest}
	ErrDuplicado         = &Error{Kind: KindDuplicate, Codigo: "duplicado", Mensaje: "El usuario ya tiene este paquete activo"}
	ErrCompraFinalizada  = &Error{Kind: KindAlreadyFinalized, Codigo: "compra_finalizada", Mensaje: "La compra ya fue procesada"}
	ErrPersistencia      = &Error{Kind: KindPersistence}
	ErrFalloParcial      = &Error{Kind: KindPartialFailure}
)

func invalida(codigo, mensaje string) *Error {
	return &Error{Kind: KindInvalidRequest, Codigo: codigo, Mensaje: mensaje}
}

func conCausa(base *Error, err error) *Error {
	return &Error{Kind: base.Kind, Codigo: base.Codigo, Mensaje: base.Mensaje, Err: err}
}

// persistencia wraps a classified store error; Codigo carries its cause code.
func persistencia(err error) *Error {
	return &Error{Kind: KindPersistence, Codigo: repository.CodigoCausa(err), Mensaje: mensajePersistencia, Err: err}
}

// desdeStore converts a repository error: not-found becomes notFound, a
// unique violation becomes ErrDuplicado, anything else is a persistence
// error.
func desdeStore(err error, notFound *Error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNoEncontrado) && notFound != nil:
		return conCausa(notFound, err)
	case errors.Is(err, repository.ErrDuplicado):
		return conCausa(ErrDuplicado, err)
	default:
		return persistencia(err)
	}
}

// KindOf returns the kind of a service error, or "" for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
