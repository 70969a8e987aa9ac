package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Store failure categories. Every repository method returns one of these
// (wrapped with the driver error) so services can branch with errors.Is.
var (
	ErrNoEncontrado              = errors.New("registro no encontrado")
	ErrDuplicado                 = errors.New("violación de restricción de unicidad")
	ErrProcedimientoNoDisponible = errors.New("procedimiento no disponible")
	ErrProcedimientoFallido      = errors.New("procedimiento falló")
	ErrTiempoAgotado             = errors.New("tiempo de espera agotado")
	ErrTransporte                = errors.New("error de transporte")
)

// SQLSTATE codes we classify explicitly.
const (
	pgUniqueViolation   = "23505"
	pgUndefinedFunction = "42883"
	pgUndefinedTable    = "42P01"
)

// clasificar maps a raw GORM / pgx error onto the store categories.
func clasificar(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", ErrNoEncontrado, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %w", ErrDuplicado, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTiempoAgotado, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %w", ErrDuplicado, err)
	}
	return fmt.Errorf("%w: %w", ErrTransporte, err)
}

// clasificarProcedimiento is clasificar for server-side procedure calls:
// a missing function is "unavailable" and any other error raised by the
// database while running it is "failed". Timeouts, transport errors and
// unique violations keep their own category.
func clasificarProcedimiento(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTiempoAgotado, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %w", ErrDuplicado, err)
		case pgUndefinedFunction, pgUndefinedTable:
			return fmt.Errorf("%w: %w", ErrProcedimientoNoDisponible, err)
		default:
			return fmt.Errorf("%w: %w", ErrProcedimientoFallido, err)
		}
	}
	return clasificar(err)
}

// CodigoCausa returns a short, stable code for a classified store error.
// It is what PersistenceError exposes as its underlying cause code.
func CodigoCausa(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoEncontrado):
		return "no_encontrado"
	case errors.Is(err, ErrDuplicado):
		return "restriccion_unicidad"
	case errors.Is(err, ErrProcedimientoNoDisponible):
		return "procedimiento_no_disponible"
	case errors.Is(err, ErrProcedimientoFallido):
		return "procedimiento_fallido"
	case errors.Is(err, ErrTiempoAgotado):
		return "tiempo_agotado"
	default:
		return "transporte"
	}
}

// conn bundles the DB handle with the per-call deadline every repository
// applies before touching the store.
type conn struct {
	db      *gorm.DB
	timeout time.Duration
}

func (c conn) ctx(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if c.timeout <= 0 {
		return c.db.WithContext(ctx), func() {}
	}
	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	return c.db.WithContext(tctx), cancel
}
