package infra

import (
	"fmt"

	"clinica/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate
// for the entitlement tables, then applies the idempotent SQL patches GORM
// cannot express (the partial unique index and the assignment procedure).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates / updates all tables and applies schema patches.
// Also used by the integration tests against a throwaway Postgres.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Usuario{},
		&model.Paquete{},
		&model.ReglaDescuento{},
		&model.Compra{},
		&model.UsuarioPaquete{},
		&model.SeguimientoSesion{},
		&model.AsignacionTerapia{},
		&model.ProgresoTerapia{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL statements. Each one uses
// IF NOT EXISTS / CREATE OR REPLACE so re-running on a patched DB is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		// A user may hold at most one active entitlement per package. The
		// service pre-checks this, but two concurrent assignments can both pass
		// the check; this index is what actually rejects the second insert.
		{"partial unique index usuario_paquetes activo", `
CREATE UNIQUE INDEX IF NOT EXISTS ux_usuario_paquetes_activo
    ON usuario_paquetes (usuario_id, paquete_id)
    WHERE estado = 'activo'`},
		{"check sesiones_utilizadas <= sesiones_totales", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_usuario_paquetes_sesiones') THEN
    ALTER TABLE usuario_paquetes
      ADD CONSTRAINT chk_usuario_paquetes_sesiones
      CHECK (sesiones_utilizadas >= 0 AND sesiones_utilizadas <= sesiones_totales);
  END IF;
END $$`},
		{"check progreso_terapias progreso", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_progreso_terapias_progreso') THEN
    ALTER TABLE progreso_terapias
      ADD CONSTRAINT chk_progreso_terapias_progreso
      CHECK (progreso >= 0 AND progreso <= 100);
  END IF;
END $$`},
		{"check progreso_terapias estado_individual", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_progreso_terapias_estado') THEN
    ALTER TABLE progreso_terapias
      ADD CONSTRAINT chk_progreso_terapias_estado
      CHECK (estado_individual IN ('pendiente', 'en_progreso', 'completada', 'abandonada'));
  END IF;
END $$`},
		{"check estado_compra", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_compras_paquetes_estado') THEN
    ALTER TABLE compras_paquetes
      ADD CONSTRAINT chk_compras_paquetes_estado
      CHECK (estado_compra IN ('pendiente', 'validada', 'rechazada', 'cancelada'));
  END IF;
END $$`},
		{"partial index compras validadas sin asignar", `
CREATE INDEX IF NOT EXISTS idx_compras_paquetes_sin_asignar
    ON compras_paquetes (created_at)
    WHERE estado_compra = 'validada' AND asignacion_completada = false`},
		// Primary assignment strategy: checks + insert + per-session rows in
		// one transaction. Business outcomes come back as (exito, codigo);
		// only genuine failures raise.
		{"function asignar_paquete_usuario", `
CREATE OR REPLACE FUNCTION asignar_paquete_usuario(
    p_usuario_id        uuid,
    p_paquete_id        uuid,
    p_precio            numeric,
    p_descuento         numeric,
    p_fecha_inicio      date,
    p_asignado_por      uuid,
    p_metodo_pago       text,
    p_compra_id         uuid,
    p_fisioterapeuta_id uuid,
    p_notas             text,
    p_vigencia_meses    int
) RETURNS TABLE (exito boolean, codigo text, usuario_paquete_id uuid, mensaje text)
LANGUAGE plpgsql AS $fn$
DECLARE
    v_sesiones int;
    v_id       uuid;
BEGIN
    SELECT p.numero_sesiones INTO v_sesiones
      FROM paquetes p WHERE p.id = p_paquete_id AND p.activo;
    IF NOT FOUND THEN
        RETURN QUERY SELECT false, 'paquete_no_encontrado'::text, NULL::uuid, 'Paquete no encontrado o inactivo'::text;
        RETURN;
    END IF;

    PERFORM 1 FROM usuarios u WHERE u.id = p_usuario_id AND u.activo;
    IF NOT FOUND THEN
        RETURN QUERY SELECT false, 'usuario_no_encontrado'::text, NULL::uuid, 'Usuario no encontrado o inactivo'::text;
        RETURN;
    END IF;

    PERFORM 1 FROM usuario_paquetes up
      WHERE up.usuario_id = p_usuario_id AND up.paquete_id = p_paquete_id AND up.estado = 'activo';
    IF FOUND THEN
        RETURN QUERY SELECT false, 'duplicado'::text, NULL::uuid, 'El usuario ya tiene este paquete activo'::text;
        RETURN;
    END IF;

    INSERT INTO usuario_paquetes (
        usuario_id, paquete_id, fecha_inicio, fecha_fin, fecha_compra,
        precio_pagado, descuento_aplicado, metodo_pago, estado,
        sesiones_totales, sesiones_utilizadas, fisioterapeuta_id, compra_id,
        asignado_por, notas, created_at, updated_at)
    VALUES (
        p_usuario_id, p_paquete_id, p_fecha_inicio,
        (p_fecha_inicio + make_interval(months => p_vigencia_meses))::date, now(),
        p_precio, COALESCE(p_descuento, 0), p_metodo_pago, 'activo',
        v_sesiones, 0, p_fisioterapeuta_id, p_compra_id,
        p_asignado_por, p_notas, now(), now())
    RETURNING id INTO v_id;

    INSERT INTO seguimiento_sesiones (usuario_paquete_id, numero_sesion, estado, created_at)
    SELECT v_id, g, 'pendiente', now() FROM generate_series(1, v_sesiones) AS g;

    RETURN QUERY SELECT true, 'ok'::text, v_id, 'Paquete asignado correctamente'::text;
EXCEPTION WHEN unique_violation THEN
    RETURN QUERY SELECT false, 'duplicado'::text, NULL::uuid, 'El usuario ya tiene este paquete activo'::text;
END
$fn$`},
	}

	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
