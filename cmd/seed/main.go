// cmd/seed/main.go: Crea/actualiza usuarios y paquetes de demo.
// Uso: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"os"

	"clinica/internal/config"
	"clinica/internal/infra"
	"clinica/internal/model"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.DatabaseURL = dsn
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect error")
	}
	ctx := context.Background()

	usuarios := []model.Usuario{
		{Username: "admin@clinica.local", Nombre: "Admin Demo", Rol: "administrador", Activo: true},
		{Username: "fisio@clinica.local", Nombre: "Fisio Demo", Rol: "fisioterapeuta", Activo: true},
		{Username: "paciente@clinica.local", Nombre: "Paciente Demo", Rol: "usuario", Activo: true},
	}
	for i := range usuarios {
		email := usuarios[i].Username
		usuarios[i].Email = &email
	}
	if err := upsert(ctx, db, &usuarios, "username", "nombre", "email", "rol", "activo"); err != nil {
		log.Fatal().Err(err).Msg("usuarios insert error")
	}

	paquetes := []model.Paquete{
		{Nombre: "Rehabilitación 10 sesiones", Precio: decimal.NewFromInt(450), NumeroSesiones: 10, Tipo: "terapia", Activo: true},
		{Nombre: "Rutina mensual", Precio: decimal.NewFromInt(120), Descuento: decimal.NewFromInt(10), NumeroSesiones: 8, Tipo: "rutina", Activo: true},
	}
	for _, p := range paquetes {
		var n int64
		if err := db.WithContext(ctx).Model(&model.Paquete{}).Where("nombre = ?", p.Nombre).Count(&n).Error; err != nil {
			log.Fatal().Err(err).Msg("paquetes lookup error")
		}
		if n > 0 {
			continue
		}
		if err := db.WithContext(ctx).Create(&p).Error; err != nil {
			log.Fatal().Err(err).Str("paquete", p.Nombre).Msg("paquetes insert error")
		}
	}

	for _, u := range usuarios {
		fmt.Printf("✅ %-14s %s  %s\n", u.Rol, u.ID, u.Username)
	}
}

func upsert(ctx context.Context, db *gorm.DB, rows interface{}, key string, cols ...string) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: key}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(rows).Error
}
