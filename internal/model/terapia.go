package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ProgresoPendiente  = "pendiente"
	ProgresoEnProgreso = "en_progreso"
	ProgresoCompletada = "completada"
	ProgresoAbandonada = "abandonada"
)

// AsignacionTerapia groups the tracking units created when one therapy is
// assigned to several users at once.
type AsignacionTerapia struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TerapiaID             uuid.UUID `gorm:"type:uuid;not null;index"`
	AsignadoPor           uuid.UUID `gorm:"type:uuid;not null"`
	FechaInicioProgramada time.Time `gorm:"type:date;not null"`
	FechaFinProgramada    time.Time `gorm:"type:date;not null"`
	SesionesProgramadas   int       `gorm:"not null;default:0"`
	Notas                 *string
	CreatedAt             time.Time

	Unidades []ProgresoTerapia `gorm:"foreignKey:AsignacionID"`
}

func (AsignacionTerapia) TableName() string { return "asignaciones_terapias" }

// ProgresoTerapia is one user's tracking unit under an AsignacionTerapia.
// Progreso is 0..100; FechaInicioReal is stamped the first time progress
// leaves 0 and FechaFinReal when it reaches 100.
type ProgresoTerapia struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AsignacionID          uuid.UUID `gorm:"type:uuid;not null;index"`
	UsuarioID             uuid.UUID `gorm:"type:uuid;not null;index"`
	TerapiaID             uuid.UUID `gorm:"type:uuid;not null"`
	Progreso              int       `gorm:"not null;default:0;check:progreso >= 0 AND progreso <= 100"`
	EstadoIndividual      string    `gorm:"type:varchar(20);not null;default:'pendiente'"`
	FechaInicioProgramada time.Time `gorm:"type:date;not null"`
	FechaFinProgramada    time.Time `gorm:"type:date;not null"`
	FechaInicioReal       *time.Time
	FechaFinReal          *time.Time
	SesionesCompletadas   int             `gorm:"not null;default:0"`
	SesionesProgramadas   int             `gorm:"not null;default:0"`
	Adherencia            decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	Notas                 *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (ProgresoTerapia) TableName() string { return "progreso_terapias" }
