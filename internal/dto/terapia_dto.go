package dto

import "github.com/shopspring/decimal"

// AsignarTerapiaRequest creates one tracking unit per user for a therapy.
type AsignarTerapiaRequest struct {
	TerapiaID           string   `json:"terapia_id"           validate:"required,uuid"`
	UsuarioIDs          []string `json:"usuario_ids"          validate:"required,min=1,dive,uuid"`
	FechaInicio         string   `json:"fecha_inicio"         validate:"required,datetime=2006-01-02"`
	FechaFin            string   `json:"fecha_fin"            validate:"required,datetime=2006-01-02"`
	SesionesProgramadas int      `json:"sesiones_programadas" validate:"min=0"`
	Notas               *string  `json:"notas"`
}

type AsignacionTerapiaResponse struct {
	AsignacionID string `json:"asignacion_id"`
	AsignacionMasivaResponse
}

type ActualizarProgresoRequest struct {
	Progreso            int     `json:"progreso"             validate:"min=0,max=100"`
	SesionesCompletadas *int    `json:"sesiones_completadas" validate:"omitempty,min=0"`
	Notas               *string `json:"notas"`
}

type ProgresoResponse struct {
	ID                    string          `json:"id"`
	AsignacionID          string          `json:"asignacion_id"`
	UsuarioID             string          `json:"usuario_id"`
	TerapiaID             string          `json:"terapia_id"`
	Progreso              int             `json:"progreso"`
	EstadoIndividual      string          `json:"estado_individual"`
	FechaInicioProgramada string          `json:"fecha_inicio_programada"`
	FechaFinProgramada    string          `json:"fecha_fin_programada"`
	FechaInicioReal       *string         `json:"fecha_inicio_real,omitempty"`
	FechaFinReal          *string         `json:"fecha_fin_real,omitempty"`
	SesionesCompletadas   int             `json:"sesiones_completadas"`
	SesionesProgramadas   int             `json:"sesiones_programadas"`
	Adherencia            decimal.Decimal `json:"adherencia"`
	EstadoTemporal        string          `json:"estado_temporal"`
	DiasRestantes         int             `json:"dias_restantes"`
}
