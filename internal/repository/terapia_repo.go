package repository

import (
	"context"
	"time"

	"clinica/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TerapiaRepository interface {
	// CreateAsignacion inserts the parent row and all its tracking units in
	// one transaction.
	CreateAsignacion(ctx context.Context, a *model.AsignacionTerapia, unidades []model.ProgresoTerapia) error
	FindProgresoByID(ctx context.Context, id uuid.UUID) (*model.ProgresoTerapia, error)
	// UpdateProgreso writes the progress columns of p unless the unit was
	// abandoned meanwhile. Actual start/end stamps already in the row win
	// over p's, and p is refreshed from the stored row. Returns false when
	// nothing was updated.
	UpdateProgreso(ctx context.Context, p *model.ProgresoTerapia) (bool, error)
	// AbandonarProgreso marks the unit abandonada if it is neither abandoned
	// nor completed.
	AbandonarProgreso(ctx context.Context, id uuid.UUID) (bool, error)
	ListProgresoByAsignacion(ctx context.Context, asignacionID uuid.UUID) ([]model.ProgresoTerapia, error)
	ListProgresoByUsuario(ctx context.Context, usuarioID uuid.UUID) ([]model.ProgresoTerapia, error)
}

type terapiaRepo struct{ conn }

func NewTerapiaRepository(db *gorm.DB, timeout time.Duration) TerapiaRepository {
	return &terapiaRepo{conn{db: db, timeout: timeout}}
}

func (r *terapiaRepo) CreateAsignacion(ctx context.Context, a *model.AsignacionTerapia, unidades []model.ProgresoTerapia) error {
	db, cancel := r.ctx(ctx)
	defer cancel()
	return clasificar(db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Unidades").Create(a).Error; err != nil {
			return err
		}
		for i := range unidades {
			unidades[i].AsignacionID = a.ID
		}
		if len(unidades) == 0 {
			return nil
		}
		return tx.CreateInBatches(unidades, 100).Error
	}))
}

func (r *terapiaRepo) FindProgresoByID(ctx context.Context, id uuid.UUID) (*model.ProgresoTerapia, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	var p model.ProgresoTerapia
	if err := db.First(&p, "id = ?", id).Error; err != nil {
		return nil, clasificar(err)
	}
	return &p, nil
}

func (r *terapiaRepo) UpdateProgreso(ctx context.Context, p *model.ProgresoTerapia) (bool, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()

	// fecha_fin_real is cleared when progress drops below 100; otherwise both
	// stamps keep the first value written.
	var fin interface{}
	if p.FechaFinReal != nil {
		fin = gorm.Expr("COALESCE(fecha_fin_real, ?)", *p.FechaFinReal)
	}
	inicio := gorm.Expr("fecha_inicio_real")
	if p.FechaInicioReal != nil {
		inicio = gorm.Expr("COALESCE(fecha_inicio_real, ?)", *p.FechaInicioReal)
	}

	res := db.Model(p).
		Clauses(clause.Returning{}).
		Where("estado_individual <> ?", model.ProgresoAbandonada).
		Updates(map[string]interface{}{
			"progreso":             p.Progreso,
			"estado_individual":    p.EstadoIndividual,
			"sesiones_completadas": p.SesionesCompletadas,
			"adherencia":           p.Adherencia,
			"notas":                p.Notas,
			"fecha_inicio_real":    inicio,
			"fecha_fin_real":       fin,
		})
	if res.Error != nil {
		return false, clasificar(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *terapiaRepo) AbandonarProgreso(ctx context.Context, id uuid.UUID) (bool, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	res := db.Model(&model.ProgresoTerapia{}).
		Where("id = ? AND estado_individual NOT IN ?", id, []string{model.ProgresoAbandonada, model.ProgresoCompletada}).
		Update("estado_individual", model.ProgresoAbandonada)
	if res.Error != nil {
		return false, clasificar(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *terapiaRepo) ListProgresoByAsignacion(ctx context.Context, asignacionID uuid.UUID) ([]model.ProgresoTerapia, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	var ps []model.ProgresoTerapia
	err := db.Where("asignacion_id = ?", asignacionID).Order("created_at ASC").Find(&ps).Error
	return ps, clasificar(err)
}

func (r *terapiaRepo) ListProgresoByUsuario(ctx context.Context, usuarioID uuid.UUID) ([]model.ProgresoTerapia, error) {
	db, cancel := r.ctx(ctx)
	defer cancel()
	var ps []model.ProgresoTerapia
	err := db.Where("usuario_id = ?", usuarioID).Order("fecha_inicio_programada DESC").Find(&ps).Error
	return ps, clasificar(err)
}
