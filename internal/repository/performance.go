package repository

import (
	"finetuner/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// PerformanceRepository appends evaluation results. Records are never
// mutated after insert.
type PerformanceRepository interface {
	SavePerformanceRecord(rec *models.PerformanceRecord) error
	GetPerformanceRecords(limit int) ([]*models.PerformanceRecord, error)
	GetPerformanceByModel(modelID string) ([]*models.PerformanceRecord, error)
}

type performanceRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewPerformanceRepository(db *sqlx.DB, logger *zap.Logger) PerformanceRepository {
	return &performanceRepository{db: db, logger: logger}
}

func (r *performanceRepository) SavePerformanceRecord(rec *models.PerformanceRecord) error {
	query := `
		INSERT INTO performance_records (
			model_id, evaluation_type, score, test_data_size, evaluation_date
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return r.db.QueryRow(
		query,
		rec.ModelID,
		rec.EvaluationType,
		rec.Score,
		rec.TestDataSize,
		rec.EvaluationDate,
	).Scan(&rec.ID)
}

func (r *performanceRepository) GetPerformanceRecords(limit int) ([]*models.PerformanceRecord, error) {
	var records []*models.PerformanceRecord
	query := `SELECT id, model_id, evaluation_type, score, test_data_size, evaluation_date
		FROM performance_records ORDER BY evaluation_date DESC LIMIT $1`
	err := r.db.Select(&records, query, limit)
	return records, err
}

func (r *performanceRepository) GetPerformanceByModel(modelID string) ([]*models.PerformanceRecord, error) {
	var records []*models.PerformanceRecord
	query := `SELECT id, model_id, evaluation_type, score, test_data_size, evaluation_date
		FROM performance_records WHERE model_id = $1 ORDER BY evaluation_date DESC`
	err := r.db.Select(&records, query, modelID)
	return records, err
}
