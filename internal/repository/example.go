package repository

import (
	"finetuner/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ExampleRepository persists training examples. Examples are append-only and
// belong to exactly one job.
type ExampleRepository interface {
	SaveExamples(jobID string, examples []models.TrainingExample) error
	GetExamplesByJob(jobID string) ([]*models.TrainingExample, error)
}

type exampleRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewExampleRepository(db *sqlx.DB, logger *zap.Logger) ExampleRepository {
	return &exampleRepository{db: db, logger: logger}
}

func (r *exampleRepository) SaveExamples(jobID string, examples []models.TrainingExample) error {
	if len(examples) == 0 {
		return nil
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO training_examples (
			job_id, conversation_id, system_prompt, user_message,
			assistant_response, quality_score, threat_category
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, ex := range examples {
		if _, err := tx.Exec(
			query,
			jobID,
			ex.ConversationID,
			ex.SystemPrompt,
			ex.UserMessage,
			ex.AssistantResponse,
			ex.QualityScore,
			ex.ThreatCategory,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *exampleRepository) GetExamplesByJob(jobID string) ([]*models.TrainingExample, error) {
	var examples []*models.TrainingExample
	query := `SELECT id, job_id, conversation_id, system_prompt, user_message,
			assistant_response, quality_score, threat_category, created_at
		FROM training_examples WHERE job_id = $1 ORDER BY id`
	err := r.db.Select(&examples, query, jobID)
	return examples, err
}
