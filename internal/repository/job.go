package repository

import (
	"database/sql"
	"errors"

	"finetuner/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ErrStaleJobStatus reports that a conditional status update matched no row:
// the job's persisted status is no longer the one the caller observed, so the
// transition was lost to a concurrent writer.
var ErrStaleJobStatus = errors.New("job status changed concurrently")

// JobRepository persists fine-tuning jobs. Status and its companion fields
// always update together so a transition is never partially applied.
type JobRepository interface {
	CreateJob(job *models.FineTuningJob) error
	GetJobByID(id string) (*models.FineTuningJob, error)
	GetJobs(limit int) ([]*models.FineTuningJob, error)
	// GetActiveJobs returns jobs that still need status polling.
	GetActiveJobs() ([]*models.FineTuningJob, error)
	// UpdateJobStatus writes the job's status together with the fields a
	// transition carries (counts, provider ids, error message, timestamps).
	// The update only applies while the persisted status still equals prev;
	// otherwise ErrStaleJobStatus is returned and the row is untouched, so a
	// caller holding a stale copy can never move a job out of a terminal
	// state.
	UpdateJobStatus(job *models.FineTuningJob, prev models.JobStatus) error
}

type jobRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewJobRepository(db *sqlx.DB, logger *zap.Logger) JobRepository {
	return &jobRepository{db: db, logger: logger}
}

const jobColumns = `id, job_name, model_type, base_model, status, training_data_count,
	hyperparameters, provider_job_id, fine_tuned_model_id, error_message, created_at, completed_at`

func (r *jobRepository) CreateJob(job *models.FineTuningJob) error {
	query := `
		INSERT INTO fine_tuning_jobs (
			id, job_name, model_type, base_model, status, training_data_count, hyperparameters
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	return r.db.QueryRow(
		query,
		job.ID,
		job.JobName,
		job.ModelType,
		job.BaseModel,
		job.Status,
		job.TrainingDataCount,
		job.Hyperparameters,
	).Scan(&job.CreatedAt)
}

func (r *jobRepository) GetJobByID(id string) (*models.FineTuningJob, error) {
	var job models.FineTuningJob
	query := `SELECT ` + jobColumns + ` FROM fine_tuning_jobs WHERE id = $1`
	err := r.db.Get(&job, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Job not found
		}
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) GetJobs(limit int) ([]*models.FineTuningJob, error) {
	var jobs []*models.FineTuningJob
	query := `SELECT ` + jobColumns + ` FROM fine_tuning_jobs ORDER BY created_at DESC LIMIT $1`
	err := r.db.Select(&jobs, query, limit)
	return jobs, err
}

func (r *jobRepository) GetActiveJobs() ([]*models.FineTuningJob, error) {
	var jobs []*models.FineTuningJob
	query := `SELECT ` + jobColumns + ` FROM fine_tuning_jobs
		WHERE status IN ($1, $2) AND provider_job_id IS NOT NULL
		ORDER BY created_at`
	err := r.db.Select(&jobs, query, models.JobStatusDataUploaded, models.JobStatusTraining)
	return jobs, err
}

func (r *jobRepository) UpdateJobStatus(job *models.FineTuningJob, prev models.JobStatus) error {
	query := `
		UPDATE fine_tuning_jobs
		SET status = $1,
		    training_data_count = $2,
		    provider_job_id = $3,
		    fine_tuned_model_id = $4,
		    error_message = $5,
		    completed_at = $6
		WHERE id = $7 AND status = $8
	`
	res, err := r.db.Exec(
		query,
		job.Status,
		job.TrainingDataCount,
		job.ProviderJobID,
		job.FineTunedModelID,
		job.ErrorMessage,
		job.CompletedAt,
		job.ID,
		prev,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStaleJobStatus
	}
	return nil
}
