package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"finetuner/internal/models"
	"finetuner/internal/orchestrator"
	"finetuner/internal/repository"

	"go.uber.org/zap"
)

// Config holds the trigger thresholds and the model identity new jobs are
// created with. Zero values take the defaults.
type Config struct {
	TriggerConfidence   float64 `yaml:"trigger_confidence"`
	MinimumJobThreshold int     `yaml:"minimum_job_threshold"`
	ModelType           string  `yaml:"model_type"`
	BaseModel           string  `yaml:"base_model"`
}

func (c Config) withDefaults() Config {
	if c.TriggerConfidence == 0 {
		c.TriggerConfidence = 0.5
	}
	if c.MinimumJobThreshold == 0 {
		c.MinimumJobThreshold = 50
	}
	if c.ModelType == "" {
		c.ModelType = "threat-analysis"
	}
	if c.BaseModel == "" {
		c.BaseModel = "base-chat-v1"
	}
	return c
}

// TriggerReport is what one CheckAndTrigger invocation observed and did.
type TriggerReport struct {
	QualifyingCount int     `json:"qualifying_count"`
	Threshold       int     `json:"threshold"`
	Triggered       bool    `json:"triggered"`
	JobID           string  `json:"job_id,omitempty"`
	JobStatus       string  `json:"job_status,omitempty"`
	ErrorMessage    *string `json:"error_message,omitempty"`
}

// TriggerScheduler decides when enough qualifying data has accumulated to
// start a new fine-tuning job. It is invoked on an external cadence and is a
// reporting no-op below the threshold.
type TriggerScheduler struct {
	classRepo    repository.ClassificationRepository
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger
	cfg          Config

	// mu serializes concurrent invocations in this process so two callers
	// never both pass the threshold check against the same unclaimed record
	// set. Across processes the storage-level claim remains the guard.
	mu sync.Mutex
}

func New(
	classRepo repository.ClassificationRepository,
	orch *orchestrator.Orchestrator,
	logger *zap.Logger,
	cfg Config,
) *TriggerScheduler {
	return &TriggerScheduler{
		classRepo:    classRepo,
		orchestrator: orch,
		logger:       logger,
		cfg:          cfg.withDefaults(),
	}
}

// CheckAndTrigger counts qualifying unclaimed classification records and, at
// or above the threshold, drives exactly one job through creation, batch
// assembly, and submission. Below the threshold it reports the count and
// does nothing.
func (s *TriggerScheduler) CheckAndTrigger(ctx context.Context) (*TriggerReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, err := s.classRepo.CountQualifyingUnclaimed(s.cfg.TriggerConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to count qualifying records: %w", err)
	}

	report := &TriggerReport{
		QualifyingCount: count,
		Threshold:       s.cfg.MinimumJobThreshold,
	}

	if count < s.cfg.MinimumJobThreshold {
		s.logger.Info("Below training trigger threshold, nothing to do",
			zap.Int("qualifying_count", count),
			zap.Int("threshold", s.cfg.MinimumJobThreshold))
		return report, nil
	}

	job, err := s.orchestrator.CreateJob(ctx, s.cfg.ModelType, s.cfg.BaseModel)
	if err != nil {
		return report, err
	}
	report.Triggered = true
	report.JobID = job.ID

	if err := s.runJob(ctx, job); err != nil {
		// The job carries its own FAILED status and message; the trigger
		// itself has done its work.
		s.logger.Error("Triggered job did not reach submission",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
	report.JobStatus = string(job.Status)
	report.ErrorMessage = job.ErrorMessage
	return report, nil
}

func (s *TriggerScheduler) runJob(ctx context.Context, job *models.FineTuningJob) error {
	if err := s.orchestrator.AssembleBatch(ctx, job); err != nil {
		if errors.Is(err, orchestrator.ErrInsufficientExamples) {
			return err
		}
		return fmt.Errorf("batch assembly failed: %w", err)
	}
	if err := s.orchestrator.Submit(ctx, job); err != nil {
		return fmt.Errorf("submission failed: %w", err)
	}
	s.logger.Info("Training job triggered and submitted",
		zap.String("job_id", job.ID),
		zap.Int("training_data_count", job.TrainingDataCount))
	return nil
}
