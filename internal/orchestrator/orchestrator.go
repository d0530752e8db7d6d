package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"finetuner/internal/finetune_client"
	"finetuner/internal/formatter"
	"finetuner/internal/models"
	"finetuner/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInsufficientExamples is returned when batch assembly produced fewer
// valid examples than the configured minimum. The job has already been
// transitioned to FAILED when this is returned.
var ErrInsufficientExamples = errors.New("not enough valid training examples")

// Provider is the external fine-tuning service as consumed by the
// orchestrator.
type Provider interface {
	UploadTrainingFile(ctx context.Context, filename string, examples []models.TrainingExample) (string, error)
	CreateJob(ctx context.Context, fileID, baseModel string, hyperparameters json.RawMessage) (*finetune_client.JobResponse, error)
	GetJobStatus(ctx context.Context, providerJobID string) (*finetune_client.JobResponse, error)
}

// Config bounds batch assembly. Zero values take the defaults.
type Config struct {
	MaxBatchSize     int     `yaml:"max_batch_size"`
	MinValidExamples int     `yaml:"min_valid_examples"`
	ClaimConfidence  float64 `yaml:"claim_confidence"`
	PollTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = 100
	}
	if c.MinValidExamples == 0 {
		c.MinValidExamples = 10
	}
	if c.ClaimConfidence == 0 {
		c.ClaimConfidence = 0.5
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = 30 * time.Second
	}
	return c
}

// defaultHyperparameters is submitted with every job unless overridden at
// creation time.
var defaultHyperparameters = json.RawMessage(`{"n_epochs": 3}`)

// Orchestrator owns the fine-tuning job state machine: PREPARING ->
// DATA_UPLOADED -> TRAINING -> COMPLETED, with FAILED reachable from every
// non-terminal state. Transitions for the same job are serialized; different
// jobs proceed independently.
type Orchestrator struct {
	jobRepo     repository.JobRepository
	classRepo   repository.ClassificationRepository
	convRepo    repository.ConversationRepository
	exampleRepo repository.ExampleRepository
	provider    Provider
	logger      *zap.Logger
	cfg         Config

	jobLocks sync.Map // job id -> *sync.Mutex
}

func New(
	jobRepo repository.JobRepository,
	classRepo repository.ClassificationRepository,
	convRepo repository.ConversationRepository,
	exampleRepo repository.ExampleRepository,
	provider Provider,
	logger *zap.Logger,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		jobRepo:     jobRepo,
		classRepo:   classRepo,
		convRepo:    convRepo,
		exampleRepo: exampleRepo,
		provider:    provider,
		logger:      logger,
		cfg:         cfg.withDefaults(),
	}
}

func (o *Orchestrator) lockJob(jobID string) func() {
	v, _ := o.jobLocks.LoadOrStore(jobID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateJob allocates a new job in PREPARING.
func (o *Orchestrator) CreateJob(ctx context.Context, modelType, baseModel string) (*models.FineTuningJob, error) {
	job := &models.FineTuningJob{
		ID:              uuid.NewString(),
		JobName:         fmt.Sprintf("security-%s-%s", modelType, time.Now().UTC().Format("20060102-150405")),
		ModelType:       modelType,
		BaseModel:       baseModel,
		Status:          models.JobStatusPreparing,
		Hyperparameters: defaultHyperparameters,
	}
	if err := o.jobRepo.CreateJob(job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	o.logger.Info("Fine-tuning job created",
		zap.String("job_id", job.ID),
		zap.String("job_name", job.JobName),
		zap.String("base_model", baseModel))
	return job, nil
}

// AssembleBatch atomically claims a bounded set of qualifying unclaimed
// classification records, formats their conversations into training
// examples, and attaches the valid ones to the job. A claim that returns
// fewer records than requested is a normal race outcome. If fewer than
// MinValidExamples valid examples result, the job transitions to FAILED and
// ErrInsufficientExamples is returned.
func (o *Orchestrator) AssembleBatch(ctx context.Context, job *models.FineTuningJob) error {
	unlock := o.lockJob(job.ID)
	defer unlock()

	if job.Status != models.JobStatusPreparing {
		return fmt.Errorf("cannot assemble batch for job %s in status %s", job.ID, job.Status)
	}

	records, err := o.classRepo.ClaimBatch(job.ID, o.cfg.ClaimConfidence, o.cfg.MaxBatchSize)
	if err != nil {
		o.fail(job, fmt.Sprintf("failed to claim classification records: %v", err))
		return fmt.Errorf("failed to claim classification records: %w", err)
	}
	o.logger.Info("Claimed classification records",
		zap.String("job_id", job.ID),
		zap.Int("claimed", len(records)))

	conversationIDs := make([]int64, 0, len(records))
	for _, rec := range records {
		conversationIDs = append(conversationIDs, rec.ConversationID)
	}
	conversations, err := o.convRepo.GetConversationsByIDs(conversationIDs)
	if err != nil {
		o.fail(job, fmt.Sprintf("failed to load claimed conversations: %v", err))
		return fmt.Errorf("failed to load claimed conversations: %w", err)
	}

	var examples []models.TrainingExample
	for _, rec := range records {
		conv, ok := conversations[rec.ConversationID]
		if !ok {
			o.logger.Warn("Claimed record references missing conversation",
				zap.String("job_id", job.ID),
				zap.Int64("conversation_id", rec.ConversationID))
			continue
		}
		examples = append(examples, formatter.FormatConversation(conv, rec)...)
	}

	report := formatter.ValidateBatch(examples)
	for _, verr := range report.Errors {
		o.logger.Debug("Training example rejected",
			zap.String("job_id", job.ID),
			zap.String("reason", verr.Error()))
	}

	if len(report.Valid) < o.cfg.MinValidExamples {
		msg := fmt.Sprintf("insufficient training data: %d valid examples after formatting, minimum is %d",
			len(report.Valid), o.cfg.MinValidExamples)
		if err := o.fail(job, msg); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrInsufficientExamples, msg)
	}

	if err := o.exampleRepo.SaveExamples(job.ID, report.Valid); err != nil {
		o.fail(job, fmt.Sprintf("failed to persist training examples: %v", err))
		return fmt.Errorf("failed to persist training examples: %w", err)
	}
	job.TrainingDataCount = len(report.Valid)

	o.logger.Info("Training batch assembled",
		zap.String("job_id", job.ID),
		zap.Int("valid_examples", len(report.Valid)),
		zap.Int("invalid_examples", len(report.Invalid)))
	return nil
}

// Submit hands the job's validated examples to the provider. Successful
// acceptance transitions to DATA_UPLOADED; any provider error transitions to
// FAILED with the captured message. There is no automatic retry.
func (o *Orchestrator) Submit(ctx context.Context, job *models.FineTuningJob) error {
	unlock := o.lockJob(job.ID)
	defer unlock()

	if job.Status != models.JobStatusPreparing {
		return fmt.Errorf("cannot submit job %s in status %s", job.ID, job.Status)
	}

	stored, err := o.exampleRepo.GetExamplesByJob(job.ID)
	if err != nil {
		o.fail(job, fmt.Sprintf("failed to load training examples: %v", err))
		return fmt.Errorf("failed to load training examples: %w", err)
	}
	if len(stored) == 0 {
		if err := o.fail(job, "no training examples attached to job"); err != nil {
			return err
		}
		return errors.New("no training examples attached to job")
	}
	examples := make([]models.TrainingExample, 0, len(stored))
	for _, ex := range stored {
		examples = append(examples, *ex)
	}

	fileID, err := o.provider.UploadTrainingFile(ctx, job.JobName+".jsonl", examples)
	if err != nil {
		o.fail(job, fmt.Sprintf("training file upload failed: %v", err))
		return fmt.Errorf("training file upload failed: %w", err)
	}

	providerJob, err := o.provider.CreateJob(ctx, fileID, job.BaseModel, job.Hyperparameters)
	if err != nil {
		o.fail(job, fmt.Sprintf("fine-tune submission failed: %v", err))
		return fmt.Errorf("fine-tune submission failed: %w", err)
	}

	job.ProviderJobID = &providerJob.JobID
	job.TrainingDataCount = len(examples)
	if err := o.transition(job, models.JobStatusDataUploaded); err != nil {
		return err
	}

	o.logger.Info("Training data submitted to provider",
		zap.String("job_id", job.ID),
		zap.String("provider_job_id", providerJob.JobID),
		zap.Int("training_data_count", len(examples)))
	return nil
}

// PollStatus queries the provider for job progress and maps its status onto
// the state machine. Unknown provider statuses and transport errors leave the
// recorded state unchanged; the next scheduled poll retries.
func (o *Orchestrator) PollStatus(ctx context.Context, job *models.FineTuningJob) error {
	unlock := o.lockJob(job.ID)
	defer unlock()

	if job.Status.IsTerminal() {
		return nil
	}
	if job.ProviderJobID == nil {
		return fmt.Errorf("job %s has no provider job handle", job.ID)
	}

	pollCtx, cancel := context.WithTimeout(ctx, o.cfg.PollTimeout)
	defer cancel()

	status, err := o.provider.GetJobStatus(pollCtx, *job.ProviderJobID)
	if err != nil {
		// No speculative transition on transport failure.
		return fmt.Errorf("failed to poll provider job %s: %w", *job.ProviderJobID, err)
	}

	switch status.Status {
	case finetune_client.ProviderStatusQueued, finetune_client.ProviderStatusRunning:
		if job.Status == models.JobStatusDataUploaded {
			return o.transition(job, models.JobStatusTraining)
		}
		return nil
	case finetune_client.ProviderStatusSucceeded:
		if job.Status == models.JobStatusDataUploaded {
			// The provider can finish between two polls; pass through
			// TRAINING so the recorded history stays monotonic.
			if err := o.transition(job, models.JobStatusTraining); err != nil {
				return err
			}
		}
		job.FineTunedModelID = &status.FineTunedModel
		now := time.Now().UTC()
		job.CompletedAt = &now
		if err := o.transition(job, models.JobStatusCompleted); err != nil {
			return err
		}
		o.logger.Info("Fine-tuning job completed",
			zap.String("job_id", job.ID),
			zap.String("fine_tuned_model_id", status.FineTunedModel))
		return nil
	case finetune_client.ProviderStatusFailed, finetune_client.ProviderStatusCancelled:
		msg := status.Error
		if msg == "" {
			msg = fmt.Sprintf("provider reported job as %s", status.Status)
		}
		return o.fail(job, msg)
	default:
		// Forward-compatible: retain current state for unknown statuses.
		o.logger.Warn("Unknown provider job status, retaining current state",
			zap.String("job_id", job.ID),
			zap.String("provider_status", status.Status))
		return nil
	}
}

// transition applies a legal status change and persists it together with the
// fields it carries before returning. The persisted update is conditional on
// the status this copy last observed, so a stale copy loses the race instead
// of overwriting a concurrent transition.
func (o *Orchestrator) transition(job *models.FineTuningJob, next models.JobStatus) error {
	if !job.Status.CanTransition(next) {
		return fmt.Errorf("illegal job transition %s -> %s for job %s", job.Status, next, job.ID)
	}
	prev := job.Status
	job.Status = next
	if err := o.jobRepo.UpdateJobStatus(job, prev); err != nil {
		job.Status = prev
		return fmt.Errorf("failed to persist job transition %s -> %s: %w", prev, next, err)
	}
	return nil
}

// fail moves the job to FAILED with the captured message. A persist failure
// is logged here because several callers surface a prior error instead.
func (o *Orchestrator) fail(job *models.FineTuningJob, msg string) error {
	job.ErrorMessage = &msg
	now := time.Now().UTC()
	job.CompletedAt = &now
	if err := o.transition(job, models.JobStatusFailed); err != nil {
		o.logger.Error("Failed to persist job failure",
			zap.String("job_id", job.ID),
			zap.String("error_message", msg),
			zap.Error(err))
		return err
	}
	o.logger.Error("Fine-tuning job failed",
		zap.String("job_id", job.ID),
		zap.String("error_message", msg))
	return nil
}
