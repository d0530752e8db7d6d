package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a fine-tuning job.
type JobStatus string

const (
	JobStatusPreparing    JobStatus = "PREPARING"
	JobStatusDataUploaded JobStatus = "DATA_UPLOADED"
	JobStatusTraining     JobStatus = "TRAINING"
	JobStatusCompleted    JobStatus = "COMPLETED"
	JobStatusFailed       JobStatus = "FAILED"
)

// IsTerminal reports whether no further transitions may leave the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether moving from s to next is a legal state
// change. Progress is monotonic; FAILED is reachable from every non-terminal
// state.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == JobStatusFailed {
		return true
	}
	switch s {
	case JobStatusPreparing:
		return next == JobStatusDataUploaded
	case JobStatusDataUploaded:
		return next == JobStatusTraining
	case JobStatusTraining:
		return next == JobStatusCompleted
	}
	return false
}

// FineTuningJob tracks one external model-training run end to end.
type FineTuningJob struct {
	ID                string          `db:"id" json:"id"`
	JobName           string          `db:"job_name" json:"job_name"`
	ModelType         string          `db:"model_type" json:"model_type"`
	BaseModel         string          `db:"base_model" json:"base_model"`
	Status            JobStatus       `db:"status" json:"status"`
	TrainingDataCount int             `db:"training_data_count" json:"training_data_count"`
	Hyperparameters   json.RawMessage `db:"hyperparameters" json:"hyperparameters,omitempty"`
	ProviderJobID     *string         `db:"provider_job_id" json:"provider_job_id,omitempty"`
	FineTunedModelID  *string         `db:"fine_tuned_model_id" json:"fine_tuned_model_id,omitempty"`
	ErrorMessage      *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	CompletedAt       *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// TrainingExample is one fine-tuning unit derived from a claimed
// conversation. Examples are immutable and belong to exactly one job.
type TrainingExample struct {
	ID                int64     `db:"id" json:"id"`
	JobID             string    `db:"job_id" json:"job_id"`
	ConversationID    int64     `db:"conversation_id" json:"conversation_id"`
	SystemPrompt      string    `db:"system_prompt" json:"system_prompt"`
	UserMessage       string    `db:"user_message" json:"user_message"`
	AssistantResponse string    `db:"assistant_response" json:"assistant_response"`
	QualityScore      float64   `db:"quality_score" json:"quality_score"`
	ThreatCategory    *string   `db:"threat_category" json:"threat_category,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
