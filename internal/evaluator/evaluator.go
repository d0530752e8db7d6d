package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finetuner/internal/finetune_client"
	"finetuner/internal/models"
	"finetuner/internal/repository"

	"go.uber.org/zap"
)

// evalSystemPrompt asks the fine-tuned model to answer with a bare category
// name so its output is comparable to the recorded classification.
const evalSystemPrompt = "You are a security analysis assistant. " +
	"Classify the following conversation and respond with only the threat category name."

// ModelInvoker invokes a fine-tuned model with a message sequence.
type ModelInvoker interface {
	Complete(ctx context.Context, modelID string, messages []finetune_client.ChatMessage) (string, error)
}

// CompareFunc decides whether a model prediction matches the recorded threat
// category.
type CompareFunc func(predicted, expected string) bool

// ExactMatch is the default comparison: the prediction must equal the
// recorded category, ignoring surrounding whitespace and letter case.
func ExactMatch(predicted, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(predicted), strings.TrimSpace(expected))
}

// Config bounds the held-out sample. Zero values take the defaults.
type Config struct {
	MinConfidence float64 `yaml:"min_confidence"`
	SampleSize    int     `yaml:"sample_size"`
}

func (c Config) withDefaults() Config {
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.8
	}
	if c.SampleSize == 0 {
		c.SampleSize = 20
	}
	return c
}

// Evaluator scores a completed fine-tuned model against held-out
// high-confidence conversations and appends one performance record per run.
type Evaluator struct {
	classRepo repository.ClassificationRepository
	convRepo  repository.ConversationRepository
	perfRepo  repository.PerformanceRepository
	invoker   ModelInvoker
	compare   CompareFunc
	logger    *zap.Logger
	cfg       Config
}

func New(
	classRepo repository.ClassificationRepository,
	convRepo repository.ConversationRepository,
	perfRepo repository.PerformanceRepository,
	invoker ModelInvoker,
	compare CompareFunc,
	logger *zap.Logger,
	cfg Config,
) *Evaluator {
	if compare == nil {
		compare = ExactMatch
	}
	return &Evaluator{
		classRepo: classRepo,
		convRepo:  convRepo,
		perfRepo:  perfRepo,
		invoker:   invoker,
		compare:   compare,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
}

// Evaluate invokes the model against a bounded held-out sample and persists
// an accuracy record. When the sample is empty the evaluation is skipped and
// no record is written; the returned record is nil.
func (e *Evaluator) Evaluate(ctx context.Context, modelID string) (*models.PerformanceRecord, error) {
	records, err := e.classRepo.GetHeldOutRecords(e.cfg.MinConfidence, e.cfg.SampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load held-out records: %w", err)
	}
	if len(records) == 0 {
		e.logger.Info("No held-out conversations available, skipping evaluation",
			zap.String("model_id", modelID))
		return nil, nil
	}

	correct := 0
	total := 0
	for _, rec := range records {
		if rec.ThreatCategory == nil {
			continue
		}
		conv, err := e.convRepo.GetConversationByID(rec.ConversationID)
		if err != nil || conv == nil {
			e.logger.Warn("Failed to load held-out conversation",
				zap.Int64("conversation_id", rec.ConversationID),
				zap.Error(err))
			continue
		}

		predicted, err := e.invoker.Complete(ctx, modelID, evalMessages(conv))
		if err != nil {
			e.logger.Warn("Model invocation failed for held-out conversation",
				zap.Int64("conversation_id", rec.ConversationID),
				zap.Error(err))
			continue
		}

		total++
		if e.compare(predicted, *rec.ThreatCategory) {
			correct++
		}
	}

	if total == 0 {
		e.logger.Info("No held-out predictions obtained, skipping evaluation",
			zap.String("model_id", modelID))
		return nil, nil
	}

	record := &models.PerformanceRecord{
		ModelID:        modelID,
		EvaluationType: "accuracy",
		Score:          float64(correct) / float64(total),
		TestDataSize:   total,
		EvaluationDate: time.Now().UTC(),
	}
	if err := e.perfRepo.SavePerformanceRecord(record); err != nil {
		return nil, fmt.Errorf("failed to persist performance record: %w", err)
	}

	e.logger.Info("Model evaluation recorded",
		zap.String("model_id", modelID),
		zap.Float64("score", record.Score),
		zap.Int("test_data_size", record.TestDataSize))
	return record, nil
}

func evalMessages(conv *models.Conversation) []finetune_client.ChatMessage {
	messages := make([]finetune_client.ChatMessage, 0, len(conv.Messages)+1)
	messages = append(messages, finetune_client.ChatMessage{
		Role:    models.RoleSystem,
		Content: evalSystemPrompt,
	})
	for _, msg := range conv.Messages {
		if msg.Role == models.RoleSystem {
			continue
		}
		messages = append(messages, finetune_client.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	return messages
}
