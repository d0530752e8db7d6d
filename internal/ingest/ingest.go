package ingest

import (
	"context"
	"sync"

	"finetuner/internal/classifier"
	"finetuner/internal/models"
	"finetuner/internal/repository"

	"go.uber.org/zap"
)

// Config sizes the classification queue. Zero values take the defaults.
type Config struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

func (c Config) withDefaults() Config {
	if c.QueueSize == 0 {
		c.QueueSize = 256
	}
	if c.Workers == 0 {
		c.Workers = 2
	}
	return c
}

// Service classifies finished conversations off the caller's path. Delivery
// is at-least-once: the chat system may report the same conversation several
// times, and classification stays idempotent because the first stored record
// wins and the classifier itself is deterministic.
type Service struct {
	convRepo   repository.ConversationRepository
	classRepo  repository.ClassificationRepository
	classifier *classifier.Classifier
	logger     *zap.Logger
	cfg        Config

	queue chan int64
	wg    sync.WaitGroup
}

func NewService(
	convRepo repository.ConversationRepository,
	classRepo repository.ClassificationRepository,
	clf *classifier.Classifier,
	logger *zap.Logger,
	cfg Config,
) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		convRepo:   convRepo,
		classRepo:  classRepo,
		classifier: clf,
		logger:     logger,
		cfg:        cfg,
		queue:      make(chan int64, cfg.QueueSize),
	}
}

// OnConversationCompleted enqueues a conversation for classification. It
// never blocks the caller: when the queue is full the submission is dropped
// with a warning and a later invocation re-enqueues the conversation.
func (s *Service) OnConversationCompleted(conversationID int64) bool {
	select {
	case s.queue <- conversationID:
		return true
	default:
		s.logger.Warn("Classification queue full, dropping submission",
			zap.Int64("conversation_id", conversationID))
		return false
	}
}

// Run starts the classification workers and blocks until the context ends.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("Classification ingest started",
		zap.Int("workers", s.cfg.Workers),
		zap.Int("queue_size", s.cfg.QueueSize))

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case conversationID := <-s.queue:
					s.classifyConversation(conversationID)
				}
			}
		}()
	}

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("Classification ingest stopped")
}

func (s *Service) classifyConversation(conversationID int64) {
	conv, err := s.convRepo.GetConversationByID(conversationID)
	if err != nil {
		s.logger.Error("Failed to load conversation for classification",
			zap.Int64("conversation_id", conversationID),
			zap.Error(err))
		return
	}
	if conv == nil {
		s.logger.Warn("Conversation not found, skipping classification",
			zap.Int64("conversation_id", conversationID))
		return
	}

	result := s.classifier.Classify(conv)
	rec := &models.ClassificationRecord{
		ConversationID:    conversationID,
		IsSecurityRelated: result.IsSecurityRelated,
		Confidence:        result.Confidence,
		ThreatCategory:    result.ThreatCategory,
		MatchedKeywords:   result.MatchedKeywords,
	}

	inserted, err := s.classRepo.SaveClassification(rec)
	if err != nil {
		s.logger.Error("Failed to save classification record",
			zap.Int64("conversation_id", conversationID),
			zap.Error(err))
		return
	}
	if !inserted {
		s.logger.Debug("Conversation already classified",
			zap.Int64("conversation_id", conversationID))
		return
	}

	s.logger.Info("Conversation classified",
		zap.Int64("conversation_id", conversationID),
		zap.Bool("is_security_related", rec.IsSecurityRelated),
		zap.Float64("confidence", rec.Confidence))
}
