package repository

import (
	"database/sql"
	"errors"

	"finetuner/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ConversationRepository reads conversations from the store. Conversations
// are owned by the surrounding chat system; this service never writes them.
type ConversationRepository interface {
	GetConversationByID(id int64) (*models.Conversation, error)
	GetConversationsByIDs(ids []int64) (map[int64]*models.Conversation, error)
}

type conversationRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewConversationRepository(db *sqlx.DB, logger *zap.Logger) ConversationRepository {
	return &conversationRepository{db: db, logger: logger}
}

func (r *conversationRepository) GetConversationByID(id int64) (*models.Conversation, error) {
	var conv models.Conversation
	query := `SELECT id, source, created_at FROM conversations WHERE id = $1`
	err := r.db.Get(&conv, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Conversation not found
		}
		return nil, err
	}

	msgQuery := `SELECT id, conversation_id, role, content, seq
		FROM conversation_messages WHERE conversation_id = $1 ORDER BY seq`
	if err := r.db.Select(&conv.Messages, msgQuery, id); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) GetConversationsByIDs(ids []int64) (map[int64]*models.Conversation, error) {
	result := make(map[int64]*models.Conversation, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT id, source, created_at FROM conversations WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var convs []models.Conversation
	if err := r.db.Select(&convs, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for i := range convs {
		result[convs[i].ID] = &convs[i]
	}

	msgQuery, msgArgs, err := sqlx.In(`SELECT id, conversation_id, role, content, seq
		FROM conversation_messages WHERE conversation_id IN (?) ORDER BY conversation_id, seq`, ids)
	if err != nil {
		return nil, err
	}
	var msgs []models.ConversationMessage
	if err := r.db.Select(&msgs, r.db.Rebind(msgQuery), msgArgs...); err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		if conv, ok := result[msg.ConversationID]; ok {
			conv.Messages = append(conv.Messages, msg)
		}
	}
	return result, nil
}
