package handler

import (
	"net/http"
	"strconv"

	"finetuner/internal/ingest"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IngestHandler exposes the chat-completion hook.
type IngestHandler struct {
	ingest *ingest.Service
	logger *zap.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(svc *ingest.Service, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{ingest: svc, logger: logger}
}

// ConversationCompleted accepts a finished-conversation notification and
// returns immediately; classification happens on the worker queue.
// POST /api/conversations/:id/completed
func (h *IngestHandler) ConversationCompleted(c *gin.Context) {
	idStr := c.Param("id")
	conversationID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	queued := h.ingest.OnConversationCompleted(conversationID)
	c.JSON(http.StatusAccepted, gin.H{
		"conversation_id": conversationID,
		"queued":          queued,
	})
}
