package handler

import (
	"net/http"

	"finetuner/internal/scheduler"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TriggerHandler exposes the threshold-triggered training check.
type TriggerHandler struct {
	scheduler *scheduler.TriggerScheduler
	logger    *zap.Logger
}

// NewTriggerHandler creates a new trigger handler.
func NewTriggerHandler(sched *scheduler.TriggerScheduler, logger *zap.Logger) *TriggerHandler {
	return &TriggerHandler{scheduler: sched, logger: logger}
}

// CheckAndTrigger runs one trigger check. Below the threshold this is a
// no-op that reports the current count.
// POST /api/training/trigger
func (h *TriggerHandler) CheckAndTrigger(c *gin.Context) {
	report, err := h.scheduler.CheckAndTrigger(c.Request.Context())
	if err != nil {
		h.logger.Error("Trigger check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Trigger check failed"})
		return
	}

	c.JSON(http.StatusOK, report)
}
