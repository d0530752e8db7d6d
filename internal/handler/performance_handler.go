package handler

import (
	"net/http"

	"finetuner/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PerformanceHandler handles model evaluation result requests.
type PerformanceHandler struct {
	perfRepo  repository.PerformanceRepository
	classRepo repository.ClassificationRepository
	logger    *zap.Logger
}

// NewPerformanceHandler creates a new performance handler.
func NewPerformanceHandler(perfRepo repository.PerformanceRepository, classRepo repository.ClassificationRepository, logger *zap.Logger) *PerformanceHandler {
	return &PerformanceHandler{perfRepo: perfRepo, classRepo: classRepo, logger: logger}
}

// ListRecords returns recent performance records.
// GET /api/training/performance
func (h *PerformanceHandler) ListRecords(c *gin.Context) {
	records, err := h.perfRepo.GetPerformanceRecords(50)
	if err != nil {
		h.logger.Error("Failed to list performance records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch performance records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// GetStats returns classification corpus counters.
// GET /api/training/stats
func (h *PerformanceHandler) GetStats(c *gin.Context) {
	stats, err := h.classRepo.GetStats()
	if err != nil {
		h.logger.Error("Failed to get classification stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
