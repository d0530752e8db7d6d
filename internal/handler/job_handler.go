package handler

import (
	"net/http"

	"finetuner/internal/orchestrator"
	"finetuner/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JobHandler handles fine-tuning job requests.
type JobHandler struct {
	jobRepo      repository.JobRepository
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobRepo repository.JobRepository, orch *orchestrator.Orchestrator, logger *zap.Logger) *JobHandler {
	return &JobHandler{jobRepo: jobRepo, orchestrator: orch, logger: logger}
}

// ListJobs returns recent fine-tuning jobs.
// GET /api/training/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs, err := h.jobRepo.GetJobs(50)
	if err != nil {
		h.logger.Error("Failed to list jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJob returns a single job by id.
// GET /api/training/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobRepo.GetJobByID(c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to get job", zap.Error(err), zap.String("job_id", c.Param("id")))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch job"})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// PollJob polls the provider for the job's current status on demand.
// POST /api/training/jobs/:id/poll
func (h *JobHandler) PollJob(c *gin.Context) {
	job, err := h.jobRepo.GetJobByID(c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to get job for polling", zap.Error(err), zap.String("job_id", c.Param("id")))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch job"})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	if err := h.orchestrator.PollStatus(c.Request.Context(), job); err != nil {
		h.logger.Error("Failed to poll job status", zap.Error(err), zap.String("job_id", job.ID))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to poll provider", "job": job})
		return
	}

	c.JSON(http.StatusOK, job)
}
