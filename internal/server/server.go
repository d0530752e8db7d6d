package server

import (
	"net/http"

	"finetuner/internal/handler"
	"finetuner/internal/ingest"
	"finetuner/internal/orchestrator"
	"finetuner/internal/repository"
	"finetuner/internal/scheduler"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps carries the constructed components the HTTP surface exposes.
type Deps struct {
	Ingest       *ingest.Service
	Scheduler    *scheduler.TriggerScheduler
	Orchestrator *orchestrator.Orchestrator
	JobRepo      repository.JobRepository
	PerfRepo     repository.PerformanceRepository
	ClassRepo    repository.ClassificationRepository
}

type Server struct {
	router *gin.Engine
	logger *zap.Logger
}

func NewServer(deps Deps, logger *zap.Logger) *Server {
	router := gin.Default()

	s := &Server{
		router: router,
		logger: logger,
	}

	s.setupRoutes(deps)
	return s
}

func (s *Server) setupRoutes(deps Deps) {
	ingestHandler := handler.NewIngestHandler(deps.Ingest, s.logger)
	triggerHandler := handler.NewTriggerHandler(deps.Scheduler, s.logger)
	jobHandler := handler.NewJobHandler(deps.JobRepo, deps.Orchestrator, s.logger)
	performanceHandler := handler.NewPerformanceHandler(deps.PerfRepo, deps.ClassRepo, s.logger)

	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// Hook invoked by the chat system when a conversation finishes
	s.router.POST("/api/conversations/:id/completed", ingestHandler.ConversationCompleted)

	// Training pipeline routes
	training := s.router.Group("/api/training")
	{
		training.POST("/trigger", triggerHandler.CheckAndTrigger)
		training.GET("/jobs", jobHandler.ListJobs)
		training.GET("/jobs/:id", jobHandler.GetJob)
		training.POST("/jobs/:id/poll", jobHandler.PollJob)
		training.GET("/performance", performanceHandler.ListRecords)
		training.GET("/stats", performanceHandler.GetStats)
	}
}

func (s *Server) Run(addr string) {
	s.logger.Info("Server starting", zap.String("port", addr))
	if err := s.router.Run(addr); err != nil {
		s.logger.Fatal("Server failed to start", zap.Error(err))
	}
}
