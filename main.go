package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"finetuner/internal/classifier"
	"finetuner/internal/config"
	"finetuner/internal/evaluator"
	"finetuner/internal/finetune_client"
	"finetuner/internal/ingest"
	"finetuner/internal/orchestrator"
	"finetuner/internal/repository"
	"finetuner/internal/scheduler"
	"finetuner/internal/server"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err) // Should not happen in development
	}
	defer func() {
		_ = logger.Sync() // Flushes buffer, if any
	}()

	// Load configuration
	cfgPath := "configs/config.yml"
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Database connection
	db, err := repository.NewPostgresDB(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	repository.MigrateDB(db, logger)

	// Initialize repositories
	convRepo := repository.NewConversationRepository(db, logger)
	classRepo := repository.NewClassificationRepository(db, logger)
	jobRepo := repository.NewJobRepository(db, logger)
	exampleRepo := repository.NewExampleRepository(db, logger)
	perfRepo := repository.NewPerformanceRepository(db, logger)

	// Initialize fine-tuning provider client
	providerClient := finetune_client.NewClient(cfg.Provider.URL, cfg.Provider.APIKey)

	// Initialize pipeline components
	clf := classifier.New(cfg.Classifier)
	orch := orchestrator.New(jobRepo, classRepo, convRepo, exampleRepo, providerClient, logger, cfg.Orchestrator)
	sched := scheduler.New(classRepo, orch, logger, cfg.Scheduler)
	eval := evaluator.New(classRepo, convRepo, perfRepo, providerClient, evaluator.ExactMatch, logger, cfg.Evaluator)
	poller := scheduler.NewStatusPoller(jobRepo, orch, eval, logger)
	ingestSvc := ingest.NewService(convRepo, classRepo, clf, logger, cfg.Ingest)

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the classification ingest workers
	go ingestSvc.Run(ctx)

	// Schedule the trigger check and provider status polling
	c := cron.New()
	if _, err := c.AddFunc(cfg.Cron.TriggerSchedule, func() {
		checkCtx, checkCancel := context.WithTimeout(ctx, 5*time.Minute)
		defer checkCancel()
		if _, err := sched.CheckAndTrigger(checkCtx); err != nil {
			logger.Error("Scheduled trigger check failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("Failed to schedule trigger check", zap.Error(err))
	}
	if _, err := c.AddFunc(cfg.Cron.PollSchedule, func() {
		pollCtx, pollCancel := context.WithTimeout(ctx, 5*time.Minute)
		defer pollCancel()
		poller.PollActiveJobs(pollCtx)
	}); err != nil {
		logger.Fatal("Failed to schedule status polling", zap.Error(err))
	}
	c.Start()
	defer c.Stop()

	// Initialize and run the server
	srv := server.NewServer(server.Deps{
		Ingest:       ingestSvc,
		Scheduler:    sched,
		Orchestrator: orch,
		JobRepo:      jobRepo,
		PerfRepo:     perfRepo,
		ClassRepo:    classRepo,
	}, logger)
	go srv.Run(cfg.Server.Port)

	<-ctx.Done()
	logger.Info("Application stopped.")
}
