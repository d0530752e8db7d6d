package scheduler

import (
	"context"

	"finetuner/internal/evaluator"
	"finetuner/internal/models"
	"finetuner/internal/orchestrator"
	"finetuner/internal/repository"

	"go.uber.org/zap"
)

// StatusPoller drives PollStatus across all jobs that are waiting on the
// provider, and kicks off an evaluation run when a job is observed reaching
// COMPLETED. It is invoked on the same external cadence as the trigger
// check; a failed or timed-out poll leaves the job untouched for the next
// round.
type StatusPoller struct {
	jobRepo      repository.JobRepository
	orchestrator *orchestrator.Orchestrator
	evaluator    *evaluator.Evaluator
	logger       *zap.Logger
}

func NewStatusPoller(
	jobRepo repository.JobRepository,
	orch *orchestrator.Orchestrator,
	eval *evaluator.Evaluator,
	logger *zap.Logger,
) *StatusPoller {
	return &StatusPoller{
		jobRepo:      jobRepo,
		orchestrator: orch,
		evaluator:    eval,
		logger:       logger,
	}
}

// PollActiveJobs polls every non-terminal submitted job once.
func (p *StatusPoller) PollActiveJobs(ctx context.Context) {
	jobs, err := p.jobRepo.GetActiveJobs()
	if err != nil {
		p.logger.Error("Failed to list active jobs for polling", zap.Error(err))
		return
	}

	for _, job := range jobs {
		if err := p.orchestrator.PollStatus(ctx, job); err != nil {
			p.logger.Error("Status poll failed",
				zap.String("job_id", job.ID),
				zap.Error(err))
			continue
		}

		if job.Status == models.JobStatusCompleted && job.FineTunedModelID != nil {
			if _, err := p.evaluator.Evaluate(ctx, *job.FineTunedModelID); err != nil {
				p.logger.Error("Evaluation of completed model failed",
					zap.String("job_id", job.ID),
					zap.String("model_id", *job.FineTunedModelID),
					zap.Error(err))
			}
		}
	}
}
