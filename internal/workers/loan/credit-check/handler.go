// internal/workers/loan/credit-check/handler.go
package creditcheck

import (
	"context"
	"errors"
	"fmt"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"
	"loan-workflow/internal/workflow"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "credit-check"
)

type Handler struct {
	config *Config
	scorer CreditScorer
	logger logger.Logger
	runner *workflow.JobRunner
}

// NewHandler builds the stage; a nil scorer falls back to the heuristic scorer.
func NewHandler(config *Config, scorer CreditScorer, log logger.Logger) *Handler {
	if scorer == nil {
		scorer = NewHeuristicScorer(config.Bureau)
	}
	h := &Handler{
		config: config,
		scorer: scorer,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
	h.runner = workflow.NewJobRunner(TaskType, workflow.StageCreditCheck, h, config.Timeout, h.logger)
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Handle(client, job)
}

func (h *Handler) Execute(ctx context.Context, state *workflow.State) (*workflow.Outcome, error) {
	app := state.Application.Clone()

	scoreCtx, cancel := context.WithTimeout(ctx, h.config.ScoreTimeout)
	defer cancel()

	score, err := h.scorer.Score(scoreCtx, app)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(scoreCtx.Err(), context.DeadlineExceeded) {
			return nil, errs.NewCreditCheckTimeoutError(h.config.ScoreTimeout)
		}
		return nil, errs.NewCreditCheckFailedError(err)
	}

	app.CreditScore = score
	app.Status = models.LoanStatusCreditCheck

	h.logger.Info("credit score obtained", map[string]interface{}{
		"applicationNumber": app.ApplicationNumber,
		"score":             score.Score,
		"bureau":            score.Bureau,
	})

	return &workflow.Outcome{
		Application: app,
		Messages: []string{
			MsgInitiating,
			fmt.Sprintf("Credit check completed. Score: %d (Bureau: %s)", score.Score, score.Bureau),
		},
		Next:      workflow.ActionRiskAssessment,
		Completed: true,
		Results:   workflow.StageResults{CreditScore: workflow.IntPtr(score.Score)},
	}, nil
}
