// internal/workers/loan/human-review/handler.go
package humanreview

import (
	"context"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/workflow"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "human-review"
)

type Handler struct {
	config   *Config
	assigner UnderwriterAssigner
	logger   logger.Logger
	runner   *workflow.JobRunner
}

// NewHandler builds the stage; a nil assigner always picks config.DefaultUnderwriter.
func NewHandler(config *Config, assigner UnderwriterAssigner, log logger.Logger) *Handler {
	if assigner == nil {
		assigner = StaticAssigner{Name: config.DefaultUnderwriter}
	}
	h := &Handler{
		config:   config,
		assigner: assigner,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
	h.runner = workflow.NewJobRunner(TaskType, workflow.StageHumanReview, h, config.Timeout, h.logger)
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Handle(client, job)
}

func (h *Handler) Execute(ctx context.Context, state *workflow.State) (*workflow.Outcome, error) {
	app := state.Application.Clone()

	underwriter, err := h.assigner.Assign(ctx, app)
	if err != nil {
		return nil, errs.NewUnderwriterAssignmentFailedError(err)
	}
	if underwriter == "" {
		underwriter = h.config.DefaultUnderwriter
	}
	app.AssignedUnderwriter = &underwriter

	h.logger.Info("underwriter assigned", map[string]interface{}{
		"applicationNumber": app.ApplicationNumber,
		"underwriter":       underwriter,
	})

	return &workflow.Outcome{
		Application:         app,
		Messages:            []string{MsgFlagged},
		Next:                workflow.ActionAwaitHumanDecision,
		Status:              workflow.StatusRequiresHuman,
		HumanReviewRequired: true,
		UnderwriterNotes:    []string{"Assigned to " + underwriter},
	}, nil
}
