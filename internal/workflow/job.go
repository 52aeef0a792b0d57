package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/common/metrics"
	"loan-workflow/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// JobVariables are the process variables a stage job reads.
type JobVariables struct {
	Application *models.LoanApplication `json:"application"`
	Workflow    *Progress               `json:"workflow,omitempty"`
}

// JobResult are the variables a stage job completes with. NextAction and
// WorkflowStatus are flattened for the process gateways.
type JobResult struct {
	Application         *models.LoanApplication `json:"application"`
	Workflow            Progress                `json:"workflow"`
	NextAction          Action                  `json:"nextAction"`
	WorkflowStatus      Status                  `json:"workflowStatus"`
	HumanReviewRequired bool                    `json:"humanReviewRequired"`
}

// RestoreState rebuilds a state from job variables. A missing progress starts a
// fresh run.
func RestoreState(app *models.LoanApplication, progress *Progress, at time.Time) *State {
	if progress == nil {
		return NewState(app, at)
	}
	return &State{Application: app, Progress: *progress}
}

// JobRunner executes a single stage as a zeebe job.
type JobRunner struct {
	taskType string
	stage    Stage
	handler  StageHandler
	timeout  time.Duration
	errors   *errs.ErrorHandler
	logger   logger.Logger
}

func NewJobRunner(taskType string, stage Stage, handler StageHandler, timeout time.Duration, log logger.Logger) *JobRunner {
	return &JobRunner{
		taskType: taskType,
		stage:    stage,
		handler:  handler,
		timeout:  timeout,
		errors:   errs.NewErrorHandler(log),
		logger:   log,
	}
}

// Handle is a zeebe worker.JobHandler.
func (r *JobRunner) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(r.taskType).Inc()
	defer func() {
		metrics.WorkerJobsActive.WithLabelValues(r.taskType).Dec()
		metrics.WorkerJobDuration.WithLabelValues(r.taskType).Observe(time.Since(start).Seconds())
	}()

	r.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	result, err := r.run(ctx, job.Variables)
	if err != nil {
		stdErr := errs.Normalize(err)
		metrics.WorkerJobsFailed.WithLabelValues(r.taskType, string(stdErr.Code)).Inc()
		r.errors.HandleJobError(ctx, client, job, stdErr)
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(result)
	if err != nil {
		r.logger.Error("failed to create complete job command", map[string]interface{}{"error": err})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		r.logger.Error("failed to send complete job command", map[string]interface{}{"error": err})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(r.taskType).Inc()
	r.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey":            job.Key,
		"applicationNumber": result.Application.ApplicationNumber,
		"nextAction":        result.NextAction,
	})
}

// run decodes the variables, executes the stage and folds the outcome.
func (r *JobRunner) run(ctx context.Context, variables string) (*JobResult, error) {
	var vars JobVariables
	if err := json.Unmarshal([]byte(variables), &vars); err != nil {
		return nil, errs.NewInvalidInputError(fmt.Sprintf("parse job variables: %v", err))
	}
	if vars.Application == nil {
		return nil, errs.NewInvalidInputError("job variables carry no application")
	}

	now := time.Now().UTC()
	state := RestoreState(vars.Application, vars.Workflow, now)

	out, err := r.handler.Execute(ctx, state)
	if err != nil {
		return nil, err
	}
	state.Apply(r.stage, out, now)
	state.Application.WorkflowState = state.Progress.ToMap()
	state.Application.UpdatedAt = now

	return &JobResult{
		Application:         state.Application,
		Workflow:            state.Progress,
		NextAction:          state.NextAction,
		WorkflowStatus:      state.Status,
		HumanReviewRequired: state.HumanReviewRequired,
	}, nil
}
