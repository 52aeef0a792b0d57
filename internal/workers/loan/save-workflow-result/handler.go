// internal/workers/loan/save-workflow-result/handler.go
package saveworkflowresult

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"
	"loan-workflow/internal/repository"
	"loan-workflow/internal/workflow"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "save-workflow-result"
)

// ResultStore persists a processed application. *repository.PostgresRepository
// implements it.
type ResultStore interface {
	SaveWorkflowResult(ctx context.Context, app *models.LoanApplication, audit repository.AuditEntry) error
}

type Handler struct {
	config *Config
	store  ResultStore
	logger logger.Logger
	errors *errs.ErrorHandler
	now    func() time.Time
}

func NewHandler(config *Config, store ResultStore, log logger.Logger) *Handler {
	h := &Handler{
		config: config,
		store:  store,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:    func() time.Time { return time.Now().UTC() },
	}
	h.errors = errs.NewErrorHandler(h.logger)
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errors.HandleJobError(ctx, client, job, errs.NewInvalidInputError(fmt.Sprintf("parse input: %v", err)))
		return
	}
	if input.Application == nil {
		h.errors.HandleJobError(ctx, client, job, errs.NewInvalidInputError("job variables carry no application"))
		return
	}

	progress := workflow.Progress{}
	if input.Workflow != nil {
		progress = *input.Workflow
	}

	output, err := h.Save(ctx, input.Application, progress)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

// Save stores the application, its credit score and risk assessment rows and a
// WORKFLOW_COMPLETED audit entry summarising the run. An application that
// failed validation goes back to draft so the applicant can correct and
// resubmit it.
func (h *Handler) Save(ctx context.Context, app *models.LoanApplication, progress workflow.Progress) (*Output, error) {
	now := h.now()
	if returnedForCorrection(progress) {
		app.Status = models.LoanStatusDraft
		app.SubmittedAt = nil
		app.AddNote("Returned to draft: " + progress.ErrorMessage)
	}
	app.WorkflowState = progress.ToMap()
	app.UpdatedAt = now
	if app.Decision != nil && app.DecisionDate == nil {
		decided := app.Decision.DecisionDate
		app.DecisionDate = &decided
	}

	if err := h.store.SaveWorkflowResult(ctx, app, repository.AuditEntry{
		Action:  repository.AuditWorkflowCompleted,
		Details: completionDetails(app, progress),
	}); err != nil {
		return nil, err
	}

	h.logger.Info("workflow result saved", map[string]interface{}{
		"applicationNumber": app.ApplicationNumber,
		"status":            app.Status,
		"workflowStatus":    progress.Status,
	})

	return &Output{
		ApplicationNumber: app.ApplicationNumber,
		ApplicationStatus: app.Status,
		Saved:             true,
		SavedAt:           now.Format(time.RFC3339),
	}, nil
}

func returnedForCorrection(progress workflow.Progress) bool {
	return progress.Status == workflow.StatusFailed && progress.NextAction == workflow.ActionFixApplication
}

func completionDetails(app *models.LoanApplication, progress workflow.Progress) map[string]interface{} {
	details := map[string]interface{}{
		"status":              string(app.Status),
		"workflowStatus":      string(progress.Status),
		"nextAction":          string(progress.NextAction),
		"humanReviewRequired": progress.HumanReviewRequired,
	}
	if app.Decision != nil {
		details["decision"] = string(app.Decision.Decision)
		details["confidence"] = app.Decision.ConfidenceScore
	}
	if app.CreditScore != nil {
		details["creditScore"] = app.CreditScore.Score
	}
	if app.RiskAssessment != nil {
		details["riskScore"] = app.RiskAssessment.OverallRiskScore
	}
	if progress.ErrorMessage != "" {
		details["errorMessage"] = progress.ErrorMessage
	}
	return details
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
	})
}
