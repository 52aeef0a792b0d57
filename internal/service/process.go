package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/models"
	"loan-workflow/internal/repository"
	"loan-workflow/internal/search"
	sendnotification "loan-workflow/internal/workers/loan/send-decision-notification"
	"loan-workflow/internal/workflow"
)

var ErrSearchDisabled = errors.New("transcript search is not configured")

// Statuses the workflow may be (re)started from.
var processableStatuses = map[models.LoanStatus]bool{
	models.LoanStatusSubmitted:         true,
	models.LoanStatusDocumentsRequired: true,
	models.LoanStatusUnderReview:       true,
	models.LoanStatusCreditCheck:       true,
}

// ProcessResult is the persisted outcome of one in-process run.
type ProcessResult struct {
	Application  *models.LoanApplication  `json:"application"`
	Workflow     workflow.Progress        `json:"workflow"`
	Notification *sendnotification.Output `json:"notification,omitempty"`
}

// Process runs the workflow for a stored application and persists the outcome.
// A failed run is persisted too (status under_review, a processing-error note
// and a WORKFLOW_ERROR audit entry) before its error is returned.
func (s *LoanService) Process(ctx context.Context, number string) (*ProcessResult, error) {
	app, err := s.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	if !processableStatuses[app.Status] {
		return nil, errs.NewInvalidApplicationStateError("process", string(app.Status))
	}

	log := s.logger.WithFields(map[string]interface{}{"applicationNumber": number})
	start := time.Now()

	state, runErr := s.deps.Runner.Run(ctx, app)
	if state == nil {
		return nil, runErr
	}
	if runErr != nil {
		s.recordRun(ctx, "error", start)
		s.index(ctx, state)
		if err := s.deps.Repository.Update(ctx, state.Application, repository.AuditEntry{
			Action: repository.AuditWorkflowError,
			Details: map[string]interface{}{
				"error": state.ErrorMessage,
			},
		}); err != nil {
			log.WithError(err).Error("failed to persist processing error", nil)
		}
		return &ProcessResult{Application: state.Application, Workflow: state.Progress}, runErr
	}

	if _, err := s.saver.Save(ctx, state.Application, state.Progress); err != nil {
		return nil, err
	}
	s.recordRun(ctx, string(state.Application.Status), start)

	result := &ProcessResult{Application: state.Application, Workflow: state.Progress}
	s.index(ctx, state)
	if s.deps.Events != nil {
		if err := s.deps.Events.PublishDecision(ctx, state); err != nil {
			log.WithError(err).Warn("decision event not published", nil)
		}
	}
	if s.deps.Notifier != nil {
		out, err := s.deps.Notifier.Notify(ctx, state.Application)
		if err != nil {
			log.WithError(err).Warn("applicant notification failed", nil)
		}
		result.Notification = out
	}

	log.Info("application processed", map[string]interface{}{
		"status":         state.Application.Status,
		"workflowStatus": state.Status,
		"durationMs":     time.Since(start).Milliseconds(),
	})
	return result, nil
}

// ProcessPending processes up to limit submitted applications, highest priority
// first, and returns how many completed without error. Failures of individual
// applications are logged and do not stop the batch.
func (s *LoanService) ProcessPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = s.config.PendingBatchSize
	}
	pending, err := s.deps.Repository.ListByStatus(ctx, models.LoanStatusSubmitted, limit, 0)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, summary := range pending {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if _, err := s.Process(ctx, summary.ApplicationNumber); err != nil {
			s.logger.WithError(err).Warn("pending application failed", map[string]interface{}{
				"applicationNumber": summary.ApplicationNumber,
			})
			continue
		}
		processed++
	}
	return processed, nil
}

// Dispatch hands a submitted application to the BPMN engine instead of running
// it in process. The application is parked in under_review before the process
// starts, so the engine carries the stored version and the processing queue
// does not pick it up again. A failed start puts it back in the queue.
func (s *LoanService) Dispatch(ctx context.Context, number, actor string) (int64, error) {
	if s.deps.Processes == nil {
		return 0, errs.NewInvalidInputError("process dispatch is not configured")
	}
	app, err := s.Get(ctx, number)
	if err != nil {
		return 0, err
	}
	if app.Status != models.LoanStatusSubmitted {
		return 0, errs.NewInvalidApplicationStateError("dispatch", string(app.Status))
	}

	app.Status = models.LoanStatusUnderReview
	app.UpdatedAt = s.now()
	app.AddNote("Dispatched to process " + s.config.ProcessID)
	if err := s.deps.Repository.Update(ctx, app, repository.AuditEntry{
		Action:  repository.AuditWorkflowDispatched,
		Actor:   actor,
		Details: map[string]interface{}{"processId": s.config.ProcessID},
	}); err != nil {
		return 0, err
	}

	key, err := s.deps.Processes.StartProcess(ctx, s.config.ProcessID, workflow.JobVariables{Application: app})
	if err != nil {
		app.Status = models.LoanStatusSubmitted
		app.UpdatedAt = s.now()
		app.AddNote("Process start failed: " + err.Error())
		if rerr := s.deps.Repository.Update(ctx, app, repository.AuditEntry{
			Action:  repository.AuditWorkflowError,
			Actor:   actor,
			Details: map[string]interface{}{"processId": s.config.ProcessID, "error": err.Error()},
		}); rerr != nil {
			s.logger.WithError(rerr).Error("failed to requeue application", map[string]interface{}{
				"applicationNumber": number,
			})
		}
		return 0, err
	}

	s.logger.Info("application dispatched", map[string]interface{}{
		"applicationNumber":  number,
		"processInstanceKey": key,
	})
	return key, nil
}

func (s *LoanService) ListByStatus(ctx context.Context, status models.LoanStatus, limit, offset int) ([]models.ApplicationSummary, error) {
	if !status.Valid() {
		return nil, errs.NewInvalidInputError(fmt.Sprintf("unknown status %q", status))
	}
	if offset < 0 {
		return nil, errs.NewInvalidInputError("offset must not be negative")
	}
	return s.deps.Repository.ListByStatus(ctx, status, limit, offset)
}

func (s *LoanService) ListForUnderwriter(ctx context.Context, underwriter string) ([]models.ApplicationSummary, error) {
	if underwriter == "" {
		return nil, errs.NewInvalidInputError("underwriter is required")
	}
	return s.deps.Repository.ListForUnderwriter(ctx, underwriter)
}

// Statistics counts applications per status and type, and those created in the
// last 30 days.
func (s *LoanService) Statistics(ctx context.Context) (*models.ApplicationStatistics, error) {
	return s.deps.Repository.Statistics(ctx, s.now().Add(-statisticsWindow))
}

func (s *LoanService) SearchTranscripts(ctx context.Context, q search.TranscriptQuery) (*search.SearchResult, error) {
	if s.deps.Index == nil {
		return nil, errs.NewSearchIndexFailedError("transcripts", ErrSearchDisabled)
	}
	return s.deps.Index.Search(ctx, q)
}

func (s *LoanService) index(ctx context.Context, state *workflow.State) {
	if s.deps.Index == nil {
		return
	}
	if err := s.deps.Index.Index(ctx, state); err != nil {
		s.logger.WithError(err).Warn("transcript not indexed", map[string]interface{}{
			"applicationNumber": state.Application.ApplicationNumber,
		})
	}
}

func (s *LoanService) recordRun(ctx context.Context, outcome string, start time.Time) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordRun(ctx, outcome, time.Since(start))
	}
}
