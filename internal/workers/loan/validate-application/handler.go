// internal/workers/loan/validate-application/handler.go
package validateapplication

import (
	"context"
	"fmt"
	"strings"

	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"
	"loan-workflow/internal/workflow"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "validate-application"
)

type Handler struct {
	config *Config
	logger logger.Logger
	runner *workflow.JobRunner
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	h := &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
	h.runner = workflow.NewJobRunner(TaskType, workflow.StageValidateApplication, h, config.Timeout, h.logger)
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Handle(client, job)
}

// Execute checks completeness and intake business rules. A failing application
// ends the run without touching its status.
func (h *Handler) Execute(ctx context.Context, state *workflow.State) (*workflow.Outcome, error) {
	app := state.Application.Clone()
	result := h.Check(app)

	if !result.Valid() {
		joined := strings.Join(result.Errors, "; ")
		h.logger.Info("application validation failed", map[string]interface{}{
			"applicationNumber": app.ApplicationNumber,
			"errors":            result.Errors,
		})
		return &workflow.Outcome{
			Application:  app,
			Messages:     []string{"Application validation failed: " + joined},
			Next:         workflow.ActionFixApplication,
			Status:       workflow.StatusFailed,
			ErrorMessage: "Validation errors: " + joined,
		}, nil
	}

	app.Status = models.LoanStatusUnderReview
	h.logger.Info("application validation passed", map[string]interface{}{
		"applicationNumber": app.ApplicationNumber,
	})
	return &workflow.Outcome{
		Application: app,
		Messages:    []string{MsgValidationPassed},
		Next:        workflow.ActionVerifyDocuments,
		Status:      workflow.StatusInProgress,
	}, nil
}

// Check collects every violated rule without short-circuiting.
func (h *Handler) Check(app *models.LoanApplication) Result {
	var errs []string

	if app.PersonalInfo == nil {
		errs = append(errs, MsgPersonalInfoMissing)
	}
	if app.EmploymentInfo == nil {
		errs = append(errs, MsgEmploymentInfoMissing)
	}
	if app.FinancialInfo == nil {
		errs = append(errs, MsgFinancialInfoMissing)
	}
	if app.LoanDetails == nil {
		errs = append(errs, MsgLoanDetailsMissing)
	}

	if dti := app.DebtToIncomeRatio(); dti > h.config.MaxDebtToIncome {
		errs = append(errs, fmt.Sprintf("Debt-to-income ratio too high: %.2f%%", dti*100))
	}

	if app.EmploymentInfo != nil && app.LoanDetails != nil {
		minIncome := h.config.MinIncomeStandard
		if app.LoanDetails.RequestedAmount.GreaterThanOrEqual(h.config.HighAmountThreshold) {
			minIncome = h.config.MinIncomeHighAmount
		}
		if app.EmploymentInfo.AnnualIncome.LessThan(minIncome) {
			errs = append(errs, fmt.Sprintf("Annual income below minimum requirement: $%s", minIncome.String()))
		}
	}

	return Result{Errors: errs}
}
