// internal/workers/loan/risk-assessment/handler.go
package riskassessment

import (
	"context"
	"fmt"
	"math"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"
	"loan-workflow/internal/workflow"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/shopspring/decimal"
)

const (
	TaskType = "risk-assessment"
)

var lowIncome = decimal.NewFromInt(40000)

type Handler struct {
	config *Config
	logger logger.Logger
	now    func() time.Time
	runner *workflow.JobRunner
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	h := &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:    func() time.Time { return time.Now().UTC() },
	}
	h.runner = workflow.NewJobRunner(TaskType, workflow.StageRiskAssessment, h, config.Timeout, h.logger)
	return h
}

// WithClock sets the assessment date used for employment tenure.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Handle(client, job)
}

func (h *Handler) Execute(ctx context.Context, state *workflow.State) (*workflow.Outcome, error) {
	app := state.Application.Clone()
	if app.EmploymentInfo == nil || app.FinancialInfo == nil {
		return nil, errs.NewRiskAssessmentFailedError("employment and financial information are required")
	}

	assessment := h.Assess(app, h.now())
	app.RiskAssessment = &assessment

	h.logger.Info("risk assessed", map[string]interface{}{
		"applicationNumber": app.ApplicationNumber,
		"overallRiskScore":  assessment.OverallRiskScore,
		"riskLevel":         assessment.RiskLevel,
	})

	return &workflow.Outcome{
		Application: app,
		Messages: []string{
			MsgPerforming,
			fmt.Sprintf("Risk assessment completed. Overall risk score: %d/100 (%s risk)",
				assessment.OverallRiskScore, assessment.RiskLevel),
		},
		Next:      workflow.ActionMakeDecision,
		Completed: true,
		Results: workflow.StageResults{
			RiskScore: workflow.IntPtr(assessment.OverallRiskScore),
			RiskLevel: assessment.RiskLevel,
		},
	}, nil
}

// Assess scores app as of asOf. Higher scores mean lower risk.
func (h *Handler) Assess(app *models.LoanApplication, asOf time.Time) models.RiskAssessment {
	credit := h.config.FallbackCreditScore
	if app.CreditScore != nil {
		credit = app.CreditScore.Score
	}

	dti := app.DebtToIncomeRatio()
	utilization := app.FinancialInfo.CreditCardsDebt.
		Div(decimal.NewFromInt(utilizationDivisor)).InexactFloat64()
	utilization = math.Min(maxUtilization, utilization)

	paymentHistory := paymentHistoryScore(credit)
	dtiScore := debtToIncomeScore(dti)
	employment := h.employmentStabilityScore(app.EmploymentInfo, asOf)

	raw := float64(paymentHistory)*weightPaymentHistory +
		float64(dtiScore)*weightDTI +
		float64(employment)*weightEmployment +
		math.Min(100, float64(credit)/8.5)*weightCredit
	overall := max(0, min(100, int(math.Round(raw))))

	factors := []string{}
	if dti > 0.4 {
		factors = append(factors, FactorHighDTI)
	}
	if credit < 650 {
		factors = append(factors, FactorLowCreditScore)
	}
	if app.EmploymentInfo.AnnualIncome.LessThan(lowIncome) {
		factors = append(factors, FactorLowIncome)
	}
	if utilization > 0.5 {
		factors = append(factors, FactorHighUtilization)
	}

	return models.RiskAssessment{
		DebtToIncomeRatio:        dti,
		CreditUtilizationRatio:   utilization,
		PaymentHistoryScore:      paymentHistory,
		EmploymentStabilityScore: employment,
		OverallRiskScore:         overall,
		RiskLevel:                riskLevel(overall),
		RiskFactors:              factors,
	}
}

func (h *Handler) employmentStabilityScore(e *models.EmploymentInfo, asOf time.Time) int {
	switch e.Status {
	case models.EmploymentEmployed:
		months, ok := e.TenureMonths(asOf)
		if !ok {
			months = h.config.AssumedTenureMonths
		}
		switch {
		case months >= 24:
			return 90
		case months >= 12:
			return 75
		default:
			return 50
		}
	case models.EmploymentSelfEmployed:
		return 60
	default:
		return 20
	}
}

func debtToIncomeScore(dti float64) int {
	switch {
	case dti < 0.2:
		return 100
	case dti < 0.3:
		return 80
	case dti < 0.4:
		return 60
	default:
		return 30
	}
}

func paymentHistoryScore(credit int) int {
	switch {
	case credit >= 750:
		return 95
	case credit >= 700:
		return 85
	case credit >= 650:
		return 70
	case credit >= 600:
		return 55
	default:
		return 30
	}
}

func riskLevel(score int) models.RiskLevel {
	switch {
	case score >= 80:
		return models.RiskLevelLow
	case score >= 65:
		return models.RiskLevelMedium
	case score >= 45:
		return models.RiskLevelHigh
	default:
		return models.RiskLevelVeryHigh
	}
}
