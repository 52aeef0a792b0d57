// internal/workers/loan/make-decision/handler.go
package makedecision

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/common/metrics"
	"loan-workflow/internal/models"
	"loan-workflow/internal/workflow"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/shopspring/decimal"
)

const (
	TaskType = "make-decision"
)

var (
	bandBCap   = decimal.NewFromInt(100000)
	bandCCap   = decimal.NewFromInt(50000)
	bandBRatio = decimal.RequireFromString("0.8")
	bandCRatio = decimal.RequireFromString("0.6")
)

const bandCMaxTerm = 60

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
	h.runner = workflow.NewJobRunner(TaskType, workflow.StageMakeDecision, h, config.Timeout, h.logger)
	return h
}

// WithClock sets the clock used for decision dates.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Handle(client, job)
}

func (h *Handler) Execute(ctx context.Context, state *workflow.State) (*workflow.Outcome, error) {
	app := state.Application.Clone()

	decision, err := h.Decide(app, h.now())
	if err != nil {
		return nil, err
	}

	app.Decision = &decision
	decided := decision.DecisionDate
	app.DecisionDate = &decided
	if decision.Decision == models.DecisionRejected {
		app.Status = models.LoanStatusRejected
	} else {
		app.Status = models.LoanStatusApproved
	}

	metrics.Decisions.WithLabelValues(string(decision.Decision), string(app.LoanDetails.LoanType)).Inc()
	h.logger.Info("loan decision made", map[string]interface{}{
		"applicationNumber": app.ApplicationNumber,
		"decision":          decision.Decision,
		"confidence":        decision.ConfidenceScore,
	})

	out := &workflow.Outcome{
		Application: app,
		Messages:    []string{MsgMaking, summarize(decision)},
		Completed:   true,
		Results: workflow.StageResults{
			Decision:   decision.Decision,
			Confidence: workflow.FloatPtr(decision.ConfidenceScore),
		},
	}

	if decision.ConfidenceScore < h.config.HumanReviewConfidence || decision.Decision == models.DecisionConditional {
		out.Messages = append(out.Messages, MsgHumanReviewAdvised)
		out.Status = workflow.StatusRequiresHuman
		out.HumanReviewRequired = true
		out.Next = workflow.ActionHumanReview
		return out, nil
	}

	out.Status = workflow.StatusCompleted
	out.Next = workflow.ActionComplete
	return out, nil
}

// Decide applies the underwriting matrix to the application's credit score and
// risk assessment.
func (h *Handler) Decide(app *models.LoanApplication, at time.Time) (models.Decision, error) {
	if app.RiskAssessment == nil {
		return models.Decision{}, errs.NewDecisionFailedError("risk assessment is missing")
	}
	if app.LoanDetails == nil {
		return models.Decision{}, errs.NewDecisionFailedError("loan details are missing")
	}

	credit := h.config.FallbackCreditScore
	if app.CreditScore != nil {
		credit = app.CreditScore.Score
	}
	risk := app.RiskAssessment.OverallRiskScore
	requested := app.LoanDetails.RequestedAmount
	term := app.LoanDetails.RequestedTermMonths
	dti := app.DebtToIncomeRatio()

	d := models.Decision{
		Conditions:       []string{},
		RejectionReasons: []string{},
		DecisionDate:     at,
		DecisionMaker:    h.config.DecisionMaker,
	}

	switch {
	case bandA.accepts(risk, credit):
		d.Decision = models.DecisionApproved
		d.ApprovedAmount = &requested
		d.ApprovedTermMonths = &term
		d.InterestRate = rate(4.5 + float64(750-credit)*0.01)
		d.ConfidenceScore = 0.90

	case bandB.accepts(risk, credit):
		amount := requested
		d.Decision = models.DecisionApproved
		if requested.GreaterThan(bandBCap) {
			amount = decimal.Min(requested.Mul(bandBRatio), bandBCap)
			d.Decision = models.DecisionConditional
			d.Conditions = append(d.Conditions, ConditionReducedForRisk)
		}
		if dti > 0.35 {
			d.Conditions = append(d.Conditions, ConditionIncomeVerification)
		}
		d.ApprovedAmount = &amount
		d.ApprovedTermMonths = &term
		d.InterestRate = rate(6.0 + float64(700-credit)*0.02)
		d.ConfidenceScore = 0.75

	case bandC.accepts(risk, credit):
		amount := decimal.Min(requested.Mul(bandCRatio), bandCCap)
		shorter := min(term, bandCMaxTerm)
		d.Decision = models.DecisionConditional
		d.ApprovedAmount = &amount
		d.ApprovedTermMonths = &shorter
		d.InterestRate = rate(8.0 + float64(650-credit)*0.03)
		d.ConfidenceScore = 0.60
		d.Conditions = append(d.Conditions,
			ConditionReducedHighRisk, ConditionShorterTerm, ConditionCosigner, ConditionCollateral)

	default:
		d.Decision = models.DecisionRejected
		d.ConfidenceScore = 0.80
		if credit < bandC.minCredit {
			d.RejectionReasons = append(d.RejectionReasons, ReasonLowCreditScore)
		}
		if risk < bandC.minRisk {
			d.RejectionReasons = append(d.RejectionReasons, ReasonHighRisk)
		}
		if dti > 0.5 {
			d.RejectionReasons = append(d.RejectionReasons, ReasonHighDTI)
		}
	}

	return d, nil
}

// rate rounds an APR percentage to four decimals.
func rate(pct float64) *float64 {
	r := math.Round(pct*10000) / 10000
	return &r
}

func summarize(d models.Decision) string {
	switch d.Decision {
	case models.DecisionApproved:
		return fmt.Sprintf("Loan APPROVED: %s at %.2f%% APR for %d months",
			models.FormatMoney(*d.ApprovedAmount), *d.InterestRate, *d.ApprovedTermMonths)
	case models.DecisionConditional:
		return fmt.Sprintf("Loan CONDITIONALLY APPROVED: %s at %.2f%% APR with conditions",
			models.FormatMoney(*d.ApprovedAmount), *d.InterestRate)
	default:
		return "Loan REJECTED: " + strings.Join(d.RejectionReasons, "; ")
	}
}
