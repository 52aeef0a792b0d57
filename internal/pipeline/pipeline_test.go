package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"
	creditcheck "loan-workflow/internal/workers/loan/credit-check"
	"loan-workflow/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var testNow = time.Date(2025, time.March, 14, 10, 30, 0, 0, time.UTC)

func clock() time.Time { return testNow }

type fixedScore int

func (s fixedScore) Score(context.Context, *models.LoanApplication) (*models.CreditScore, error) {
	return &models.CreditScore{Score: int(s), Bureau: "Experian", DateObtained: testNow, Factors: []string{}}, nil
}

type failingScorer struct{}

func (failingScorer) Score(context.Context, *models.LoanApplication) (*models.CreditScore, error) {
	return nil, errors.New("bureau unavailable")
}

func newTestPipeline(t *testing.T, c Collaborators) *Pipeline {
	if c.Scorer == nil {
		c.Scorer = &creditcheck.HeuristicScorer{Bureau: "Experian", Now: clock}
	}
	p, err := New(DefaultConfig(), c, logger.NewTestLogger(t), clock)
	require.NoError(t, err)
	return p
}

// ==========================
// End-to-end runs
// ==========================

func TestPipeline_ApprovesStrongApplicant(t *testing.T) {
	app := models.SampleApplication(testNow)
	app.EmploymentInfo.MonthlyIncome = decimal.RequireFromString("6666.67")

	state, err := newTestPipeline(t, Collaborators{}).Run(context.Background(), app)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Processing loan application " + app.ApplicationNumber,
		"Application validation passed",
		"Verifying 2 documents...",
		"All required documents verified successfully",
		"Initiating credit check...",
		"Credit check completed. Score: 700 (Bureau: Experian)",
		"Performing risk assessment...",
		"Risk assessment completed. Overall risk score: 84/100 (LOW risk)",
		"Making loan decision...",
		"Loan APPROVED: $25,000.00 at 5.00% APR for 36 months",
	}, state.Messages())

	result := state.Application
	assert.Equal(t, models.LoanStatusApproved, result.Status)
	assert.Equal(t, workflow.StatusCompleted, state.Status)
	assert.Equal(t, workflow.ActionComplete, state.NextAction)
	assert.False(t, state.HumanReviewRequired)

	assert.Equal(t, 700, result.CreditScore.Score)
	assert.Equal(t, 80, dtiScoreOf(result))
	assert.Equal(t, 85, result.RiskAssessment.PaymentHistoryScore)
	assert.Equal(t, 90, result.RiskAssessment.EmploymentStabilityScore)
	assert.Equal(t, 84, result.RiskAssessment.OverallRiskScore)
	assert.Equal(t, models.RiskLevelLow, result.RiskAssessment.RiskLevel)

	require.NotNil(t, result.Decision)
	assert.Equal(t, models.DecisionApproved, result.Decision.Decision)
	assert.True(t, result.Decision.ApprovedAmount.Equal(decimal.NewFromInt(25000)))
	assert.InDelta(t, 5.0, *result.Decision.InterestRate, 1e-9)
	assert.InDelta(t, 0.9, result.Decision.ConfidenceScore, 1e-9)

	assert.True(t, state.DocumentVerificationComplete)
	assert.True(t, state.CreditCheckComplete)
	assert.True(t, state.RiskAssessmentComplete)
	assert.True(t, state.DecisionComplete)
	for _, d := range result.Documents {
		assert.True(t, d.Verified)
	}

	// the caller's application is untouched
	assert.Equal(t, models.LoanStatusSubmitted, app.Status)
	assert.Nil(t, app.Decision)
}

func TestPipeline_RejectsWeakApplicant(t *testing.T) {
	app := models.SampleApplication(testNow)
	app.EmploymentInfo.Status = models.EmploymentRetired
	app.EmploymentInfo.EmployerName = ""
	app.EmploymentInfo.AnnualIncome = decimal.NewFromInt(60000)
	app.EmploymentInfo.MonthlyIncome = decimal.NewFromInt(5000)

	state, err := newTestPipeline(t, Collaborators{Scorer: fixedScore(580)}).Run(context.Background(), app)
	require.NoError(t, err)

	result := state.Application
	assert.Less(t, result.RiskAssessment.OverallRiskScore, 45)
	assert.Equal(t, models.DecisionRejected, result.Decision.Decision)
	assert.Contains(t, result.Decision.RejectionReasons, "Credit score below minimum requirement")
	assert.Contains(t, result.Decision.RejectionReasons, "High overall risk assessment")
	assert.InDelta(t, 0.8, result.Decision.ConfidenceScore, 1e-9)

	assert.Equal(t, models.LoanStatusRejected, result.Status)
	assert.False(t, state.HumanReviewRequired)
	assert.Equal(t, workflow.StatusCompleted, state.Status)
}

func TestPipeline_StopsForMissingDocuments(t *testing.T) {
	app := models.SampleApplication(testNow)
	app.LoanDetails.RequestedAmount = decimal.NewFromInt(30000)
	app.Documents = []models.Document{
		{ID: uuid.NewString(), DocumentType: models.DocumentIdentity, FileName: "license.png", MimeType: "image/png", UploadedAt: testNow},
	}

	state, err := newTestPipeline(t, Collaborators{}).Run(context.Background(), app)
	require.NoError(t, err)

	assert.Equal(t, []models.DocumentType{models.DocumentIncomeProof}, state.MissingDocuments)
	assert.Equal(t, models.LoanStatusDocumentsRequired, state.Application.Status)
	assert.True(t, state.HumanReviewRequired)
	assert.Equal(t, workflow.StatusRequiresHuman, state.Status)
	assert.Equal(t, workflow.ActionUploadDocuments, state.NextAction)
	assert.False(t, state.CreditCheckComplete)
	assert.Nil(t, state.Application.CreditScore)
	assert.Equal(t, "Missing required documents: Income Proof", state.Messages()[len(state.Messages())-1])
}

func TestPipeline_ConditionalApprovalGoesToUnderwriter(t *testing.T) {
	app := models.SampleApplication(testNow)
	app.LoanDetails.RequestedAmount = decimal.NewFromInt(150000)
	app.LoanDetails.RequestedTermMonths = 60
	app.Documents = append(app.Documents, models.Document{
		ID: uuid.NewString(), DocumentType: models.DocumentBankStatement, FileName: "statement.pdf",
		MimeType: "application/pdf", UploadedAt: testNow,
	})

	state, err := newTestPipeline(t, Collaborators{Scorer: fixedScore(680)}).Run(context.Background(), app)
	require.NoError(t, err)

	result := state.Application
	assert.Equal(t, models.DecisionConditional, result.Decision.Decision)
	assert.True(t, result.Decision.ApprovedAmount.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, models.LoanStatusApproved, result.Status)

	require.NotNil(t, result.AssignedUnderwriter)
	assert.Equal(t, "Senior Underwriter", *result.AssignedUnderwriter)
	assert.Equal(t, workflow.StatusRequiresHuman, state.Status)
	assert.Equal(t, workflow.ActionAwaitHumanDecision, state.NextAction)
	assert.True(t, state.HumanReviewRequired)

	messages := state.Messages()
	assert.Equal(t, []string{
		"Human review recommended due to low confidence or conditional approval",
		"Application flagged for human review. Assigning to underwriter...",
	}, messages[len(messages)-2:])
}

func TestPipeline_FailedValidationEndsRun(t *testing.T) {
	app := models.SampleApplication(testNow)
	app.FinancialInfo.MonthlyDebtPayments = decimal.NewFromInt(2500)

	state, err := newTestPipeline(t, Collaborators{}).Run(context.Background(), app)
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusFailed, state.Status)
	assert.Equal(t, workflow.ActionFixApplication, state.NextAction)
	assert.Contains(t, state.ErrorMessage, "Debt-to-income ratio too high")
	assert.Equal(t, models.LoanStatusSubmitted, state.Application.Status)
	assert.Len(t, state.Transcript, 2)
}

func TestPipeline_StageErrorMarksApplicationForReview(t *testing.T) {
	app := models.SampleApplication(testNow)

	state, err := newTestPipeline(t, Collaborators{Scorer: failingScorer{}}).Run(context.Background(), app)
	require.Error(t, err)

	stdErr, ok := errs.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errs.ErrCodeWorkflowProcessingFailed, stdErr.Code)

	assert.Equal(t, workflow.StatusFailed, state.Status)
	assert.Equal(t, models.LoanStatusUnderReview, state.Application.Status)
	require.Len(t, state.Application.Notes, 1)
	assert.Contains(t, state.Application.Notes[0], "Processing error: ")
	assert.Nil(t, state.Application.Decision)
}

func TestPipeline_RunWorkflowIsRepeatable(t *testing.T) {
	p := newTestPipeline(t, Collaborators{})
	app := models.SampleApplication(testNow)

	first, err := p.RunWorkflow(context.Background(), app)
	require.NoError(t, err)
	second, err := p.RunWorkflow(context.Background(), app)
	require.NoError(t, err)

	assert.Equal(t, first.Decision, second.Decision)
	assert.Equal(t, first.RiskAssessment, second.RiskAssessment)
	assert.Equal(t, first.WorkflowState, second.WorkflowState)
}

func dtiScoreOf(app *models.LoanApplication) int {
	switch dti := app.RiskAssessment.DebtToIncomeRatio; {
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
