// internal/workers/loan/save-workflow-result/handler_test.go
package saveworkflowresult

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"
	"loan-workflow/internal/repository"
	"loan-workflow/internal/workflow"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var testNow = time.Date(2025, time.March, 14, 10, 30, 0, 0, time.UTC)

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

func processedApplication() (*models.LoanApplication, workflow.Progress) {
	app := models.SampleApplication(testNow)
	app.Status = models.LoanStatusApproved
	app.CreditScore = &models.CreditScore{Score: 720, Bureau: "Experian", DateObtained: testNow, Factors: []string{}}
	app.RiskAssessment = &models.RiskAssessment{
		DebtToIncomeRatio: 0.23, PaymentHistoryScore: 85, EmploymentStabilityScore: 90,
		OverallRiskScore: 86, RiskLevel: models.RiskLevelLow, RiskFactors: []string{},
	}
	app.Decision = &models.Decision{Decision: models.DecisionApproved, DecisionDate: testNow, ConfidenceScore: 0.9}

	progress := workflow.NewState(app, testNow).Progress
	progress.Status = workflow.StatusCompleted
	progress.NextAction = workflow.ActionComplete
	return app, progress
}

type recordingStore struct {
	app   *models.LoanApplication
	audit repository.AuditEntry
	err   error
}

func (s *recordingStore) SaveWorkflowResult(_ context.Context, app *models.LoanApplication, audit repository.AuditEntry) error {
	s.app = app
	s.audit = audit
	return s.err
}

func newTestHandler(t *testing.T, store ResultStore) *Handler {
	h := NewHandler(createTestConfig(), store, logger.NewTestLogger(t))
	h.now = func() time.Time { return testNow }
	return h
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Save(t *testing.T) {
	store := &recordingStore{}
	h := newTestHandler(t, store)
	app, progress := processedApplication()

	output, err := h.Save(context.Background(), app, progress)
	require.NoError(t, err)

	assert.Equal(t, &Output{
		ApplicationNumber: app.ApplicationNumber,
		ApplicationStatus: models.LoanStatusApproved,
		Saved:             true,
		SavedAt:           "2025-03-14T10:30:00Z",
	}, output)

	require.NotNil(t, store.app)
	assert.Equal(t, testNow, store.app.UpdatedAt)
	require.NotNil(t, store.app.DecisionDate)
	assert.Equal(t, testNow, *store.app.DecisionDate)
	assert.Equal(t, "completed", store.app.WorkflowState["status"])

	assert.Equal(t, repository.AuditWorkflowCompleted, store.audit.Action)
	assert.Equal(t, map[string]interface{}{
		"status":              "approved",
		"workflowStatus":      "completed",
		"nextAction":          "complete",
		"humanReviewRequired": false,
		"decision":            "APPROVED",
		"confidence":          0.9,
		"creditScore":         720,
		"riskScore":           86,
	}, store.audit.Details)
}

func TestHandler_Save_FailedValidationRecordsError(t *testing.T) {
	store := &recordingStore{}
	h := newTestHandler(t, store)

	app := models.SampleApplication(testNow)
	progress := workflow.NewState(app, testNow).Progress
	progress.Status = workflow.StatusFailed
	progress.NextAction = workflow.ActionFixApplication
	progress.ErrorMessage = "Validation failed: Debt-to-income ratio too high"

	output, err := h.Save(context.Background(), app, progress)
	require.NoError(t, err)

	assert.Equal(t, models.LoanStatusDraft, output.ApplicationStatus)
	assert.Equal(t, models.LoanStatusDraft, store.app.Status)
	assert.Nil(t, store.app.SubmittedAt)
	assert.Contains(t, store.app.Notes, "Returned to draft: Validation failed: Debt-to-income ratio too high")
	assert.Nil(t, store.app.DecisionDate)
	assert.Equal(t, "draft", store.audit.Details["status"])
	assert.Equal(t, "Validation failed: Debt-to-income ratio too high", store.audit.Details["errorMessage"])
	assert.NotContains(t, store.audit.Details, "decision")
}

func TestHandler_Save_OnlyFailedValidationReturnsToDraft(t *testing.T) {
	tests := []struct {
		name       string
		stored     models.LoanStatus
		status     workflow.Status
		nextAction workflow.Action
		expected   models.LoanStatus
	}{
		{"fix application", models.LoanStatusUnderReview, workflow.StatusFailed, workflow.ActionFixApplication, models.LoanStatusDraft},
		{"documents missing", models.LoanStatusDocumentsRequired, workflow.StatusRequiresHuman, workflow.ActionUploadDocuments, models.LoanStatusDocumentsRequired},
		{"human review", models.LoanStatusUnderReview, workflow.StatusRequiresHuman, workflow.ActionHumanReview, models.LoanStatusUnderReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &recordingStore{}
			h := newTestHandler(t, store)

			app := models.SampleApplication(testNow)
			app.Status = tt.stored
			progress := workflow.NewState(app, testNow).Progress
			progress.Status = tt.status
			progress.NextAction = tt.nextAction

			_, err := h.Save(context.Background(), app, progress)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, store.app.Status)
		})
	}
}

func TestHandler_Save_WithPostgresRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	app, progress := processedApplication()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE loan_applications SET").
		WithArgs(app.ApplicationNumber, "approved", "personal", "25000.00", "jordan.rivera@example.com",
			nil, 1, "APPROVED", nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), testNow, sqlmock.AnyArg(), 1, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for _, doc := range app.Documents {
		mock.ExpectExec("UPDATE documents SET verified").
			WithArgs(doc.ID, app.ID, doc.Verified, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec("INSERT INTO credit_scores").
		WithArgs(sqlmock.AnyArg(), app.ID, 720, "Experian", testNow, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO risk_assessments").
		WithArgs(sqlmock.AnyArg(), app.ID, 0.23, 0.0, 85, 90, 86, "LOW", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), app.ID, repository.AuditWorkflowCompleted, "system", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	h := newTestHandler(t, repository.NewPostgresRepository(db))
	output, err := h.Save(context.Background(), app, progress)
	require.NoError(t, err)
	assert.True(t, output.Saved)
	assert.Equal(t, 1, app.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Save_StoreErrors(t *testing.T) {
	tests := []struct {
		name         string
		storeErr     error
		expectedCode errs.ErrorCode
	}{
		{
			name:         "database failure",
			storeErr:     errs.NewDatabaseError("update application", errors.New("connection reset")),
			expectedCode: errs.ErrCodeDatabaseError,
		},
		{
			name:         "application vanished",
			storeErr:     errs.NewApplicationNotFoundError("LOAN-20250314-ABCD1234"),
			expectedCode: errs.ErrCodeApplicationNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &recordingStore{err: tt.storeErr})
			app, progress := processedApplication()

			output, err := h.Save(context.Background(), app, progress)
			require.Error(t, err)
			assert.Nil(t, output)

			stdErr, ok := errs.AsStandardError(err)
			require.True(t, ok)
			assert.Equal(t, tt.expectedCode, stdErr.Code)
		})
	}
}

func TestInput_DecodesStageJobResult(t *testing.T) {
	app, progress := processedApplication()
	variables, err := json.Marshal(workflow.JobResult{
		Application:    app,
		Workflow:       progress,
		NextAction:     progress.NextAction,
		WorkflowStatus: progress.Status,
	})
	require.NoError(t, err)

	var input Input
	require.NoError(t, json.Unmarshal(variables, &input))
	require.NotNil(t, input.Application)
	require.NotNil(t, input.Workflow)
	assert.Equal(t, app.ApplicationNumber, input.Application.ApplicationNumber)
	assert.Equal(t, workflow.StatusCompleted, input.Workflow.Status)
}
