package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobVariables(t *testing.T, app *models.LoanApplication, progress *Progress) string {
	data, err := json.Marshal(JobVariables{Application: app, Workflow: progress})
	require.NoError(t, err)
	return string(data)
}

func TestJobRunner_Run(t *testing.T) {
	stage := StageFunc(func(_ context.Context, s *State) (*Outcome, error) {
		app := s.Application.Clone()
		app.Status = models.LoanStatusUnderReview
		return &Outcome{
			Application: app,
			Messages:    []string{"Application validation passed"},
			Next:        ActionVerifyDocuments,
			Status:      StatusInProgress,
		}, nil
	})
	runner := NewJobRunner("validate-application", StageValidateApplication, stage, time.Second, logger.NewNoOpLogger())
	app := models.SampleApplication(testNow)

	result, err := runner.run(context.Background(), jobVariables(t, app, nil))
	require.NoError(t, err)

	assert.Equal(t, ActionVerifyDocuments, result.NextAction)
	assert.Equal(t, StatusInProgress, result.WorkflowStatus)
	assert.Equal(t, models.LoanStatusUnderReview, result.Application.Status)
	require.Len(t, result.Workflow.Transcript, 2)
	assert.Equal(t, "Processing loan application "+app.ApplicationNumber, result.Workflow.Transcript[0].Content)
	assert.Equal(t, "verify_documents", result.Application.WorkflowState["nextAction"])
}

func TestJobRunner_RunContinuesSnapshot(t *testing.T) {
	seen := 0
	stage := StageFunc(func(_ context.Context, s *State) (*Outcome, error) {
		seen = len(s.Transcript)
		return &Outcome{Messages: []string{"Initiating credit check..."}, Next: ActionRiskAssessment, Completed: true}, nil
	})
	runner := NewJobRunner("credit-check", StageCreditCheck, stage, time.Second, logger.NewNoOpLogger())

	app := models.SampleApplication(testNow)
	progress := NewState(app, testNow).Progress
	progress.Transcript = append(progress.Transcript, Message{Content: "All required documents verified successfully", At: testNow})
	progress.DocumentVerificationComplete = true

	result, err := runner.run(context.Background(), jobVariables(t, app, &progress))
	require.NoError(t, err)

	assert.Equal(t, 2, seen)
	assert.Len(t, result.Workflow.Transcript, 3)
	assert.True(t, result.Workflow.DocumentVerificationComplete)
	assert.True(t, result.Workflow.CreditCheckComplete)
}

func TestJobRunner_RunInvalidVariables(t *testing.T) {
	runner := NewJobRunner("credit-check", StageCreditCheck, StageFunc(func(context.Context, *State) (*Outcome, error) {
		t.Fatal("stage must not run")
		return nil, nil
	}), time.Second, logger.NewNoOpLogger())

	for _, vars := range []string{`not json`, `{}`, `{"application": null}`} {
		_, err := runner.run(context.Background(), vars)
		require.Error(t, err, vars)

		stdErr, ok := errs.AsStandardError(err)
		require.True(t, ok)
		assert.Equal(t, errs.ErrCodeInvalidInput, stdErr.Code)
	}
}
