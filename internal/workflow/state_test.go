package workflow

import (
	"testing"
	"time"

	"loan-workflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, time.March, 14, 10, 30, 0, 0, time.UTC)

func TestNewState(t *testing.T) {
	app := models.SampleApplication(testNow)
	s := NewState(app, testNow)

	assert.Same(t, app, s.Application)
	assert.Equal(t, []string{"Processing loan application " + app.ApplicationNumber}, s.Messages())
	assert.Equal(t, ActionValidateApplication, s.NextAction)
	assert.Equal(t, StatusPending, s.Status)
	assert.Zero(t, s.RetryCount)
}

func TestState_Apply(t *testing.T) {
	s := NewState(models.SampleApplication(testNow), testNow)
	updated := s.Application.Clone()
	updated.Status = models.LoanStatusCreditCheck

	s.Apply(StageCreditCheck, &Outcome{
		Application: updated,
		Messages:    []string{"a", "b"},
		Next:        ActionRiskAssessment,
		Completed:   true,
		Results:     StageResults{CreditScore: IntPtr(700)},
	}, testNow.Add(time.Second))

	assert.Same(t, updated, s.Application)
	assert.Equal(t, ActionRiskAssessment, s.NextAction)
	assert.True(t, s.CreditCheckComplete)
	assert.False(t, s.RiskAssessmentComplete)
	assert.Equal(t, 700, *s.Results.CreditScore)
	require.Len(t, s.Transcript, 3)
	assert.Equal(t, StageCreditCheck, s.Transcript[2].Stage)
	assert.Equal(t, testNow.Add(time.Second), s.Transcript[2].At)

	// a later outcome without results keeps earlier ones
	s.Apply(StageRiskAssessment, &Outcome{
		Next:      ActionMakeDecision,
		Completed: true,
		Results:   StageResults{RiskScore: IntPtr(84), RiskLevel: models.RiskLevelLow},
	}, testNow)

	assert.Same(t, updated, s.Application)
	assert.Equal(t, 700, *s.Results.CreditScore)
	assert.Equal(t, 84, *s.Results.RiskScore)
	assert.True(t, s.RiskAssessmentComplete)
}

func TestState_ApplyHumanFlagIsSticky(t *testing.T) {
	s := NewState(models.SampleApplication(testNow), testNow)

	s.Apply(StageMakeDecision, &Outcome{Next: ActionHumanReview, HumanReviewRequired: true, Status: StatusRequiresHuman}, testNow)
	s.Apply(StageHumanReview, &Outcome{Next: ActionAwaitHumanDecision, UnderwriterNotes: []string{"Assigned to Senior Underwriter"}}, testNow)

	assert.True(t, s.HumanReviewRequired)
	assert.Equal(t, StatusRequiresHuman, s.Status)
	assert.Equal(t, []string{"Assigned to Senior Underwriter"}, s.UnderwriterNotes)
}

func TestProgressSnapshotRoundTrip(t *testing.T) {
	s := NewState(models.SampleApplication(testNow), testNow)
	s.Apply(StageVerifyDocuments, &Outcome{
		Messages:            []string{"Missing required documents: Income Proof"},
		Next:                ActionUploadDocuments,
		Status:              StatusRequiresHuman,
		HumanReviewRequired: true,
		MissingDocuments:    []models.DocumentType{models.DocumentIncomeProof},
	}, testNow)

	snapshot := s.Progress.ToMap()
	assert.Equal(t, "upload_documents", snapshot["nextAction"])
	assert.Equal(t, "requires_human", snapshot["status"])

	restored, err := ProgressFromMap(snapshot)
	require.NoError(t, err)
	assert.Equal(t, s.Progress.NextAction, restored.NextAction)
	assert.Equal(t, s.Progress.MissingDocuments, restored.MissingDocuments)
	assert.Len(t, restored.Transcript, 2)

	empty, err := ProgressFromMap(nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Transcript)
}
