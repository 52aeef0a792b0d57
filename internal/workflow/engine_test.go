package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var happyPath = map[Stage]Action{
	StageValidateApplication: ActionVerifyDocuments,
	StageVerifyDocuments:     ActionCreditCheck,
	StageCreditCheck:         ActionRiskAssessment,
	StageRiskAssessment:      ActionMakeDecision,
	StageMakeDecision:        ActionComplete,
	StageHumanReview:         ActionAwaitHumanDecision,
}

type visitLog struct {
	mu     sync.Mutex
	stages []Stage
}

func (v *visitLog) add(s Stage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stages = append(v.stages, s)
}

// passing returns a stage that records its visit and moves along the happy path.
func passing(stage Stage, visited *visitLog) StageFunc {
	return func(_ context.Context, s *State) (*Outcome, error) {
		visited.add(stage)
		app := s.Application.Clone()
		return &Outcome{
			Application: app,
			Messages:    []string{string(stage) + " done"},
			Next:        happyPath[stage],
			Status:      StatusInProgress,
			Completed:   true,
		}, nil
	}
}

func newTestEngine(t *testing.T, overrides map[Stage]StageHandler) (*Engine, *visitLog) {
	visited := &visitLog{}
	stages := make(map[Stage]StageHandler, len(Stages))
	for _, s := range Stages {
		stages[s] = passing(s, visited)
	}
	for s, h := range overrides {
		stages[s] = h
	}

	e, err := NewEngine(stages, logger.NewTestLogger(t), WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return e, visited
}

// ==========================
// Engine
// ==========================

func TestNewEngine_RequiresEveryStage(t *testing.T) {
	_, err := NewEngine(map[Stage]StageHandler{}, logger.NewNoOpLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(StageValidateApplication))
}

func TestEngine_RunHappyPath(t *testing.T) {
	e, visited := newTestEngine(t, nil)
	app := models.SampleApplication(testNow)

	state, err := e.Run(context.Background(), app)
	require.NoError(t, err)

	assert.Equal(t, []Stage{
		StageValidateApplication, StageVerifyDocuments, StageCreditCheck,
		StageRiskAssessment, StageMakeDecision,
	}, visited.stages)
	assert.Equal(t, ActionComplete, state.NextAction)
	assert.True(t, state.DocumentVerificationComplete)
	assert.True(t, state.DecisionComplete)
	assert.Equal(t, "Processing loan application "+app.ApplicationNumber, state.Messages()[0])
	assert.Len(t, state.Transcript, 6)

	assert.NotEmpty(t, state.Application.WorkflowState)
	assert.Equal(t, "complete", state.Application.WorkflowState["nextAction"])
	assert.Empty(t, app.WorkflowState)
}

func TestEngine_RunRoutesToHumanReview(t *testing.T) {
	e, visited := newTestEngine(t, map[Stage]StageHandler{
		StageMakeDecision: StageFunc(func(_ context.Context, s *State) (*Outcome, error) {
			return &Outcome{Next: ActionHumanReview, Status: StatusRequiresHuman, HumanReviewRequired: true}, nil
		}),
	})

	state, err := e.Run(context.Background(), models.SampleApplication(testNow))
	require.NoError(t, err)

	assert.Equal(t, StageHumanReview, visited.stages[len(visited.stages)-1])
	assert.Equal(t, ActionAwaitHumanDecision, state.NextAction)
	assert.True(t, state.HumanReviewRequired)
}

func TestEngine_RunStopsOnFailedValidation(t *testing.T) {
	e, visited := newTestEngine(t, map[Stage]StageHandler{
		StageValidateApplication: StageFunc(func(_ context.Context, s *State) (*Outcome, error) {
			return &Outcome{
				Next:         ActionFixApplication,
				Status:       StatusFailed,
				ErrorMessage: "Validation errors: Loan details are missing",
			}, nil
		}),
	})

	state, err := e.Run(context.Background(), models.SampleApplication(testNow))
	require.NoError(t, err)
	assert.Empty(t, visited.stages)
	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, ActionFixApplication, state.NextAction)
}

func TestEngine_RunStageError(t *testing.T) {
	tests := []struct {
		name    string
		handler StageHandler
		wantMsg string
	}{
		{
			name: "returned error",
			handler: StageFunc(func(context.Context, *State) (*Outcome, error) {
				return nil, errors.New("bureau unavailable")
			}),
			wantMsg: "Processing error: bureau unavailable",
		},
		{
			name: "panic",
			handler: StageFunc(func(context.Context, *State) (*Outcome, error) {
				panic("nil map")
			}),
			wantMsg: "Processing error: stage credit_check panicked: nil map",
		},
		{
			name: "nil outcome",
			handler: StageFunc(func(context.Context, *State) (*Outcome, error) {
				return nil, nil
			}),
			wantMsg: "Processing error: stage credit_check returned no outcome",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, visited := newTestEngine(t, map[Stage]StageHandler{StageCreditCheck: tt.handler})

			state, err := e.Run(context.Background(), models.SampleApplication(testNow))
			require.Error(t, err)
			require.NotNil(t, state)

			stdErr, ok := errs.AsStandardError(err)
			require.True(t, ok)
			assert.Equal(t, errs.ErrCodeWorkflowProcessingFailed, stdErr.Code)
			assert.Equal(t, "credit_check", stdErr.Metadata["stage"])

			assert.Equal(t, []Stage{StageValidateApplication, StageVerifyDocuments}, visited.stages)
			assert.Equal(t, StatusFailed, state.Status)
			assert.Equal(t, tt.wantMsg, state.Messages()[len(state.Messages())-1])
			assert.Equal(t, models.LoanStatusUnderReview, state.Application.Status)
			assert.Contains(t, state.Application.Notes, tt.wantMsg)
			assert.Equal(t, "failed", state.Application.WorkflowState["status"])
		})
	}
}

func TestEngine_RunStepLimit(t *testing.T) {
	loop := StageFunc(func(_ context.Context, s *State) (*Outcome, error) {
		return &Outcome{Next: ActionCreditCheck}, nil
	})
	e, _ := newTestEngine(t, map[Stage]StageHandler{StageCreditCheck: loop})

	state, err := e.Run(context.Background(), models.SampleApplication(testNow))
	require.Error(t, err)
	assert.Equal(t, StatusFailed, state.Status)
	assert.Contains(t, state.ErrorMessage, "exceeded 12 steps")
}

func TestEngine_RunCancelledContext(t *testing.T) {
	e, visited := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := e.Run(ctx, models.SampleApplication(testNow))
	require.Error(t, err)
	assert.Empty(t, visited.stages)
	assert.Equal(t, StatusFailed, state.Status)
}

func TestEngine_RunWorkflowNilApplication(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	app, err := e.RunWorkflow(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, app)
}

func TestEngine_ConcurrentRuns(t *testing.T) {
	e, _ := newTestEngine(t, map[Stage]StageHandler{
		StageVerifyDocuments: StageFunc(func(_ context.Context, s *State) (*Outcome, error) {
			app := s.Application.Clone()
			app.AddNote("verified for " + app.ApplicationNumber)
			return &Outcome{Application: app, Next: ActionCreditCheck}, nil
		}),
	})

	const runs = 16
	results := make(chan *models.LoanApplication, runs)
	for i := 0; i < runs; i++ {
		go func() {
			app, err := e.RunWorkflow(context.Background(), models.SampleApplication(testNow))
			assert.NoError(t, err)
			results <- app
		}()
	}

	for i := 0; i < runs; i++ {
		app := <-results
		require.NotNil(t, app)
		assert.Equal(t, []string{"verified for " + app.ApplicationNumber}, app.Notes)
	}
}
