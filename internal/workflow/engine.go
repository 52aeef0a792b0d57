package workflow

import (
	"context"
	"fmt"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/common/metrics"
	"loan-workflow/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "loan-workflow/engine"

	// six stages, each visited at most once on any path
	defaultMaxSteps = 12
)

// StageHandler runs one stage against the current state. Implementations must
// not mutate state.Application; they return an updated copy in the Outcome.
type StageHandler interface {
	Execute(ctx context.Context, state *State) (*Outcome, error)
}

// StageFunc adapts a function to StageHandler.
type StageFunc func(ctx context.Context, state *State) (*Outcome, error)

func (f StageFunc) Execute(ctx context.Context, state *State) (*Outcome, error) {
	return f(ctx, state)
}

// Engine runs applications through the registered stages.
type Engine struct {
	stages   map[Stage]StageHandler
	logger   logger.Logger
	tracer   trace.Tracer
	now      func() time.Time
	maxSteps int
}

type Option func(*Engine)

// WithClock sets the time source used for transcript timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func WithMaxSteps(n int) Option {
	return func(e *Engine) { e.maxSteps = n }
}

// NewEngine returns an engine with a handler for every stage in Stages.
func NewEngine(stages map[Stage]StageHandler, log logger.Logger, opts ...Option) (*Engine, error) {
	for _, s := range Stages {
		if stages[s] == nil {
			return nil, fmt.Errorf("no handler registered for stage %s", s)
		}
	}

	e := &Engine{
		stages:   stages,
		logger:   log.WithFields(map[string]interface{}{"component": "workflow-engine"}),
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
		maxSteps: defaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RunWorkflow runs app through the pipeline and returns the updated copy.
func (e *Engine) RunWorkflow(ctx context.Context, app *models.LoanApplication) (*models.LoanApplication, error) {
	state, err := e.Run(ctx, app)
	if state == nil {
		return nil, err
	}
	return state.Application, err
}

// Run drives a copy of app from validation to a terminal state. app itself is
// never modified. When a stage fails the returned state is still populated: the
// application is moved to under_review with a "Processing error" note, and the
// error is returned as WORKFLOW_PROCESSING_FAILED.
func (e *Engine) Run(ctx context.Context, app *models.LoanApplication) (*State, error) {
	if app == nil {
		return nil, errs.NewInvalidInputError("application is required")
	}

	ctx, span := e.tracer.Start(ctx, "loan.workflow",
		trace.WithAttributes(attribute.String("loan.application_number", app.ApplicationNumber)))
	defer span.End()

	log := e.logger.WithFields(map[string]interface{}{"applicationNumber": app.ApplicationNumber})
	state := NewState(app.Clone(), e.now())
	log.Info("workflow started", nil)

	stage := StageValidateApplication
	for step := 0; ; step++ {
		if step >= e.maxSteps {
			return e.fail(span, log, state, stage, fmt.Errorf("workflow exceeded %d steps", e.maxSteps))
		}
		if err := ctx.Err(); err != nil {
			return e.fail(span, log, state, stage, err)
		}

		out, err := e.runStage(ctx, stage, state)
		if err != nil {
			return e.fail(span, log, state, stage, err)
		}
		state.Apply(stage, out, e.now())

		next, ok := Route(state)
		if !ok {
			break
		}
		stage = next
	}

	e.finish(state)
	metrics.WorkflowRuns.WithLabelValues(string(state.Status)).Inc()
	span.SetAttributes(attribute.String("workflow.status", string(state.Status)))

	log.Info("workflow finished", map[string]interface{}{
		"workflowStatus":    state.Status,
		"nextAction":        state.NextAction,
		"applicationStatus": state.Application.Status,
		"humanReview":       state.HumanReviewRequired,
	})
	return state, nil
}

func (e *Engine) runStage(ctx context.Context, stage Stage, state *State) (out *Outcome, err error) {
	ctx, span := e.tracer.Start(ctx, "loan.stage."+string(stage),
		trace.WithAttributes(attribute.String("workflow.stage", string(stage))))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage, r)
		}
		if err == nil && out == nil {
			err = fmt.Errorf("stage %s returned no outcome", stage)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
		span.End()
	}()

	return e.stages[stage].Execute(ctx, state)
}

func (e *Engine) fail(span trace.Span, log logger.Logger, state *State, stage Stage, cause error) (*State, error) {
	note := "Processing error: " + cause.Error()
	app := state.Application

	state.Transcript = append(state.Transcript, Message{Stage: stage, Content: note, At: e.now()})
	state.Status = StatusFailed
	state.ErrorMessage = cause.Error()
	app.AddNote(note)
	app.Status = models.LoanStatusUnderReview
	e.finish(state)

	metrics.StageErrors.WithLabelValues(string(stage)).Inc()
	metrics.WorkflowRuns.WithLabelValues(string(StatusFailed)).Inc()
	span.RecordError(cause)
	span.SetStatus(codes.Error, note)

	log.WithError(cause).Error("workflow processing error", map[string]interface{}{"stage": stage})
	return state, errs.NewWorkflowProcessingFailedError(string(stage), cause)
}

func (e *Engine) finish(state *State) {
	now := e.now()
	state.Application.WorkflowState = state.Progress.ToMap()
	state.Application.UpdatedAt = now
}
