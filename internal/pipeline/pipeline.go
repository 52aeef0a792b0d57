// Package pipeline assembles the stage handlers into a workflow engine.
package pipeline

import (
	"time"

	"loan-workflow/internal/common/logger"
	creditcheck "loan-workflow/internal/workers/loan/credit-check"
	humanreview "loan-workflow/internal/workers/loan/human-review"
	makedecision "loan-workflow/internal/workers/loan/make-decision"
	riskassessment "loan-workflow/internal/workers/loan/risk-assessment"
	validateapplication "loan-workflow/internal/workers/loan/validate-application"
	verifydocuments "loan-workflow/internal/workers/loan/verify-documents"
	"loan-workflow/internal/workflow"
)

// Config carries the per-stage settings.
type Config struct {
	Validate    *validateapplication.Config
	Documents   *verifydocuments.Config
	CreditCheck *creditcheck.Config
	Risk        *riskassessment.Config
	Decision    *makedecision.Config
	HumanReview *humanreview.Config
}

func DefaultConfig() Config {
	return Config{
		Validate:    validateapplication.LoadConfig(),
		Documents:   verifydocuments.LoadConfig(),
		CreditCheck: creditcheck.LoadConfig(),
		Risk:        riskassessment.LoadConfig(),
		Decision:    makedecision.LoadConfig(),
		HumanReview: humanreview.LoadConfig(),
	}
}

// Collaborators are the external services the stages call. Nil fields use the
// built-in defaults.
type Collaborators struct {
	Analyzer verifydocuments.DocumentAnalyzer
	Scorer   creditcheck.CreditScorer
	Assigner humanreview.UnderwriterAssigner
}

// Pipeline is an engine together with the handlers it runs, so the same
// handlers can be registered as zeebe job workers.
type Pipeline struct {
	*workflow.Engine

	Validate    *validateapplication.Handler
	Documents   *verifydocuments.Handler
	CreditCheck *creditcheck.Handler
	Risk        *riskassessment.Handler
	Decision    *makedecision.Handler
	HumanReview *humanreview.Handler
}

// New builds every stage handler and the engine around them. now drives
// transcript timestamps, tenure and decision dates; nil means wall-clock UTC.
func New(cfg Config, c Collaborators, log logger.Logger, now func() time.Time, opts ...workflow.Option) (*Pipeline, error) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	p := &Pipeline{
		Validate:    validateapplication.NewHandler(cfg.Validate, log),
		Documents:   verifydocuments.NewHandler(cfg.Documents, c.Analyzer, log),
		CreditCheck: creditcheck.NewHandler(cfg.CreditCheck, c.Scorer, log),
		Risk:        riskassessment.NewHandler(cfg.Risk, log).WithClock(now),
		Decision:    makedecision.NewHandler(cfg.Decision, log).WithClock(now),
		HumanReview: humanreview.NewHandler(cfg.HumanReview, c.Assigner, log),
	}

	engine, err := workflow.NewEngine(p.Stages(), log, append([]workflow.Option{workflow.WithClock(now)}, opts...)...)
	if err != nil {
		return nil, err
	}
	p.Engine = engine
	return p, nil
}

// Stages maps each stage to its handler.
func (p *Pipeline) Stages() map[workflow.Stage]workflow.StageHandler {
	return map[workflow.Stage]workflow.StageHandler{
		workflow.StageValidateApplication: p.Validate,
		workflow.StageVerifyDocuments:     p.Documents,
		workflow.StageCreditCheck:         p.CreditCheck,
		workflow.StageRiskAssessment:      p.Risk,
		workflow.StageMakeDecision:        p.Decision,
		workflow.StageHumanReview:         p.HumanReview,
	}
}
