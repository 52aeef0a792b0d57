// Package service is the application layer: it owns the lifecycle of a loan
// application around the workflow engine (intake, submission, processing,
// persistence and the side effects of a decision).
package service

import (
	"context"
	"fmt"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"
	"loan-workflow/internal/repository"
	"loan-workflow/internal/search"
	saveworkflowresult "loan-workflow/internal/workers/loan/save-workflow-result"
	sendnotification "loan-workflow/internal/workers/loan/send-decision-notification"
	"loan-workflow/internal/workflow"
)

const (
	statisticsWindow   = 30 * 24 * time.Hour
	defaultProcessID   = "loan-origination"
	defaultPriority    = 1
	defaultPendingSize = 20
)

// Repository is the persistence the service needs. *repository.PostgresRepository
// implements it.
type Repository interface {
	Create(ctx context.Context, app *models.LoanApplication) error
	GetByNumber(ctx context.Context, number string) (*models.LoanApplication, error)
	Update(ctx context.Context, app *models.LoanApplication, audit repository.AuditEntry) error
	SaveWorkflowResult(ctx context.Context, app *models.LoanApplication, audit repository.AuditEntry) error
	AddDocument(ctx context.Context, number string, doc models.Document) (*models.LoanApplication, error)
	ListByStatus(ctx context.Context, status models.LoanStatus, limit, offset int) ([]models.ApplicationSummary, error)
	ListForUnderwriter(ctx context.Context, underwriter string) ([]models.ApplicationSummary, error)
	Statistics(ctx context.Context, since time.Time) (*models.ApplicationStatistics, error)
}

// WorkflowRunner runs the underwriting workflow in process. *workflow.Engine
// and *pipeline.Pipeline implement it.
type WorkflowRunner interface {
	Run(ctx context.Context, app *models.LoanApplication) (*workflow.State, error)
}

type NumberReserver interface {
	Next(ctx context.Context) (string, error)
}

type TranscriptIndex interface {
	Index(ctx context.Context, state *workflow.State) error
	Search(ctx context.Context, q search.TranscriptQuery) (*search.SearchResult, error)
}

type DecisionPublisher interface {
	PublishDecision(ctx context.Context, state *workflow.State) error
}

type Notifier interface {
	Notify(ctx context.Context, app *models.LoanApplication) (*sendnotification.Output, error)
}

// ProcessStarter starts a BPMN process instance. *camunda.Client implements it.
type ProcessStarter interface {
	StartProcess(ctx context.Context, processID string, variables interface{}) (int64, error)
}

// RunRecorder records finished runs. *observability.Observability implements it.
type RunRecorder interface {
	RecordRun(ctx context.Context, outcome string, duration time.Duration)
}

// Dependencies wires the service. Repository and Runner are required; every
// other collaborator is optional and its feature is off when nil.
type Dependencies struct {
	Repository Repository
	Runner     WorkflowRunner
	Numbers    NumberReserver
	Index      TranscriptIndex
	Events     DecisionPublisher
	Notifier   Notifier
	Processes  ProcessStarter
	Metrics    RunRecorder
}

type Config struct {
	// ProcessID is the BPMN process started by Dispatch.
	ProcessID string
	// PendingBatchSize caps ProcessPending when called with a non-positive limit.
	PendingBatchSize int
}

type LoanService struct {
	config Config
	deps   Dependencies
	saver  *saveworkflowresult.Handler
	logger logger.Logger
	now    func() time.Time
}

func New(config Config, deps Dependencies, log logger.Logger) *LoanService {
	if config.ProcessID == "" {
		config.ProcessID = defaultProcessID
	}
	if config.PendingBatchSize <= 0 {
		config.PendingBatchSize = defaultPendingSize
	}
	log = log.WithFields(map[string]interface{}{"component": "loan-service"})

	return &LoanService{
		config: config,
		deps:   deps,
		saver:  saveworkflowresult.NewHandler(saveworkflowresult.LoadConfig(), deps.Repository, log),
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get loads an application by its number.
func (s *LoanService) Get(ctx context.Context, number string) (*models.LoanApplication, error) {
	return s.deps.Repository.GetByNumber(ctx, number)
}

// DocumentRequirements describes what an application still needs to upload.
type DocumentRequirements struct {
	ApplicationNumber string                `json:"applicationNumber"`
	Required          []models.DocumentType `json:"required"`
	Missing           []models.DocumentType `json:"missing"`
	Complete          bool                  `json:"complete"`
}

func (s *LoanService) RequiredDocuments(ctx context.Context, number string) (*DocumentRequirements, error) {
	app, err := s.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	missing := app.MissingDocuments()
	if missing == nil {
		missing = []models.DocumentType{}
	}
	return &DocumentRequirements{
		ApplicationNumber: app.ApplicationNumber,
		Required:          app.RequiredDocuments(),
		Missing:           missing,
		Complete:          len(missing) == 0,
	}, nil
}

// WorkflowState returns the snapshot of the application's last run.
func (s *LoanService) WorkflowState(ctx context.Context, number string) (*workflow.Progress, error) {
	app, err := s.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	progress, err := workflow.ProgressFromMap(app.WorkflowState)
	if err != nil {
		return nil, errs.NewInternalError(fmt.Errorf("decode workflow state: %w", err))
	}
	return &progress, nil
}
