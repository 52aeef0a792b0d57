// internal/workers/loan/verify-documents/handler.go
package verifydocuments

import (
	"context"
	"fmt"
	"strings"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"
	"loan-workflow/internal/workflow"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "verify-documents"
)

type Handler struct {
	config   *Config
	analyzer DocumentAnalyzer
	logger   logger.Logger
	runner   *workflow.JobRunner
}

// NewHandler builds the stage. A nil analyzer accepts every document with
// config.AutoVerifyNote.
func NewHandler(config *Config, analyzer DocumentAnalyzer, log logger.Logger) *Handler {
	if analyzer == nil {
		analyzer = StaticAnalyzer{Note: config.AutoVerifyNote}
	}
	h := &Handler{
		config:   config,
		analyzer: analyzer,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
	h.runner = workflow.NewJobRunner(TaskType, workflow.StageVerifyDocuments, h, config.Timeout, h.logger)
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Handle(client, job)
}

// Execute checks the required document set, then runs every unverified
// document through the analyzer.
func (h *Handler) Execute(ctx context.Context, state *workflow.State) (*workflow.Outcome, error) {
	app := state.Application.Clone()
	log := h.logger.WithFields(map[string]interface{}{"applicationNumber": app.ApplicationNumber})

	if missing := app.MissingDocuments(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = m.DisplayName()
		}
		app.Status = models.LoanStatusDocumentsRequired
		log.Info("required documents missing", map[string]interface{}{"missing": missing})

		return &workflow.Outcome{
			Application:         app,
			Messages:            []string{"Missing required documents: " + strings.Join(names, ", ")},
			Next:                workflow.ActionUploadDocuments,
			Status:              workflow.StatusRequiresHuman,
			HumanReviewRequired: true,
			MissingDocuments:    missing,
		}, nil
	}

	var messages []string
	unverified := 0
	for _, d := range app.Documents {
		if !d.Verified {
			unverified++
		}
	}
	if unverified > 0 {
		messages = append(messages, fmt.Sprintf("Verifying %d documents...", unverified))
	}

	var rejected []string
	for i := range app.Documents {
		doc := &app.Documents[i]
		if doc.Verified {
			continue
		}

		res, err := h.analyzer.Analyze(ctx, *doc)
		if err != nil {
			return nil, errs.NewDocumentAnalysisFailedError(doc.ID, err)
		}

		if res.IsValid {
			doc.Verified = true
			doc.VerificationNotes = res.VerificationNotes
			if doc.VerificationNotes == "" {
				doc.VerificationNotes = h.config.AutoVerifyNote
			}
			continue
		}

		issues := strings.Join(res.IssuesFound, "; ")
		if issues == "" {
			issues = "document could not be verified"
		}
		doc.VerificationNotes = issues
		rejected = append(rejected, fmt.Sprintf("%s (%s)", doc.DocumentType.DisplayName(), issues))
	}

	if len(rejected) > 0 {
		app.Status = models.LoanStatusDocumentsRequired
		log.Warn("document verification failed", map[string]interface{}{"rejected": rejected})
		return &workflow.Outcome{
			Application:         app,
			Messages:            append(messages, "Document verification failed: "+strings.Join(rejected, "; ")),
			Next:                workflow.ActionUploadDocuments,
			Status:              workflow.StatusRequiresHuman,
			HumanReviewRequired: true,
		}, nil
	}

	log.Info("documents verified", map[string]interface{}{"verified": unverified})
	return &workflow.Outcome{
		Application: app,
		Messages:    append(messages, MsgAllVerified),
		Next:        workflow.ActionCreditCheck,
		Completed:   true,
	}, nil
}
