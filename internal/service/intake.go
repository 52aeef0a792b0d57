package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/validation"
	"loan-workflow/internal/models"
	"loan-workflow/internal/repository"

	"github.com/google/uuid"
)

// ApplicationRequest is the intake document for a new application.
type ApplicationRequest struct {
	PersonalInfo   *models.PersonalInfo   `json:"personalInfo"`
	EmploymentInfo *models.EmploymentInfo `json:"employmentInfo"`
	FinancialInfo  *models.FinancialInfo  `json:"financialInfo"`
	LoanDetails    *models.LoanDetails    `json:"loanDetails"`
	Documents      []DocumentRequest      `json:"documents,omitempty"`
	PriorityLevel  int                    `json:"priorityLevel,omitempty"`
}

// UpdateRequest replaces the sections that are present.
type UpdateRequest struct {
	PersonalInfo   *models.PersonalInfo   `json:"personalInfo,omitempty"`
	EmploymentInfo *models.EmploymentInfo `json:"employmentInfo,omitempty"`
	FinancialInfo  *models.FinancialInfo  `json:"financialInfo,omitempty"`
	LoanDetails    *models.LoanDetails    `json:"loanDetails,omitempty"`
	PriorityLevel  *int                   `json:"priorityLevel,omitempty"`
}

type DocumentRequest struct {
	DocumentType models.DocumentType `json:"documentType"`
	FileName     string              `json:"fileName"`
	FilePath     string              `json:"filePath,omitempty"`
	FileSize     int64               `json:"fileSize"`
	MimeType     string              `json:"mimeType"`
}

// Applications in these statuses can still be edited by the applicant.
var editableStatuses = map[models.LoanStatus]bool{
	models.LoanStatusDraft:             true,
	models.LoanStatusDocumentsRequired: true,
}

// Documents can be added until a decision is final.
var closedStatuses = map[models.LoanStatus]bool{
	models.LoanStatusApproved:  true,
	models.LoanStatusRejected:  true,
	models.LoanStatusFunded:    true,
	models.LoanStatusCancelled: true,
}

// CheckPayload validates an intake document without storing anything. It
// returns the schema violations, or the construction invariant violations when
// the shape is valid.
func CheckPayload(payload []byte) ([]string, error) {
	result, err := validation.ValidateApplicationPayload(payload)
	if err != nil {
		return nil, errs.NewInvalidInputError(err.Error())
	}
	if !result.Valid {
		return result.GetErrorMessages(), nil
	}

	req, err := decodeRequest(payload)
	if err != nil {
		return nil, err
	}
	app := newApplication(req, "", models.LoanStatusDraft, nilTime)
	if err := app.Validate(); err != nil {
		var messages []string
		var verrs models.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				messages = append(messages, fe.Field+": "+fe.Message)
			}
			return messages, nil
		}
		return []string{err.Error()}, nil
	}
	return nil, nil
}

// Create validates an intake document and stores it as a draft application.
func (s *LoanService) Create(ctx context.Context, payload []byte) (*models.LoanApplication, error) {
	problems, err := CheckPayload(payload)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, errs.NewApplicationValidationFailedError(strings.Join(problems, "; "))
	}

	req, err := decodeRequest(payload)
	if err != nil {
		return nil, err
	}

	number, err := s.nextNumber(ctx)
	if err != nil {
		return nil, err
	}

	app := newApplication(req, number, models.LoanStatusDraft, s.now)
	if err := s.deps.Repository.Create(ctx, app); err != nil {
		return nil, err
	}

	s.logger.Info("application created", map[string]interface{}{
		"applicationNumber": app.ApplicationNumber,
		"loanType":          app.LoanDetails.LoanType,
		"documents":         len(app.Documents),
	})
	return app, nil
}

// Update edits an application that has not entered underwriting.
func (s *LoanService) Update(ctx context.Context, number string, req UpdateRequest, actor string) (*models.LoanApplication, error) {
	app, err := s.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	if !editableStatuses[app.Status] {
		return nil, errs.NewInvalidApplicationStateError("update", string(app.Status))
	}

	changed := []string{}
	if req.PersonalInfo != nil {
		app.PersonalInfo = req.PersonalInfo
		changed = append(changed, "personalInfo")
	}
	if req.EmploymentInfo != nil {
		app.EmploymentInfo = req.EmploymentInfo
		changed = append(changed, "employmentInfo")
	}
	if req.FinancialInfo != nil {
		app.FinancialInfo = req.FinancialInfo
		changed = append(changed, "financialInfo")
	}
	if req.LoanDetails != nil {
		app.LoanDetails = req.LoanDetails
		changed = append(changed, "loanDetails")
	}
	if req.PriorityLevel != nil {
		app.PriorityLevel = *req.PriorityLevel
		changed = append(changed, "priorityLevel")
	}
	if len(changed) == 0 {
		return nil, errs.NewInvalidInputError("update carries no changes")
	}
	if err := app.Validate(); err != nil {
		return nil, errs.NewApplicationValidationFailedError(err.Error())
	}

	app.UpdatedAt = s.now()
	if err := s.deps.Repository.Update(ctx, app, repository.AuditEntry{
		Action:  repository.AuditApplicationUpdated,
		Actor:   actor,
		Details: map[string]interface{}{"fields": changed},
	}); err != nil {
		return nil, err
	}
	return app, nil
}

// Submit moves a draft into the processing queue.
func (s *LoanService) Submit(ctx context.Context, number, actor string) (*models.LoanApplication, error) {
	app, err := s.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	if app.Status != models.LoanStatusDraft {
		return nil, errs.NewInvalidApplicationStateError("submit", string(app.Status))
	}

	now := s.now()
	app.Status = models.LoanStatusSubmitted
	app.SubmittedAt = &now
	app.UpdatedAt = now

	if err := s.deps.Repository.Update(ctx, app, repository.AuditEntry{
		Action: repository.AuditApplicationSubmitted,
		Actor:  actor,
	}); err != nil {
		return nil, err
	}

	s.logger.Info("application submitted", map[string]interface{}{"applicationNumber": number})
	return app, nil
}

// Cancel withdraws a draft or rejected application.
func (s *LoanService) Cancel(ctx context.Context, number, actor string) (*models.LoanApplication, error) {
	app, err := s.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	if app.Status != models.LoanStatusDraft && app.Status != models.LoanStatusRejected {
		return nil, errs.NewInvalidApplicationStateError("cancel", string(app.Status))
	}

	previous := app.Status
	app.Status = models.LoanStatusCancelled
	app.UpdatedAt = s.now()

	if err := s.deps.Repository.Update(ctx, app, repository.AuditEntry{
		Action:  repository.AuditApplicationCancelled,
		Actor:   actor,
		Details: map[string]interface{}{"previousStatus": string(previous)},
	}); err != nil {
		return nil, err
	}
	return app, nil
}

// AddDocument attaches a document. An application waiting on documents goes
// back into the processing queue once nothing required is missing.
func (s *LoanService) AddDocument(ctx context.Context, number string, req DocumentRequest) (*models.LoanApplication, error) {
	if !req.DocumentType.Valid() {
		return nil, errs.NewInvalidInputError(fmt.Sprintf("unknown document type %q", req.DocumentType))
	}
	if strings.TrimSpace(req.FileName) == "" {
		return nil, errs.NewInvalidInputError("fileName is required")
	}

	current, err := s.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	if closedStatuses[current.Status] {
		return nil, errs.NewInvalidApplicationStateError("add document", string(current.Status))
	}

	app, err := s.deps.Repository.AddDocument(ctx, number, newDocument(req, s.now()))
	if err != nil {
		return nil, err
	}

	if app.Status == models.LoanStatusDocumentsRequired && app.IsComplete() {
		app.Status = models.LoanStatusSubmitted
		app.UpdatedAt = s.now()
		if err := s.deps.Repository.Update(ctx, app, repository.AuditEntry{
			Action:  repository.AuditApplicationSubmitted,
			Details: map[string]interface{}{"reason": "required documents received"},
		}); err != nil {
			return nil, err
		}
		s.logger.Info("documents complete, application requeued", map[string]interface{}{"applicationNumber": number})
	}
	return app, nil
}

func (s *LoanService) nextNumber(ctx context.Context) (string, error) {
	if s.deps.Numbers == nil {
		return models.NewApplicationNumber(s.now()), nil
	}
	return s.deps.Numbers.Next(ctx)
}

func decodeRequest(payload []byte) (*ApplicationRequest, error) {
	var req ApplicationRequest
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&req); err != nil {
		return nil, errs.NewInvalidInputError(fmt.Sprintf("decode application: %v", err))
	}
	return &req, nil
}

func nilTime() time.Time { return time.Time{} }

func newApplication(req *ApplicationRequest, number string, status models.LoanStatus, now func() time.Time) *models.LoanApplication {
	at := now()
	priority := req.PriorityLevel
	if priority == 0 {
		priority = defaultPriority
	}

	app := &models.LoanApplication{
		ID:                uuid.NewString(),
		ApplicationNumber: number,
		Status:            status,
		PersonalInfo:      req.PersonalInfo,
		EmploymentInfo:    req.EmploymentInfo,
		FinancialInfo:     req.FinancialInfo,
		LoanDetails:       req.LoanDetails,
		Documents:         make([]models.Document, 0, len(req.Documents)),
		Notes:             []string{},
		CreatedAt:         at,
		UpdatedAt:         at,
		PriorityLevel:     priority,
	}
	for _, d := range req.Documents {
		app.Documents = append(app.Documents, newDocument(d, at))
	}
	return app
}

func newDocument(req DocumentRequest, at time.Time) models.Document {
	return models.Document{
		ID:           uuid.NewString(),
		DocumentType: req.DocumentType,
		FileName:     req.FileName,
		FilePath:     req.FilePath,
		FileSize:     req.FileSize,
		MimeType:     req.MimeType,
		UploadedAt:   at,
	}
}
