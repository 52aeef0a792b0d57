package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"
	"loan-workflow/internal/search"
	"loan-workflow/internal/service"
	"loan-workflow/internal/workflow"

	"github.com/go-chi/chi/v5"
)

// ActorHeader names the caller recorded in the audit trail.
const ActorHeader = "X-Actor"

const (
	maxBodyBytes     = 1 << 20
	defaultListLimit = 50
	maxListLimit     = 200
	defaultActor     = "api"
)

// LoanService is the application service behind the handlers.
// *service.LoanService implements it.
type LoanService interface {
	Create(ctx context.Context, payload []byte) (*models.LoanApplication, error)
	Get(ctx context.Context, number string) (*models.LoanApplication, error)
	Update(ctx context.Context, number string, req service.UpdateRequest, actor string) (*models.LoanApplication, error)
	Submit(ctx context.Context, number, actor string) (*models.LoanApplication, error)
	Cancel(ctx context.Context, number, actor string) (*models.LoanApplication, error)
	AddDocument(ctx context.Context, number string, req service.DocumentRequest) (*models.LoanApplication, error)
	RequiredDocuments(ctx context.Context, number string) (*service.DocumentRequirements, error)
	WorkflowState(ctx context.Context, number string) (*workflow.Progress, error)
	Process(ctx context.Context, number string) (*service.ProcessResult, error)
	Dispatch(ctx context.Context, number, actor string) (int64, error)
	ListByStatus(ctx context.Context, status models.LoanStatus, limit, offset int) ([]models.ApplicationSummary, error)
	ListForUnderwriter(ctx context.Context, underwriter string) ([]models.ApplicationSummary, error)
	Statistics(ctx context.Context) (*models.ApplicationStatistics, error)
	SearchTranscripts(ctx context.Context, q search.TranscriptQuery) (*search.SearchResult, error)
}

type Handler struct {
	service LoanService
	logger  logger.Logger
}

func NewHandler(svc LoanService, log logger.Logger) *Handler {
	return &Handler{service: svc, logger: log}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type listResponse struct {
	Applications []models.ApplicationSummary `json:"applications"`
	Count        int                         `json:"count"`
}

type dispatchResponse struct {
	ApplicationNumber  string `json:"applicationNumber"`
	ProcessInstanceKey int64  `json:"processInstanceKey"`
}

// ==========================
// Application lifecycle
// ==========================

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, errs.NewInvalidInputError(fmt.Sprintf("read body: %v", err)))
		return
	}
	app, err := h.service.Create(r.Context(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.Get(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	app, err := h.service.Update(r.Context(), chi.URLParam(r, "number"), req, actorOf(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.Cancel(r.Context(), chi.URLParam(r, "number"), actorOf(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.Submit(r.Context(), chi.URLParam(r, "number"), actorOf(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Process(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	key, err := h.service.Dispatch(r.Context(), number, actorOf(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, dispatchResponse{ApplicationNumber: number, ProcessInstanceKey: key})
}

// ==========================
// Documents and workflow
// ==========================

func (h *Handler) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req service.DocumentRequest
	if !h.decode(w, r, &req) {
		return
	}
	app, err := h.service.AddDocument(r.Context(), chi.URLParam(r, "number"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *Handler) handleRequiredDocuments(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.RequiredDocuments(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) handleWorkflowState(w http.ResponseWriter, r *http.Request) {
	progress, err := h.service.WorkflowState(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// ==========================
// Queries
// ==========================

func (h *Handler) handleListByStatus(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}

	list, err := h.service.ListByStatus(r.Context(), models.LoanStatus(chi.URLParam(r, "status")), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeList(w, list)
}

func (h *Handler) handleListForUnderwriter(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListForUnderwriter(r.Context(), chi.URLParam(r, "underwriter"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeList(w, list)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	from, err := intParam(r, "from", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	size, err := intParam(r, "size", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}

	q := r.URL.Query()
	result, err := h.service.SearchTranscripts(r.Context(), search.TranscriptQuery{
		Decision: models.DecisionType(q.Get("decision")),
		Status:   models.LoanStatus(q.Get("status")),
		Text:     q.Get("q"),
		From:     from,
		Size:     size,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ==========================
// Helpers
// ==========================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.writeError(w, errs.NewInvalidInputError(fmt.Sprintf("decode body: %v", err)))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	stdErr, ok := errs.AsStandardError(err)
	if !ok {
		stdErr = errs.NewInternalError(err)
	}

	status := statusFor(stdErr.Code)
	if errors.Is(err, service.ErrSearchDisabled) {
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("request failed", map[string]interface{}{"code": stdErr.Code})
	}

	writeJSON(w, status, ErrorResponse{
		Code:    string(stdErr.Code),
		Message: stdErr.Message,
		Details: stdErr.Details,
	})
}

func statusFor(code errs.ErrorCode) int {
	switch code {
	case errs.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errs.ErrCodeApplicationValidationFailed, errs.ErrCodeBusinessRule:
		return http.StatusUnprocessableEntity
	case errs.ErrCodeApplicationNotFound, errs.ErrCodeResourceNotFound:
		return http.StatusNotFound
	case errs.ErrCodeDuplicateApplication, errs.ErrCodeInvalidApplicationState, errs.ErrCodeConcurrentModification:
		return http.StatusConflict
	case errs.ErrCodeTimeout, errs.ErrCodeCreditCheckTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrCodeExternalService, errs.ErrCodeSearchIndexFailed,
		errs.ErrCodeNotificationSendFailed, errs.ErrCodeEventPublishFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.NewInvalidInputError(fmt.Sprintf("%s must be an integer", name))
	}
	return n, nil
}

func actorOf(r *http.Request) string {
	if actor := r.Header.Get(ActorHeader); actor != "" {
		return actor
	}
	return defaultActor
}

func writeList(w http.ResponseWriter, list []models.ApplicationSummary) {
	if list == nil {
		list = []models.ApplicationSummary{}
	}
	writeJSON(w, http.StatusOK, listResponse{Applications: list, Count: len(list)})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
