// Package errors provides standardized error handling for loan workflow stages and
// their BPMN integration.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Intake / validation
const (
	ErrCodeInvalidInput                ErrorCode = "INVALID_INPUT"
	ErrCodeApplicationValidationFailed ErrorCode = "APPLICATION_VALIDATION_FAILED"
	ErrCodeDuplicateApplication        ErrorCode = "DUPLICATE_APPLICATION"
	ErrCodeApplicationNotFound         ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeInvalidApplicationState     ErrorCode = "INVALID_APPLICATION_STATE"
	ErrCodeConcurrentModification      ErrorCode = "CONCURRENT_MODIFICATION"
)

// Workflow stages
const (
	ErrCodeDocumentsMissing            ErrorCode = "DOCUMENTS_MISSING"
	ErrCodeDocumentAnalysisFailed      ErrorCode = "DOCUMENT_ANALYSIS_FAILED"
	ErrCodeCreditCheckFailed           ErrorCode = "CREDIT_CHECK_FAILED"
	ErrCodeCreditCheckTimeout          ErrorCode = "CREDIT_CHECK_TIMEOUT"
	ErrCodeRiskAssessmentFailed        ErrorCode = "RISK_ASSESSMENT_FAILED"
	ErrCodeDecisionFailed              ErrorCode = "DECISION_FAILED"
	ErrCodeUnderwriterAssignmentFailed ErrorCode = "UNDERWRITER_ASSIGNMENT_FAILED"
	ErrCodeWorkflowProcessingFailed    ErrorCode = "WORKFLOW_PROCESSING_FAILED"
)

// Infrastructure
const (
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseError            ErrorCode = "DATABASE_ERROR"
	ErrCodeCacheError               ErrorCode = "CACHE_ERROR"
	ErrCodeSearchIndexFailed        ErrorCode = "SEARCH_INDEX_FAILED"
	ErrCodeNotificationSendFailed   ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeEventPublishFailed       ErrorCode = "EVENT_PUBLISH_FAILED"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// Generic
const (
	ErrCodeBusinessRule     ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeExternalService  ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout          ErrorCode = "TIMEOUT_ERROR"
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a metadata key and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewInvalidInputError creates a non-retryable input error.
func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid input", details, false, nil)
}

// NewApplicationValidationFailedError creates a non-retryable application validation error.
func NewApplicationValidationFailedError(details string) *StandardError {
	return newError(ErrCodeApplicationValidationFailed, "Application data validation failed", details, false, nil)
}

// NewDuplicateApplicationError creates a non-retryable duplicate application error.
func NewDuplicateApplicationError(applicationNumber string) *StandardError {
	return newError(ErrCodeDuplicateApplication, "Application already exists",
		fmt.Sprintf("applicationNumber: %s", applicationNumber), false, nil)
}

// NewApplicationNotFoundError creates a non-retryable lookup error.
func NewApplicationNotFoundError(applicationNumber string) *StandardError {
	return newError(ErrCodeApplicationNotFound, "Application not found",
		fmt.Sprintf("applicationNumber: %s", applicationNumber), false, nil)
}

// NewInvalidApplicationStateError reports an operation not allowed in the current status.
func NewInvalidApplicationStateError(operation, status string) *StandardError {
	return newError(ErrCodeInvalidApplicationState,
		fmt.Sprintf("Cannot %s application in status %s", operation, status),
		fmt.Sprintf("operation: %s, status: %s", operation, status), false, nil)
}

// NewConcurrentModificationError reports a write against a stale copy of the
// application.
func NewConcurrentModificationError(applicationNumber string, version int) *StandardError {
	return newError(ErrCodeConcurrentModification,
		"Application was modified concurrently",
		fmt.Sprintf("applicationNumber: %s, expected version: %d", applicationNumber, version), false, nil).
		WithMetadata("applicationNumber", applicationNumber)
}

// NewDocumentAnalysisFailedError creates a retryable document analysis error.
func NewDocumentAnalysisFailedError(documentID string, err error) *StandardError {
	return newError(ErrCodeDocumentAnalysisFailed, "Document analysis failed",
		fmt.Sprintf("documentId: %s, error: %s", documentID, detailsOf(err)), true, err)
}

// NewCreditCheckFailedError creates a retryable credit bureau error.
func NewCreditCheckFailedError(err error) *StandardError {
	return newError(ErrCodeCreditCheckFailed, "Credit check failed", detailsOf(err), true, err)
}

// NewCreditCheckTimeoutError creates a retryable credit bureau timeout error.
func NewCreditCheckTimeoutError(timeout time.Duration) *StandardError {
	return newError(ErrCodeCreditCheckTimeout, "Credit check timeout",
		fmt.Sprintf("bureau call exceeded %s", timeout), true, nil)
}

// NewRiskAssessmentFailedError creates a non-retryable risk assessment error.
func NewRiskAssessmentFailedError(details string) *StandardError {
	return newError(ErrCodeRiskAssessmentFailed, "Risk assessment failed", details, false, nil)
}

// NewDecisionFailedError creates a non-retryable decision error.
func NewDecisionFailedError(details string) *StandardError {
	return newError(ErrCodeDecisionFailed, "Loan decision failed", details, false, nil)
}

// NewUnderwriterAssignmentFailedError creates a retryable assignment error.
func NewUnderwriterAssignmentFailedError(err error) *StandardError {
	return newError(ErrCodeUnderwriterAssignmentFailed, "Underwriter assignment failed", detailsOf(err), true, err)
}

// NewWorkflowProcessingFailedError wraps an error raised while a stage was running.
func NewWorkflowProcessingFailedError(stage string, err error) *StandardError {
	return newError(ErrCodeWorkflowProcessingFailed, "Workflow processing failed",
		fmt.Sprintf("stage: %s, error: %s", stage, detailsOf(err)), false, err).
		WithMetadata("stage", stage)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", detailsOf(err), true, err)
}

// NewDatabaseError creates a retryable database operation error.
func NewDatabaseError(operation string, err error) *StandardError {
	return newError(ErrCodeDatabaseError, "Database operation failed",
		fmt.Sprintf("operation: %s, error: %s", operation, detailsOf(err)), true, err)
}

// NewCacheError creates a retryable cache error.
func NewCacheError(operation string, err error) *StandardError {
	return newError(ErrCodeCacheError, "Cache operation failed",
		fmt.Sprintf("operation: %s, error: %s", operation, detailsOf(err)), true, err)
}

// NewSearchIndexFailedError creates a retryable Elasticsearch error.
func NewSearchIndexFailedError(index string, err error) *StandardError {
	return newError(ErrCodeSearchIndexFailed, "Elasticsearch request failed",
		fmt.Sprintf("index: %s, error: %s", index, detailsOf(err)), true, err)
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("type: %s, error: %s", notificationType, detailsOf(err)), true, err)
}

// NewEventPublishFailedError creates a retryable broker error.
func NewEventPublishFailedError(routingKey string, err error) *StandardError {
	return newError(ErrCodeEventPublishFailed, "Event publish failed",
		fmt.Sprintf("routingKey: %s, error: %s", routingKey, detailsOf(err)), true, err)
}

// Generic constructors

func NewBusinessRuleError(message, details string) *StandardError {
	return newError(ErrCodeBusinessRule, message, details, false, nil)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), detailsOf(err), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), detailsOf(err), true, err)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError(ErrCodeResourceNotFound, fmt.Sprintf("Resource not found in %s", service), details, false, nil)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Internal error", detailsOf(err), false, err)
}

// AsStandardError extracts a StandardError from err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the error codes caught by boundary
// events in the loan-origination process.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidInput:                "INVALID_INPUT",
	ErrCodeApplicationValidationFailed: "APPLICATION_VALIDATION_FAILED",
	ErrCodeDuplicateApplication:        "DUPLICATE_APPLICATION",
	ErrCodeApplicationNotFound:         "APPLICATION_NOT_FOUND",
	ErrCodeInvalidApplicationState:     "INVALID_APPLICATION_STATE",
	ErrCodeConcurrentModification:      "CONCURRENT_MODIFICATION",
	ErrCodeDocumentsMissing:            "DOCUMENTS_MISSING",
	ErrCodeDocumentAnalysisFailed:      "DOCUMENT_ANALYSIS_FAILED",
	ErrCodeCreditCheckFailed:           "CREDIT_CHECK_FAILED",
	ErrCodeCreditCheckTimeout:          "CREDIT_CHECK_TIMEOUT",
	ErrCodeRiskAssessmentFailed:        "RISK_ASSESSMENT_FAILED",
	ErrCodeDecisionFailed:              "DECISION_FAILED",
	ErrCodeUnderwriterAssignmentFailed: "UNDERWRITER_ASSIGNMENT_FAILED",
	ErrCodeWorkflowProcessingFailed:    "WORKFLOW_PROCESSING_FAILED",
	ErrCodeDatabaseConnectionFailed:    "DATABASE_CONNECTION_FAILED",
	ErrCodeDatabaseError:               "DATABASE_ERROR",
	ErrCodeCacheError:                  "CACHE_ERROR",
	ErrCodeSearchIndexFailed:           "SEARCH_INDEX_FAILED",
	ErrCodeNotificationSendFailed:      "NOTIFICATION_SEND_FAILED",
	ErrCodeEventPublishFailed:          "EVENT_PUBLISH_FAILED",
}

// GetRetryCount returns the recommended job retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDocumentAnalysisFailed,
		ErrCodeCreditCheckFailed,
		ErrCodeUnderwriterAssignmentFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeDatabaseError,
		ErrCodeCacheError,
		ErrCodeSearchIndexFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeEventPublishFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeCreditCheckTimeout, ErrCodeTimeout:
		return 2

	default:
		return 0 // business errors
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "DOCUMENT"):
		return "DOCUMENTS"
	case strings.Contains(codeStr, "CREDIT") || strings.Contains(codeStr, "RISK") || strings.Contains(codeStr, "DECISION"):
		return "UNDERWRITING"
	case strings.Contains(codeStr, "UNDERWRITER") || strings.Contains(codeStr, "WORKFLOW"):
		return "WORKFLOW"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "CACHE"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION") || strings.Contains(codeStr, "EVENT"):
		return "MESSAGING"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION") ||
		strings.Contains(codeStr, "DUPLICATE") || strings.Contains(codeStr, "NOT_FOUND"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
