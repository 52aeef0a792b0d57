package errors

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Logger is the subset of logger.Logger the error handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler fails or throws zeebe jobs according to the error code policy.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError reports err for job. Retryable codes fail the job so zeebe can
// retry it; everything else is thrown as a BPMN error for boundary events.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	h.logError(job, stdErr, bpmnErr)

	retries := GetRetryCount(stdErr.Code)
	if bpmnErr.Retryable && retries > 0 && job.Retries > 1 {
		h.failJob(ctx, client, job, bpmnErr, retries)
		return
	}
	h.throwBPMNError(ctx, client, job, bpmnErr)
}

// Normalize returns the StandardError in err's chain, or wraps err as INTERNAL_ERROR.
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

func (h *ErrorHandler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError, maxRetries int) {
	// job.Retries counts the remaining attempts including this one
	remaining := int(job.Retries) - 1
	if remaining > maxRetries {
		remaining = maxRetries
	}

	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(remaining)).
		ErrorMessage(bpmnErr.Message)

	if payload, err := json.Marshal(bpmnErr.ToErrorVariables()); err == nil {
		if withVars, err := cmd.VariablesFromString(string(payload)); err == nil {
			_, _ = withVars.Send(ctx)
			return
		}
	}
	_, _ = cmd.Send(ctx)
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	if payload, err := json.Marshal(bpmnErr.ToErrorVariables()); err == nil {
		if withVars, err := cmd.VariablesFromString(string(payload)); err == nil {
			_, _ = withVars.Send(ctx)
			return
		}
	}
	_, _ = cmd.Send(ctx)
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":        job.Key,
		"jobType":       job.Type,
		"errorCode":     string(stdErr.Code),
		"bpmnErrorCode": bpmnErr.Code,
		"message":       bpmnErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"retries":       bpmnErr.Retries,
		"errorCategory": GetErrorCategory(stdErr.Code),
		"workflowKey":   job.ProcessInstanceKey,
	})
}
