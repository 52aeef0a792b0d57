// internal/workers/loan/save-workflow-result/models.go
package saveworkflowresult

import (
	"loan-workflow/internal/models"
	"loan-workflow/internal/workflow"
)

type Input struct {
	Application *models.LoanApplication `json:"application"`
	Workflow    *workflow.Progress      `json:"workflow"`
}

type Output struct {
	ApplicationNumber string            `json:"applicationNumber"`
	ApplicationStatus models.LoanStatus `json:"applicationStatus"`
	Saved             bool              `json:"saved"`
	SavedAt           string            `json:"savedAt"` // ISO 8601
}
