// internal/workers/loan/verify-documents/models.go
package verifydocuments

import "loan-workflow/internal/models"

const (
	MsgAllVerified = "All required documents verified successfully"
)

// AnalysisRequest is the document metadata sent to the analysis service.
type AnalysisRequest struct {
	DocumentID   string              `json:"document_id"`
	DocumentType models.DocumentType `json:"document_type"`
	FileName     string              `json:"file_name"`
	FilePath     string              `json:"file_path,omitempty"`
	FileSize     int64               `json:"file_size"`
	MimeType     string              `json:"mime_type"`
}

// AnalysisResult is the analysis service contract.
type AnalysisResult struct {
	DocumentType      models.DocumentType    `json:"document_type"`
	IsValid           bool                   `json:"is_valid"`
	ExtractedData     map[string]interface{} `json:"extracted_data,omitempty"`
	ConfidenceScore   float64                `json:"confidence_score"`
	IssuesFound       []string               `json:"issues_found,omitempty"`
	VerificationNotes string                 `json:"verification_notes,omitempty"`
}
