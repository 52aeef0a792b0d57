// internal/workers/loan/verify-documents/analyzer.go
package verifydocuments

import (
	"context"
	"fmt"

	commonhttp "loan-workflow/internal/common/http"
	"loan-workflow/internal/models"
)

// DocumentAnalyzer inspects an uploaded document.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, doc models.Document) (*AnalysisResult, error)
}

// StaticAnalyzer accepts every document with a fixed note.
type StaticAnalyzer struct {
	Note string
}

func (a StaticAnalyzer) Analyze(_ context.Context, doc models.Document) (*AnalysisResult, error) {
	return &AnalysisResult{
		DocumentType:      doc.DocumentType,
		IsValid:           true,
		ConfidenceScore:   1,
		VerificationNotes: a.Note,
	}, nil
}

// HTTPAnalyzer posts document metadata to an external analysis service.
type HTTPAnalyzer struct {
	client *commonhttp.Client
	url    string
}

func NewHTTPAnalyzer(client *commonhttp.Client, url string) *HTTPAnalyzer {
	return &HTTPAnalyzer{client: client, url: url}
}

// NewAnalyzer builds the HTTP analyzer described by config, or returns nil when
// no analyzer URL is set so the handler falls back to static verification.
func NewAnalyzer(config *Config) DocumentAnalyzer {
	if config.AnalyzerURL == "" {
		return nil
	}
	client := commonhttp.NewClient(config.AnalyzerTimeout)
	if config.AnalyzerAPIKey != "" {
		client = client.WithHeader("Authorization", "Bearer "+config.AnalyzerAPIKey)
	}
	return NewHTTPAnalyzer(client, config.AnalyzerURL)
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, doc models.Document) (*AnalysisResult, error) {
	req := AnalysisRequest{
		DocumentID:   doc.ID,
		DocumentType: doc.DocumentType,
		FileName:     doc.FileName,
		FilePath:     doc.FilePath,
		FileSize:     doc.FileSize,
		MimeType:     doc.MimeType,
	}

	var res AnalysisResult
	if err := a.client.PostJSON(ctx, a.url, req, &res); err != nil {
		return nil, fmt.Errorf("analyze document %s: %w", doc.ID, err)
	}

	if res.DocumentType == "" {
		res.DocumentType = doc.DocumentType
	}
	if res.IsValid && res.DocumentType != doc.DocumentType {
		res.IsValid = false
		res.IssuesFound = append(res.IssuesFound,
			fmt.Sprintf("document appears to be %s", res.DocumentType.DisplayName()))
	}
	return &res, nil
}
