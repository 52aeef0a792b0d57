// Package search keeps workflow transcripts in Elasticsearch so underwriters can
// look up how an application reached its decision.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"
	"loan-workflow/internal/workflow"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	defaultSearchSize = 20
	maxSearchSize     = 100
)

// TranscriptDocument is one indexed workflow run, keyed by application number.
// A later run of the same application replaces the earlier document.
type TranscriptDocument struct {
	ApplicationNumber   string              `json:"applicationNumber"`
	ApplicationID       string              `json:"applicationId"`
	ApplicantName       string              `json:"applicantName"`
	Status              models.LoanStatus   `json:"status"`
	LoanType            models.LoanType     `json:"loanType,omitempty"`
	RequestedAmount     string              `json:"requestedAmount,omitempty"`
	Decision            models.DecisionType `json:"decision,omitempty"`
	RiskLevel           models.RiskLevel    `json:"riskLevel,omitempty"`
	CreditScore         *int                `json:"creditScore,omitempty"`
	RiskScore           *int                `json:"riskScore,omitempty"`
	WorkflowStatus      workflow.Status     `json:"workflowStatus"`
	NextAction          workflow.Action     `json:"nextAction"`
	HumanReviewRequired bool                `json:"humanReviewRequired"`
	ErrorMessage        string              `json:"errorMessage,omitempty"`
	AssignedUnderwriter string              `json:"assignedUnderwriter,omitempty"`
	Transcript          []workflow.Message  `json:"transcript"`
	IndexedAt           time.Time           `json:"indexedAt"`
}

// TranscriptQuery filters a transcript search. Empty fields match everything.
type TranscriptQuery struct {
	Decision models.DecisionType
	Status   models.LoanStatus
	Text     string
	From     int
	Size     int
}

type SearchResult struct {
	Total int                  `json:"total"`
	Hits  []TranscriptDocument `json:"hits"`
}

type TranscriptIndexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
	now    func() time.Time
}

func NewTranscriptIndexer(client *elasticsearch.Client, index string, log logger.Logger) *TranscriptIndexer {
	return &TranscriptIndexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "transcript-indexer", "index": index}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewDocument flattens a finished run into its indexed form.
func NewDocument(state *workflow.State, at time.Time) TranscriptDocument {
	app := state.Application
	doc := TranscriptDocument{
		ApplicationNumber:   app.ApplicationNumber,
		ApplicationID:       app.ID,
		ApplicantName:       app.ApplicantName(),
		Status:              app.Status,
		WorkflowStatus:      state.Status,
		NextAction:          state.NextAction,
		HumanReviewRequired: state.HumanReviewRequired,
		ErrorMessage:        state.ErrorMessage,
		CreditScore:         state.Results.CreditScore,
		RiskScore:           state.Results.RiskScore,
		RiskLevel:           state.Results.RiskLevel,
		Decision:            state.Results.Decision,
		Transcript:          state.Transcript,
		IndexedAt:           at,
	}
	if app.LoanDetails != nil {
		doc.LoanType = app.LoanDetails.LoanType
		doc.RequestedAmount = app.LoanDetails.RequestedAmount.StringFixed(2)
	}
	if app.AssignedUnderwriter != nil {
		doc.AssignedUnderwriter = *app.AssignedUnderwriter
	}
	return doc
}

// EnsureIndex creates the transcript index with its mapping if it is missing.
func (i *TranscriptIndexer) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{i.index}}.Do(ctx, i.client)
	if err != nil {
		return errs.NewSearchIndexFailedError(i.index, err)
	}
	res.Body.Close()

	if res.StatusCode == 200 {
		return nil
	}
	if res.StatusCode != 404 {
		return errs.NewSearchIndexFailedError(i.index, fmt.Errorf("index exists check: %s", res.Status()))
	}

	res, err = esapi.IndicesCreateRequest{
		Index: i.index,
		Body:  strings.NewReader(indexMapping),
	}.Do(ctx, i.client)
	if err != nil {
		return errs.NewSearchIndexFailedError(i.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return errs.NewSearchIndexFailedError(i.index, responseError(res))
	}

	i.logger.Info("transcript index created", nil)
	return nil
}

// Index stores the transcript of a run.
func (i *TranscriptIndexer) Index(ctx context.Context, state *workflow.State) error {
	doc := NewDocument(state, i.now())
	body, err := json.Marshal(doc)
	if err != nil {
		return errs.NewSearchIndexFailedError(i.index, err)
	}

	res, err := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: doc.ApplicationNumber,
		Body:       bytes.NewReader(body),
	}.Do(ctx, i.client)
	if err != nil {
		return errs.NewSearchIndexFailedError(i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errs.NewSearchIndexFailedError(i.index, responseError(res))
	}

	i.logger.Debug("transcript indexed", map[string]interface{}{
		"applicationNumber": doc.ApplicationNumber,
		"messages":          len(doc.Transcript),
	})
	return nil
}

// Search returns transcripts matching q, newest first.
func (i *TranscriptIndexer) Search(ctx context.Context, q TranscriptQuery) (*SearchResult, error) {
	size := q.Size
	if size <= 0 {
		size = defaultSearchSize
	}
	if size > maxSearchSize {
		size = maxSearchSize
	}
	from := q.From
	if from < 0 {
		from = 0
	}

	body, err := json.Marshal(buildSearchQuery(q))
	if err != nil {
		return nil, errs.NewSearchIndexFailedError(i.index, err)
	}

	res, err := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  bytes.NewReader(body),
		From:  &from,
		Size:  &size,
		Sort:  []string{"indexedAt:desc"},
	}.Do(ctx, i.client)
	if err != nil {
		return nil, errs.NewSearchIndexFailedError(i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errs.NewSearchIndexFailedError(i.index, responseError(res))
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source TranscriptDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, errs.NewSearchIndexFailedError(i.index, fmt.Errorf("decode search response: %w", err))
	}

	result := &SearchResult{Total: r.Hits.Total.Value, Hits: make([]TranscriptDocument, 0, len(r.Hits.Hits))}
	for _, hit := range r.Hits.Hits {
		result.Hits = append(result.Hits, hit.Source)
	}
	return result, nil
}

func buildSearchQuery(q TranscriptQuery) map[string]interface{} {
	filters := []interface{}{}
	if q.Decision != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"decision": string(q.Decision)},
		})
	}
	if q.Status != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"status": string(q.Status)},
		})
	}

	must := []interface{}{}
	if q.Text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q.Text,
				"fields": []string{"transcript.content", "applicantName^2", "errorMessage"},
			},
		})
	}
	if len(must) == 0 && len(filters) == 0 {
		return map[string]interface{}{"query": map[string]interface{}{"match_all": map[string]interface{}{}}}
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filters,
			},
		},
	}
}

func responseError(res *esapi.Response) error {
	data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if len(data) == 0 {
		return fmt.Errorf("elasticsearch: %s", res.Status())
	}
	return fmt.Errorf("elasticsearch: %s: %s", res.Status(), strings.TrimSpace(string(data)))
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "applicationNumber":   {"type": "keyword"},
      "applicationId":       {"type": "keyword"},
      "applicantName":       {"type": "text"},
      "status":              {"type": "keyword"},
      "loanType":            {"type": "keyword"},
      "requestedAmount":     {"type": "scaled_float", "scaling_factor": 100},
      "decision":            {"type": "keyword"},
      "riskLevel":           {"type": "keyword"},
      "creditScore":         {"type": "integer"},
      "riskScore":           {"type": "integer"},
      "workflowStatus":      {"type": "keyword"},
      "nextAction":          {"type": "keyword"},
      "humanReviewRequired": {"type": "boolean"},
      "errorMessage":        {"type": "text"},
      "assignedUnderwriter": {"type": "keyword"},
      "transcript": {
        "properties": {
          "stage":   {"type": "keyword"},
          "content": {"type": "text"},
          "at":      {"type": "date"}
        }
      },
      "indexedAt": {"type": "date"}
    }
  }
}`
