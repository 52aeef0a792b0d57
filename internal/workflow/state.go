// Package workflow drives a loan application through the underwriting stages.
//
// The engine owns a typed State. Each stage reads the state and returns an
// Outcome holding only the fields it owns; the engine applies it, appends the
// stage's messages to the transcript and asks Route for the next stage.
package workflow

import (
	"encoding/json"
	"time"

	"loan-workflow/internal/models"
)

// Status is the workflow-level status, distinct from the application status.
type Status string

const (
	StatusPending       Status = "pending"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusRequiresHuman Status = "requires_human"
)

// Stage identifies a processing step.
type Stage string

const (
	StageValidateApplication Stage = "validate_application"
	StageVerifyDocuments     Stage = "verify_documents"
	StageCreditCheck         Stage = "credit_check"
	StageRiskAssessment      Stage = "risk_assessment"
	StageMakeDecision        Stage = "make_decision"
	StageHumanReview         Stage = "human_review"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{
	StageValidateApplication,
	StageVerifyDocuments,
	StageCreditCheck,
	StageRiskAssessment,
	StageMakeDecision,
	StageHumanReview,
}

// Action is the routing signal a stage leaves for the router.
type Action string

const (
	ActionValidateApplication Action = "validate_application"
	ActionVerifyDocuments     Action = "verify_documents"
	ActionCreditCheck         Action = "credit_check"
	ActionRiskAssessment      Action = "risk_assessment"
	ActionMakeDecision        Action = "make_decision"
	ActionHumanReview         Action = "human_review"

	ActionComplete           Action = "complete"
	ActionFixApplication     Action = "fix_application"
	ActionUploadDocuments    Action = "upload_documents"
	ActionAwaitHumanDecision Action = "await_human_decision"
)

// Message is one transcript entry. Stage is empty for the engine's own entries.
type Message struct {
	Stage   Stage     `json:"stage,omitempty"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// StageResults carries the headline numbers of each assessment stage.
type StageResults struct {
	CreditScore *int                `json:"creditScore,omitempty"`
	RiskScore   *int                `json:"riskScore,omitempty"`
	RiskLevel   models.RiskLevel    `json:"riskLevel,omitempty"`
	Decision    models.DecisionType `json:"decision,omitempty"`
	Confidence  *float64            `json:"confidence,omitempty"`
}

func (r *StageResults) merge(other StageResults) {
	if other.CreditScore != nil {
		r.CreditScore = other.CreditScore
	}
	if other.RiskScore != nil {
		r.RiskScore = other.RiskScore
	}
	if other.RiskLevel != "" {
		r.RiskLevel = other.RiskLevel
	}
	if other.Decision != "" {
		r.Decision = other.Decision
	}
	if other.Confidence != nil {
		r.Confidence = other.Confidence
	}
}

// Progress is everything in State except the application. It is what gets
// persisted as the application's workflow snapshot and passed between zeebe jobs.
type Progress struct {
	Transcript          []Message             `json:"transcript"`
	NextAction          Action                `json:"nextAction"`
	Status              Status                `json:"status"`
	ErrorMessage        string                `json:"errorMessage,omitempty"`
	HumanReviewRequired bool                  `json:"humanReviewRequired"`
	UnderwriterNotes    []string              `json:"underwriterNotes,omitempty"`
	MissingDocuments    []models.DocumentType `json:"missingDocuments,omitempty"`

	DocumentVerificationComplete bool `json:"documentVerificationComplete"`
	CreditCheckComplete          bool `json:"creditCheckComplete"`
	RiskAssessmentComplete       bool `json:"riskAssessmentComplete"`
	DecisionComplete             bool `json:"decisionComplete"`

	RetryCount int          `json:"retryCount"`
	Results    StageResults `json:"stageResults"`
}

// ToMap renders the progress as the opaque snapshot stored on the application.
func (p Progress) ToMap() map[string]interface{} {
	data, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// ProgressFromMap decodes a snapshot written by ToMap.
func ProgressFromMap(m map[string]interface{}) (Progress, error) {
	var p Progress
	if len(m) == 0 {
		return p, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return p, err
	}
	err = json.Unmarshal(data, &p)
	return p, err
}

// State is the value threaded through the stages of one run.
type State struct {
	Application *models.LoanApplication `json:"application"`
	Progress
}

// NewState builds the initial state for app. It does not copy app.
func NewState(app *models.LoanApplication, at time.Time) *State {
	return &State{
		Application: app,
		Progress: Progress{
			Transcript: []Message{{
				Content: "Processing loan application " + app.ApplicationNumber,
				At:      at,
			}},
			NextAction: ActionValidateApplication,
			Status:     StatusPending,
		},
	}
}

// Outcome is what a stage returns. Zero-valued fields leave the state untouched,
// except Application and Next which are always applied.
type Outcome struct {
	Application         *models.LoanApplication
	Messages            []string
	Next                Action
	Status              Status
	ErrorMessage        string
	HumanReviewRequired bool
	MissingDocuments    []models.DocumentType
	UnderwriterNotes    []string
	// Completed marks the stage's completion flag.
	Completed bool
	Results   StageResults
}

// Apply folds a stage outcome into the state.
func (s *State) Apply(stage Stage, out *Outcome, at time.Time) {
	if out.Application != nil {
		s.Application = out.Application
	}
	for _, m := range out.Messages {
		s.Transcript = append(s.Transcript, Message{Stage: stage, Content: m, At: at})
	}
	s.NextAction = out.Next
	if out.Status != "" {
		s.Status = out.Status
	}
	if out.ErrorMessage != "" {
		s.ErrorMessage = out.ErrorMessage
	}
	if out.HumanReviewRequired {
		s.HumanReviewRequired = true
	}
	if out.MissingDocuments != nil {
		s.MissingDocuments = out.MissingDocuments
	}
	s.UnderwriterNotes = append(s.UnderwriterNotes, out.UnderwriterNotes...)
	s.Results.merge(out.Results)

	if out.Completed {
		switch stage {
		case StageVerifyDocuments:
			s.DocumentVerificationComplete = true
		case StageCreditCheck:
			s.CreditCheckComplete = true
		case StageRiskAssessment:
			s.RiskAssessmentComplete = true
		case StageMakeDecision:
			s.DecisionComplete = true
		}
	}
}

// Messages returns the transcript contents in order.
func (s *State) Messages() []string {
	out := make([]string, len(s.Transcript))
	for i, m := range s.Transcript {
		out[i] = m.Content
	}
	return out
}

// IntPtr and FloatPtr help stages fill StageResults.
func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }
