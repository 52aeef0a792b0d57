// internal/models/application.go
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanApplication is the aggregate root threaded through the workflow.
type LoanApplication struct {
	ID                string     `json:"id"`
	ApplicationNumber string     `json:"applicationNumber"`
	Status            LoanStatus `json:"status"`

	PersonalInfo   *PersonalInfo   `json:"personalInfo"`
	EmploymentInfo *EmploymentInfo `json:"employmentInfo"`
	FinancialInfo  *FinancialInfo  `json:"financialInfo"`
	LoanDetails    *LoanDetails    `json:"loanDetails"`

	CreditScore    *CreditScore    `json:"creditScore,omitempty"`
	RiskAssessment *RiskAssessment `json:"riskAssessment,omitempty"`
	Decision       *Decision       `json:"decision,omitempty"`

	Documents     []Document             `json:"documents"`
	Notes         []string               `json:"notes"`
	WorkflowState map[string]interface{} `json:"workflowState,omitempty"`

	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
	DecisionDate *time.Time `json:"decisionDate,omitempty"`

	AssignedUnderwriter *string `json:"assignedUnderwriter,omitempty"`
	PriorityLevel       int     `json:"priorityLevel"`

	// Version is bumped on every stored write; a write carrying an older
	// version is rejected.
	Version int `json:"version"`
}

var applicationNumberPattern = regexp.MustCompile(`^LOAN-\d{8}-[0-9A-Z]{8}$`)

// NewApplicationNumber returns LOAN-YYYYMMDD-XXXXXXXX for the given day.
func NewApplicationNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("LOAN-%s-%s", now.UTC().Format("20060102"), suffix)
}

func IsApplicationNumber(s string) bool {
	return applicationNumberPattern.MatchString(s)
}

// DebtToIncomeRatio is (monthly debt payments + housing) / monthly income, or 0
// when income or the financial profile is missing.
func (a *LoanApplication) DebtToIncomeRatio() float64 {
	if a.EmploymentInfo == nil || a.FinancialInfo == nil {
		return 0
	}
	income := a.EmploymentInfo.MonthlyIncome
	if !income.IsPositive() {
		return 0
	}
	debts := a.FinancialInfo.MonthlyDebtPayments.Add(a.FinancialInfo.MonthlyRentMortgage)
	return debts.Div(income).InexactFloat64()
}

var bankStatementThreshold = decimal.NewFromInt(50000)

// RequiredDocuments returns the document types needed for the loan type and amount.
func (a *LoanApplication) RequiredDocuments() []DocumentType {
	docs := []DocumentType{DocumentIdentity, DocumentIncomeProof}
	if a.LoanDetails == nil {
		return docs
	}

	switch a.LoanDetails.LoanType {
	case LoanTypeHome:
		docs = append(docs, DocumentBankStatement, DocumentTaxReturn)
	case LoanTypeBusiness:
		docs = append(docs, DocumentTaxReturn, DocumentBankStatement)
	default:
		if a.LoanDetails.RequestedAmount.GreaterThan(bankStatementThreshold) {
			docs = append(docs, DocumentBankStatement)
		}
	}
	return docs
}

// MissingDocuments returns required types with no uploaded document, verified or not.
func (a *LoanApplication) MissingDocuments() []DocumentType {
	uploaded := make(map[DocumentType]bool, len(a.Documents))
	for _, d := range a.Documents {
		uploaded[d.DocumentType] = true
	}

	var missing []DocumentType
	for _, t := range a.RequiredDocuments() {
		if !uploaded[t] {
			missing = append(missing, t)
		}
	}
	return missing
}

func (a *LoanApplication) IsComplete() bool {
	return len(a.MissingDocuments()) == 0
}

func (a *LoanApplication) AddNote(note string) {
	a.Notes = append(a.Notes, note)
}

func (a *LoanApplication) ApplicantName() string {
	if a.PersonalInfo == nil {
		return ""
	}
	return a.PersonalInfo.FullName()
}

func (a *LoanApplication) Summary() ApplicationSummary {
	s := ApplicationSummary{
		ID:                  a.ID,
		ApplicationNumber:   a.ApplicationNumber,
		Status:              a.Status,
		ApplicantName:       a.ApplicantName(),
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
		PriorityLevel:       a.PriorityLevel,
		AssignedUnderwriter: a.AssignedUnderwriter,
	}
	if a.LoanDetails != nil {
		s.LoanType = a.LoanDetails.LoanType
		s.RequestedAmount = a.LoanDetails.RequestedAmount
	}
	return s
}

// Clone returns a deep copy; the workflow never mutates the caller's aggregate.
func (a *LoanApplication) Clone() *LoanApplication {
	if a == nil {
		return nil
	}
	c := *a

	if a.PersonalInfo != nil {
		p := *a.PersonalInfo
		c.PersonalInfo = &p
	}
	if a.EmploymentInfo != nil {
		e := *a.EmploymentInfo
		e.EmploymentStartDate = cloneTime(a.EmploymentInfo.EmploymentStartDate)
		if a.EmploymentInfo.EmployerAddress != nil {
			addr := *a.EmploymentInfo.EmployerAddress
			e.EmployerAddress = &addr
		}
		c.EmploymentInfo = &e
	}
	if a.FinancialInfo != nil {
		f := *a.FinancialInfo
		c.FinancialInfo = &f
	}
	if a.LoanDetails != nil {
		l := *a.LoanDetails
		if a.LoanDetails.CollateralValue != nil {
			v := *a.LoanDetails.CollateralValue
			l.CollateralValue = &v
		}
		c.LoanDetails = &l
	}
	if a.CreditScore != nil {
		cs := *a.CreditScore
		cs.Factors = cloneStrings(a.CreditScore.Factors)
		c.CreditScore = &cs
	}
	if a.RiskAssessment != nil {
		ra := *a.RiskAssessment
		ra.RiskFactors = cloneStrings(a.RiskAssessment.RiskFactors)
		c.RiskAssessment = &ra
	}
	if a.Decision != nil {
		c.Decision = a.Decision.clone()
	}
	if a.Documents != nil {
		c.Documents = make([]Document, len(a.Documents))
		copy(c.Documents, a.Documents)
	}
	c.Notes = cloneStrings(a.Notes)
	if a.WorkflowState != nil {
		c.WorkflowState = make(map[string]interface{}, len(a.WorkflowState))
		for k, v := range a.WorkflowState {
			c.WorkflowState[k] = v
		}
	}
	c.SubmittedAt = cloneTime(a.SubmittedAt)
	c.DecisionDate = cloneTime(a.DecisionDate)
	if a.AssignedUnderwriter != nil {
		u := *a.AssignedUnderwriter
		c.AssignedUnderwriter = &u
	}
	return &c
}

func (d *Decision) clone() *Decision {
	c := *d
	if d.ApprovedAmount != nil {
		v := *d.ApprovedAmount
		c.ApprovedAmount = &v
	}
	if d.ApprovedTermMonths != nil {
		v := *d.ApprovedTermMonths
		c.ApprovedTermMonths = &v
	}
	if d.InterestRate != nil {
		v := *d.InterestRate
		c.InterestRate = &v
	}
	c.Conditions = cloneStrings(d.Conditions)
	c.RejectionReasons = cloneStrings(d.RejectionReasons)
	return &c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ApplicationSummary is the list view of an application.
type ApplicationSummary struct {
	ID                  string          `json:"id"`
	ApplicationNumber   string          `json:"applicationNumber"`
	Status              LoanStatus      `json:"status"`
	ApplicantName       string          `json:"applicantName"`
	LoanType            LoanType        `json:"loanType"`
	RequestedAmount     decimal.Decimal `json:"requestedAmount"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	PriorityLevel       int             `json:"priorityLevel"`
	AssignedUnderwriter *string         `json:"assignedUnderwriter,omitempty"`
}

// ApplicationStatistics aggregates counts across stored applications.
type ApplicationStatistics struct {
	ByStatus           map[LoanStatus]int `json:"byStatus"`
	ByType             map[LoanType]int   `json:"byType"`
	RecentApplications int                `json:"recentApplications"`
	GeneratedAt        time.Time          `json:"generatedAt"`
}
