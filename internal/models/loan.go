// internal/models/loan.go
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type LoanType string

const (
	LoanTypePersonal LoanType = "personal"
	LoanTypeAuto     LoanType = "auto"
	LoanTypeHome     LoanType = "home"
	LoanTypeBusiness LoanType = "business"
	LoanTypeStudent  LoanType = "student"
)

// LoanTypes lists every loan type in display order.
var LoanTypes = []LoanType{LoanTypePersonal, LoanTypeAuto, LoanTypeHome, LoanTypeBusiness, LoanTypeStudent}

func (t LoanType) Valid() bool {
	for _, v := range LoanTypes {
		if v == t {
			return true
		}
	}
	return false
}

type LoanStatus string

const (
	LoanStatusDraft             LoanStatus = "draft"
	LoanStatusSubmitted         LoanStatus = "submitted"
	LoanStatusUnderReview       LoanStatus = "under_review"
	LoanStatusDocumentsRequired LoanStatus = "documents_required"
	LoanStatusCreditCheck       LoanStatus = "credit_check"
	LoanStatusApproved          LoanStatus = "approved"
	LoanStatusRejected          LoanStatus = "rejected"
	LoanStatusFunded            LoanStatus = "funded"
	LoanStatusCancelled         LoanStatus = "cancelled"
)

var LoanStatuses = []LoanStatus{
	LoanStatusDraft, LoanStatusSubmitted, LoanStatusUnderReview, LoanStatusDocumentsRequired,
	LoanStatusCreditCheck, LoanStatusApproved, LoanStatusRejected, LoanStatusFunded, LoanStatusCancelled,
}

func (s LoanStatus) Valid() bool {
	for _, v := range LoanStatuses {
		if v == s {
			return true
		}
	}
	return false
}

type EmploymentStatus string

const (
	EmploymentEmployed     EmploymentStatus = "employed"
	EmploymentSelfEmployed EmploymentStatus = "self_employed"
	EmploymentUnemployed   EmploymentStatus = "unemployed"
	EmploymentRetired      EmploymentStatus = "retired"
	EmploymentStudent      EmploymentStatus = "student"
)

type MaritalStatus string

const (
	MaritalSingle   MaritalStatus = "single"
	MaritalMarried  MaritalStatus = "married"
	MaritalDivorced MaritalStatus = "divorced"
	MaritalWidowed  MaritalStatus = "widowed"
)

type DocumentType string

const (
	DocumentIdentity               DocumentType = "identity"
	DocumentIncomeProof            DocumentType = "income_proof"
	DocumentEmploymentVerification DocumentType = "employment_verification"
	DocumentBankStatement          DocumentType = "bank_statement"
	DocumentTaxReturn              DocumentType = "tax_return"
	DocumentCollateral             DocumentType = "collateral_document"
	DocumentOther                  DocumentType = "other"
)

var DocumentTypes = []DocumentType{
	DocumentIdentity, DocumentIncomeProof, DocumentEmploymentVerification,
	DocumentBankStatement, DocumentTaxReturn, DocumentCollateral, DocumentOther,
}

func (d DocumentType) Valid() bool {
	for _, v := range DocumentTypes {
		if v == d {
			return true
		}
	}
	return false
}

// DisplayName renders "income_proof" as "Income Proof".
func (d DocumentType) DisplayName() string {
	words := strings.Split(string(d), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelVeryHigh RiskLevel = "VERY_HIGH"
)

type DecisionType string

const (
	DecisionApproved    DecisionType = "APPROVED"
	DecisionRejected    DecisionType = "REJECTED"
	DecisionConditional DecisionType = "CONDITIONAL"
)

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country,omitempty"`
}

type PersonalInfo struct {
	FirstName     string        `json:"firstName"`
	LastName      string        `json:"lastName"`
	MiddleName    string        `json:"middleName,omitempty"`
	DateOfBirth   time.Time     `json:"dateOfBirth"`
	SSN           string        `json:"ssn"`
	Phone         string        `json:"phone"`
	Email         string        `json:"email"`
	MaritalStatus MaritalStatus `json:"maritalStatus"`
	Dependents    int           `json:"dependents"`
	Address       Address       `json:"address"`
}

func (p PersonalInfo) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type EmploymentInfo struct {
	Status              EmploymentStatus `json:"status"`
	EmployerName        string           `json:"employerName,omitempty"`
	JobTitle            string           `json:"jobTitle,omitempty"`
	EmploymentStartDate *time.Time       `json:"employmentStartDate,omitempty"`
	AnnualIncome        decimal.Decimal  `json:"annualIncome"`
	MonthlyIncome       decimal.Decimal  `json:"monthlyIncome"`
	OtherIncome         decimal.Decimal  `json:"otherIncome"`
	EmployerAddress     *Address         `json:"employerAddress,omitempty"`
}

// TenureMonths returns whole months between the employment start date and asOf.
// ok is false when no start date is recorded.
func (e EmploymentInfo) TenureMonths(asOf time.Time) (months int, ok bool) {
	if e.EmploymentStartDate == nil {
		return 0, false
	}
	start := e.EmploymentStartDate.UTC()
	end := asOf.UTC()
	if end.Before(start) {
		return 0, true
	}
	months = (end.Year()-start.Year())*12 + int(end.Month()-start.Month())
	if end.Day() < start.Day() {
		months--
	}
	if months < 0 {
		months = 0
	}
	return months, true
}

type FinancialInfo struct {
	MonthlyRentMortgage decimal.Decimal `json:"monthlyRentMortgage"`
	MonthlyDebtPayments decimal.Decimal `json:"monthlyDebtPayments"`
	MonthlyExpenses     decimal.Decimal `json:"monthlyExpenses"`
	SavingsBalance      decimal.Decimal `json:"savingsBalance"`
	CheckingBalance     decimal.Decimal `json:"checkingBalance"`
	CreditCardsDebt     decimal.Decimal `json:"creditCardsDebt"`
	AssetsValue         decimal.Decimal `json:"assetsValue"`
}

type LoanDetails struct {
	LoanType              LoanType         `json:"loanType"`
	RequestedAmount       decimal.Decimal  `json:"requestedAmount"`
	RequestedTermMonths   int              `json:"requestedTermMonths"`
	Purpose               string           `json:"purpose"`
	CollateralDescription string           `json:"collateralDescription,omitempty"`
	CollateralValue       *decimal.Decimal `json:"collateralValue,omitempty"`
}

type Document struct {
	ID                string       `json:"id"`
	DocumentType      DocumentType `json:"documentType"`
	FileName          string       `json:"fileName"`
	FilePath          string       `json:"filePath,omitempty"`
	FileSize          int64        `json:"fileSize"`
	MimeType          string       `json:"mimeType"`
	UploadedAt        time.Time    `json:"uploadedAt"`
	Verified          bool         `json:"verified"`
	VerificationNotes string       `json:"verificationNotes,omitempty"`
}

type CreditScore struct {
	Score        int       `json:"score"`
	Bureau       string    `json:"bureau"`
	DateObtained time.Time `json:"dateObtained"`
	Factors      []string  `json:"factors"`
}

type RiskAssessment struct {
	DebtToIncomeRatio        float64   `json:"debtToIncomeRatio"`
	CreditUtilizationRatio   float64   `json:"creditUtilizationRatio"`
	PaymentHistoryScore      int       `json:"paymentHistoryScore"`
	EmploymentStabilityScore int       `json:"employmentStabilityScore"`
	OverallRiskScore         int       `json:"overallRiskScore"`
	RiskLevel                RiskLevel `json:"riskLevel"`
	RiskFactors              []string  `json:"riskFactors"`
}

// Decision is the underwriting outcome. InterestRate is an annual percentage (5.0 = 5%).
type Decision struct {
	Decision           DecisionType     `json:"decision"`
	ApprovedAmount     *decimal.Decimal `json:"approvedAmount,omitempty"`
	ApprovedTermMonths *int             `json:"approvedTermMonths,omitempty"`
	InterestRate       *float64         `json:"interestRate,omitempty"`
	Conditions         []string         `json:"conditions"`
	RejectionReasons   []string         `json:"rejectionReasons"`
	DecisionDate       time.Time        `json:"decisionDate"`
	DecisionMaker      string           `json:"decisionMaker"`
	ConfidenceScore    float64          `json:"confidenceScore"`
}

// FormatMoney renders an amount as "$25,000.00".
func FormatMoney(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + "$" + b.String() + frac
}
