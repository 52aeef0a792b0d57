// internal/models/validation.go
package models

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	ssnPattern   = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
	zipPattern   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	phonePattern = regexp.MustCompile(`^\+?1?\d{10}$`)
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	maxRequestedAmount     = decimal.NewFromInt(1000000)
	monthlyIncomeTolerance = decimal.NewFromFloat(0.1)
	monthsPerYear          = decimal.NewFromInt(12)
)

// FieldError is one violated construction invariant.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every violated invariant of an aggregate.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return "invalid loan application: " + strings.Join(parts, "; ")
}

type fieldChecker struct {
	errs ValidationErrors
}

func (c *fieldChecker) fail(field, format string, args ...interface{}) {
	c.errs = append(c.errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *fieldChecker) nonNegative(field string, d decimal.Decimal) {
	if d.IsNegative() {
		c.fail(field, "must be greater than or equal to 0")
	}
}

func (c *fieldChecker) length(field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	if n < min || n > max {
		c.fail(field, "length must be between %d and %d", min, max)
	}
}

// Validate checks the invariants an application must satisfy at construction. It
// returns ValidationErrors or nil.
func (a *LoanApplication) Validate() error {
	c := &fieldChecker{}

	if a.PriorityLevel < 1 || a.PriorityLevel > 5 {
		c.fail("priorityLevel", "must be between 1 and 5")
	}

	if a.PersonalInfo == nil {
		c.fail("personalInfo", "is required")
	} else {
		validatePersonal(c, a.PersonalInfo)
	}
	if a.EmploymentInfo == nil {
		c.fail("employmentInfo", "is required")
	} else {
		validateEmployment(c, a.EmploymentInfo)
	}
	if a.FinancialInfo == nil {
		c.fail("financialInfo", "is required")
	} else {
		validateFinancial(c, a.FinancialInfo)
	}
	if a.LoanDetails == nil {
		c.fail("loanDetails", "is required")
	} else {
		validateLoanDetails(c, a.LoanDetails)
	}

	for i, d := range a.Documents {
		if !d.DocumentType.Valid() {
			c.fail(fmt.Sprintf("documents[%d].documentType", i), "unknown document type %q", d.DocumentType)
		}
	}

	if len(c.errs) == 0 {
		return nil
	}
	return c.errs
}

func validatePersonal(c *fieldChecker, p *PersonalInfo) {
	c.length("personalInfo.firstName", p.FirstName, 1, 100)
	c.length("personalInfo.lastName", p.LastName, 1, 100)
	if utf8.RuneCountInString(p.MiddleName) > 100 {
		c.fail("personalInfo.middleName", "length must be at most 100")
	}
	if !ssnPattern.MatchString(p.SSN) {
		c.fail("personalInfo.ssn", "must match ###-##-####")
	}
	if !phonePattern.MatchString(p.Phone) {
		c.fail("personalInfo.phone", "must be a 10 digit phone number")
	}
	if !emailPattern.MatchString(p.Email) {
		c.fail("personalInfo.email", "must be a valid email address")
	}
	switch p.MaritalStatus {
	case MaritalSingle, MaritalMarried, MaritalDivorced, MaritalWidowed:
	default:
		c.fail("personalInfo.maritalStatus", "unknown marital status %q", p.MaritalStatus)
	}
	if p.Dependents < 0 {
		c.fail("personalInfo.dependents", "must be greater than or equal to 0")
	}
	if p.DateOfBirth.IsZero() {
		c.fail("personalInfo.dateOfBirth", "is required")
	}
	if !zipPattern.MatchString(p.Address.ZipCode) {
		c.fail("personalInfo.address.zipCode", "must match ##### or #####-####")
	}
}

func validateEmployment(c *fieldChecker, e *EmploymentInfo) {
	switch e.Status {
	case EmploymentEmployed:
		if strings.TrimSpace(e.EmployerName) == "" {
			c.fail("employmentInfo.employerName", "is required when employed")
		}
	case EmploymentSelfEmployed, EmploymentUnemployed, EmploymentRetired, EmploymentStudent:
	default:
		c.fail("employmentInfo.status", "unknown employment status %q", e.Status)
	}

	if !e.AnnualIncome.IsPositive() {
		c.fail("employmentInfo.annualIncome", "must be greater than 0")
	}
	if !e.MonthlyIncome.IsPositive() {
		c.fail("employmentInfo.monthlyIncome", "must be greater than 0")
	} else if e.AnnualIncome.IsPositive() {
		expected := e.AnnualIncome.Div(monthsPerYear)
		if e.MonthlyIncome.Sub(expected).Abs().GreaterThan(expected.Mul(monthlyIncomeTolerance)) {
			c.fail("employmentInfo.monthlyIncome", "should be approximately annual income / 12")
		}
	}
	c.nonNegative("employmentInfo.otherIncome", e.OtherIncome)
}

func validateFinancial(c *fieldChecker, f *FinancialInfo) {
	c.nonNegative("financialInfo.monthlyRentMortgage", f.MonthlyRentMortgage)
	c.nonNegative("financialInfo.monthlyDebtPayments", f.MonthlyDebtPayments)
	c.nonNegative("financialInfo.monthlyExpenses", f.MonthlyExpenses)
	c.nonNegative("financialInfo.savingsBalance", f.SavingsBalance)
	c.nonNegative("financialInfo.checkingBalance", f.CheckingBalance)
	c.nonNegative("financialInfo.creditCardsDebt", f.CreditCardsDebt)
	c.nonNegative("financialInfo.assetsValue", f.AssetsValue)
}

func validateLoanDetails(c *fieldChecker, l *LoanDetails) {
	if !l.LoanType.Valid() {
		c.fail("loanDetails.loanType", "unknown loan type %q", l.LoanType)
	}
	if !l.RequestedAmount.IsPositive() || l.RequestedAmount.GreaterThan(maxRequestedAmount) {
		c.fail("loanDetails.requestedAmount", "must be greater than 0 and at most 1000000")
	}
	if l.RequestedTermMonths < 6 || l.RequestedTermMonths > 360 {
		c.fail("loanDetails.requestedTermMonths", "must be between 6 and 360")
	}
	c.length("loanDetails.purpose", l.Purpose, 10, 500)
	if l.CollateralValue != nil {
		c.nonNegative("loanDetails.collateralValue", *l.CollateralValue)
	}
}
