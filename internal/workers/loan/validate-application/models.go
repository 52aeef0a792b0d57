// internal/workers/loan/validate-application/models.go
package validateapplication

const (
	MsgPersonalInfoMissing   = "Personal information is missing"
	MsgEmploymentInfoMissing = "Employment information is missing"
	MsgFinancialInfoMissing  = "Financial information is missing"
	MsgLoanDetailsMissing    = "Loan details are missing"

	MsgValidationPassed = "Application validation passed"
)

// Result lists the business rules an application violated, in check order.
type Result struct {
	Errors []string `json:"errors"`
}

func (r Result) Valid() bool {
	return len(r.Errors) == 0
}
