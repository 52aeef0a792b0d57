// internal/workers/loan/make-decision/models.go
package makedecision

const (
	MsgMaking             = "Making loan decision..."
	MsgHumanReviewAdvised = "Human review recommended due to low confidence or conditional approval"
)

const (
	ConditionReducedForRisk     = "Reduced loan amount due to risk assessment"
	ConditionIncomeVerification = "Additional income verification required"
	ConditionReducedHighRisk    = "Reduced loan amount due to high risk"
	ConditionShorterTerm        = "Shorter repayment term"
	ConditionCosigner           = "Cosigner required"
	ConditionCollateral         = "Additional collateral may be required"

	ReasonLowCreditScore = "Credit score below minimum requirement"
	ReasonHighRisk       = "High overall risk assessment"
	ReasonHighDTI        = "Debt-to-income ratio exceeds acceptable limits"
)

// band is one row of the underwriting matrix.
type band struct {
	name      string
	minRisk   int
	minCredit int
}

var (
	bandA = band{name: "A", minRisk: 75, minCredit: 700}
	bandB = band{name: "B", minRisk: 65, minCredit: 650}
	bandC = band{name: "C", minRisk: 45, minCredit: 600}
)

func (b band) accepts(risk, credit int) bool {
	return risk >= b.minRisk && credit >= b.minCredit
}
