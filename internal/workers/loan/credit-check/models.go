// internal/workers/loan/credit-check/models.go
package creditcheck

const (
	MsgInitiating = "Initiating credit check..."

	FactorPaymentHistory  = "Payment history concerns"
	FactorHighUtilization = "High credit utilization"
	FactorLimitedHistory  = "Limited credit history"
)

const (
	baseScore = 650
	minScore  = 300
	maxScore  = 850

	cacheKeyPrefix = "credit_score:"
)
