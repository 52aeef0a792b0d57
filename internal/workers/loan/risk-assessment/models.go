// internal/workers/loan/risk-assessment/models.go
package riskassessment

const (
	MsgPerforming = "Performing risk assessment..."

	FactorHighDTI         = "High debt-to-income ratio"
	FactorLowCreditScore  = "Below-average credit score"
	FactorLowIncome       = "Low income"
	FactorHighUtilization = "High credit utilization"
)

// Component weights of the overall score.
const (
	weightPaymentHistory = 0.35
	weightDTI            = 0.25
	weightEmployment     = 0.20
	weightCredit         = 0.20
)

const (
	maxUtilization     = 0.9
	utilizationDivisor = 50000
)
