// internal/workers/loan/validate-application/config.go
package validateapplication

import (
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Timeout time.Duration

	// MaxDebtToIncome is the highest DTI accepted at intake.
	MaxDebtToIncome float64
	// HighAmountThreshold switches the income floor from MinIncomeStandard to MinIncomeHighAmount.
	HighAmountThreshold decimal.Decimal
	MinIncomeStandard   decimal.Decimal
	MinIncomeHighAmount decimal.Decimal
}

func LoadConfig() *Config {
	return &Config{
		Timeout:             5 * time.Second,
		MaxDebtToIncome:     0.43,
		HighAmountThreshold: decimal.NewFromInt(100000),
		MinIncomeStandard:   decimal.NewFromInt(30000),
		MinIncomeHighAmount: decimal.NewFromInt(50000),
	}
}
