// internal/workers/loan/risk-assessment/config.go
package riskassessment

import "time"

type Config struct {
	Timeout time.Duration

	// FallbackCreditScore is used when no bureau score is on file.
	FallbackCreditScore int
	// AssumedTenureMonths applies to employed applicants without a start date.
	AssumedTenureMonths int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:             10 * time.Second,
		FallbackCreditScore: 600,
		AssumedTenureMonths: 24,
	}
}
