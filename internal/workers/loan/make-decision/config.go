// internal/workers/loan/make-decision/config.go
package makedecision

import "time"

type Config struct {
	Timeout time.Duration

	DecisionMaker       string
	FallbackCreditScore int
	// Decisions below this confidence are routed to an underwriter.
	HumanReviewConfidence float64
}

func LoadConfig() *Config {
	return &Config{
		Timeout:               10 * time.Second,
		DecisionMaker:         "AI Underwriting System",
		FallbackCreditScore:   600,
		HumanReviewConfidence: 0.70,
	}
}
