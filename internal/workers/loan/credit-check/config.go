// internal/workers/loan/credit-check/config.go
package creditcheck

import "time"

type Config struct {
	Timeout time.Duration
	// ScoreTimeout bounds a single bureau call.
	ScoreTimeout time.Duration
	Bureau       string

	CacheTTL time.Duration

	// Bureau throttling; zero RateLimit disables it.
	RateLimit float64
	RateBurst int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		ScoreTimeout: 10 * time.Second,
		Bureau:       "Experian",
		CacheTTL:     24 * time.Hour,
		RateLimit:    5,
		RateBurst:    1,
	}
}
