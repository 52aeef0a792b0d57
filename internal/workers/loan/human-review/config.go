// internal/workers/loan/human-review/config.go
package humanreview

import "time"

type Config struct {
	Timeout            time.Duration
	DefaultUnderwriter string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:            10 * time.Second,
		DefaultUnderwriter: "Senior Underwriter",
	}
}
