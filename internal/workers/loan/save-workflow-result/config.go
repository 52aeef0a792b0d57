// internal/workers/loan/save-workflow-result/config.go
package saveworkflowresult

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
