// internal/workers/loan/send-decision-notification/config.go
package sendnotification

import "time"

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	FromEmail    string
	// SMSSenderID is the alphanumeric sender shown on SMS, if the region supports it.
	SMSSenderID string
	Timeout     time.Duration
}

func LoadConfig() *Config {
	return &Config{
		EmailEnabled: true,
		SMSEnabled:   true,
		FromEmail:    "loans@example.com",
		Timeout:      30 * time.Second,
	}
}
