// internal/workers/loan/verify-documents/config.go
package verifydocuments

import "time"

type Config struct {
	Timeout time.Duration

	// AutoVerifyNote is recorded on documents accepted without analyzer notes.
	AutoVerifyNote string
	// AnalyzerURL enables the HTTP document analysis service when set.
	AnalyzerURL     string
	AnalyzerAPIKey  string
	AnalyzerTimeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout:         30 * time.Second,
		AutoVerifyNote:  "Automatically verified using AI document analysis",
		AnalyzerTimeout: 10 * time.Second,
	}
}
