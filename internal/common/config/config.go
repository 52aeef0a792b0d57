// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	Loan          LoanConfig              `mapstructure:"loan"`
	Server        ServerConfig            `mapstructure:"server"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	// Enabled registers the stage job workers and allows dispatching process instances.
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	ProcessID      string `mapstructure:"process_id"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
	// DeployResource is a BPMN file deployed on startup; empty skips deployment.
	DeployResource string `mapstructure:"deploy_resource"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	// EnsureSchema creates the loan tables on startup.
	EnsureSchema bool `mapstructure:"ensure_schema"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses       []string `mapstructure:"addresses"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`
	URL             string   `mapstructure:"url"`
	TranscriptIndex string   `mapstructure:"transcript_index"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

// Enabled reports whether an Elasticsearch endpoint is configured.
func (e ElasticsearchConfig) Enabled() bool {
	return e.GetURL() != ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Integrations ---

type AWSConfig struct {
	Region string `mapstructure:"region"`
	SES    struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"ses"`
	SNS struct {
		Enabled            bool   `mapstructure:"enabled"`
		DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
	} `mapstructure:"sns"`
}

type RabbitMQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// DocumentAnalysisConfig points the verify-documents stage at an analysis service.
// An empty URL keeps the built-in analyzer.
type DocumentAnalysisConfig struct {
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

type CreditBureauConfig struct {
	Name      string  `mapstructure:"name"`
	Timeout   int     `mapstructure:"timeout"`    // milliseconds
	RateLimit float64 `mapstructure:"rate_limit"` // requests per second
	Burst     int     `mapstructure:"burst"`
	CacheTTL  int     `mapstructure:"cache_ttl"` // seconds, 0 disables the cache
}

// IntegrationConfig holds settings for the external services.
type IntegrationConfig struct {
	AWS              AWSConfig              `mapstructure:"aws"`
	RabbitMQ         RabbitMQConfig         `mapstructure:"rabbitmq"`
	DocumentAnalysis DocumentAnalysisConfig `mapstructure:"document_analysis"`
	CreditBureau     CreditBureauConfig     `mapstructure:"credit_bureau"`
}

// LoanConfig holds underwriting policy knobs and queue processing settings.
type LoanConfig struct {
	MaxDebtToIncome       float64 `mapstructure:"max_debt_to_income"`
	DefaultUnderwriter    string  `mapstructure:"default_underwriter"`
	AssignFromDatabase    bool    `mapstructure:"assign_from_database"`
	HumanReviewConfidence float64 `mapstructure:"human_review_confidence"`
	// ProcessingSchedule is a cron spec for processing submitted applications;
	// empty disables the scheduler.
	ProcessingSchedule   string `mapstructure:"processing_schedule"`
	ProcessingBatchSize  int    `mapstructure:"processing_batch_size"`
	NumberReservationTTL int    `mapstructure:"number_reservation_ttl"` // seconds
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int `mapstructure:"write_timeout"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type ObservabilityConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Tracing     struct {
		Enabled        bool    `mapstructure:"enabled"`
		JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
		SampleRatio    float64 `mapstructure:"sample_ratio"`
	} `mapstructure:"tracing"`
}
