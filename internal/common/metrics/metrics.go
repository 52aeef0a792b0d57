// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Zeebe job workers
var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Loan workflow engine
var (
	WorkflowRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_workflow_runs_total",
			Help: "Workflow runs by terminal workflow status",
		},
		[]string{"status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loan_stage_duration_seconds",
			Help:    "Duration of a single workflow stage",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"stage"},
	)

	StageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_stage_errors_total",
			Help: "Processing errors raised by workflow stages",
		},
		[]string{"stage"},
	)

	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_decisions_total",
			Help: "Automated underwriting decisions by outcome and loan type",
		},
		[]string{"decision", "loan_type"},
	)

	CreditScoreCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_credit_score_cache_lookups_total",
			Help: "Credit score cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_notifications_total",
			Help: "Applicant notifications by channel and delivery status",
		},
		[]string{"channel", "status"},
	)
)
