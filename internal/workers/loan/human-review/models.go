// internal/workers/loan/human-review/models.go
package humanreview

const (
	MsgFlagged = "Application flagged for human review. Assigning to underwriter..."
)

// openStatuses count toward an underwriter's workload.
var openStatuses = []string{"submitted", "under_review", "documents_required", "credit_check", "approved"}
