// internal/workers/loan/send-decision-notification/models.go
package sendnotification

import "loan-workflow/internal/models"

type Input struct {
	Application *models.LoanApplication `json:"application"`
}

type Output struct {
	NotificationID   string   `json:"notificationId"`
	NotificationType string   `json:"notificationType,omitempty"`
	Status           string   `json:"status"` // "sent", "failed", "disabled", "skipped"
	Channels         []string `json:"channels,omitempty"`
	SentAt           string   `json:"sentAt"` // ISO 8601
}

// Notification types
const (
	TypeApproved          = "approved"
	TypeConditional       = "conditional"
	TypeRejected          = "rejected"
	TypeDocumentsRequired = "documents_required"
	TypeHumanReview       = "human_review"
)

// Statuses
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
	StatusSkipped  = "skipped"
)

// Channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

type template struct {
	Subject string
	Body    string
	// SMS is sent in addition to email when set.
	SMS string
}
