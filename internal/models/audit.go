package models

import "time"

// Audit actions recorded for editorial operations.
const (
	AuditActionLogin              = "LOGIN"
	AuditActionArticleApprove     = "ARTICLE_APPROVE"
	AuditActionArticleReject      = "ARTICLE_REJECT"
	AuditActionArticleReopen      = "ARTICLE_REOPEN"
	AuditActionApprovalResend     = "APPROVAL_RESEND"
	AuditActionArticlePublish     = "ARTICLE_PUBLISH"
	AuditActionPaymentReject      = "PAYMENT_REJECT"
	AuditActionArticleUnpublish   = "ARTICLE_UNPUBLISH"
	AuditActionNotificationResend = "NOTIFICATION_RESEND"
	AuditActionReviewQueueExport  = "REVIEW_QUEUE_EXPORT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
