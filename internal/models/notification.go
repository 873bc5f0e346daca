package models

import (
	"time"

	"github.com/lib/pq"
)

// Notification template identifiers.
const (
	TemplateArticleApproved    = "article.approved"
	TemplateArticleRejected    = "article.rejected"
	TemplateApprovalResent     = "approval.resent"
	TemplatePaymentSubmitted   = "payment.submitted"
	TemplatePaymentRejected    = "payment.rejected"
	TemplateArticlePublished   = "article.published"
	TemplateArticleUnpublished = "article.unpublished"
	TemplateCoAuthorInvitation = "coauthor.invitation"
	TemplateCoAuthorAccepted   = "coauthor.accepted"
)

// Notification is an outbound message request. Params feed the template.
type Notification struct {
	TemplateID string
	To         []string
	Params     map[string]string
	ArticleID  string
	DedupeKey  string
}

// NotificationStatus tracks delivery of a logged notification.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
)

// NotificationLog is the persisted record of a notification attempt.
type NotificationLog struct {
	ID         string             `db:"id" json:"id"`
	DedupeKey  string             `db:"dedupe_key" json:"dedupe_key"`
	TemplateID string             `db:"template_id" json:"template_id"`
	ArticleID  *string            `db:"article_id" json:"article_id,omitempty"`
	Recipients pq.StringArray     `db:"recipients" json:"recipients"`
	Subject    string             `db:"subject" json:"subject"`
	Body       string             `db:"body" json:"-"`
	Status     NotificationStatus `db:"status" json:"status"`
	Attempts   int                `db:"attempts" json:"attempts"`
	LastError  *string            `db:"last_error" json:"last_error,omitempty"`
	SentAt     *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt  time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time          `db:"updated_at" json:"updated_at"`
}
