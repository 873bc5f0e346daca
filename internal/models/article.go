package models

import "time"

// LifecycleState is the single source of truth for where an article sits in the editorial workflow.
type LifecycleState string

const (
	StateDraft            LifecycleState = "DRAFT"
	StatePendingReview    LifecycleState = "PENDING_REVIEW"
	StateRejected         LifecycleState = "REJECTED"
	StateApproved         LifecycleState = "APPROVED"
	StatePaymentSubmitted LifecycleState = "PAYMENT_SUBMITTED"
	StatePaymentRejected  LifecycleState = "PAYMENT_REJECTED"
	StatePublished        LifecycleState = "PUBLISHED"
	StateUnpublished      LifecycleState = "UNPUBLISHED"
)

// LifecycleStates lists every state in workflow order.
var LifecycleStates = []LifecycleState{
	StateDraft,
	StatePendingReview,
	StateRejected,
	StateApproved,
	StatePaymentSubmitted,
	StatePaymentRejected,
	StatePublished,
	StateUnpublished,
}

// Valid reports whether s is a known state.
func (s LifecycleState) Valid() bool {
	for _, candidate := range LifecycleStates {
		if s == candidate {
			return true
		}
	}
	return false
}

// Article is a manuscript moving through review, payment and publication.
type Article struct {
	ID                 string         `db:"id" json:"id"`
	AuthorID           string         `db:"author_id" json:"author_id"`
	Title              string         `db:"title" json:"title"`
	Slug               string         `db:"slug" json:"slug"`
	LifecycleState     LifecycleState `db:"lifecycle_state" json:"lifecycle_state"`
	RejectionReason    *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	UTRNumber          *string        `db:"utr_number" json:"utr_number,omitempty"`
	PaymentNote        *string        `db:"payment_note" json:"payment_note,omitempty"`
	FileURL            string         `db:"file_url" json:"file_url"`
	WatermarkedFileURL *string        `db:"watermarked_file_url" json:"watermarked_file_url,omitempty"`
	SubmittedAt        *time.Time     `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt         *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
	PaymentSubmittedAt *time.Time     `db:"payment_submitted_at" json:"payment_submitted_at,omitempty"`
	PublishedAt        *time.Time     `db:"published_at" json:"published_at,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// ArticleFilter narrows review queue listings.
type ArticleFilter struct {
	States   []LifecycleState
	AuthorID string
	Page     int
	PageSize int
}

// LegacyFlags is the boolean view older clients read. It is always derived from LifecycleState.
type LegacyFlags struct {
	Submitted        bool `json:"submitted"`
	Approved         bool `json:"approved"`
	PaymentSubmitted bool `json:"payment_submitted"`
	PaymentDone      bool `json:"payment_done"`
	Published        bool `json:"published"`
	Rejected         bool `json:"rejected"`
}

// LegacyFlags derives the boolean view for the article's current state.
func (a *Article) LegacyFlags() LegacyFlags {
	return FlagsFor(a.LifecycleState)
}

// FlagsFor maps a state onto the legacy boolean flags.
func FlagsFor(s LifecycleState) LegacyFlags {
	f := LegacyFlags{Submitted: s != StateDraft}
	switch s {
	case StateRejected:
		f.Rejected = true
	case StateApproved, StatePaymentRejected:
		f.Approved = true
	case StatePaymentSubmitted:
		f.Approved = true
		f.PaymentSubmitted = true
	case StatePublished:
		f.Approved, f.PaymentSubmitted, f.PaymentDone, f.Published = true, true, true, true
	case StateUnpublished:
		f.Approved, f.PaymentSubmitted, f.PaymentDone = true, true, true
	}
	return f
}

// LegacyRecord is the shape of rows written before lifecycle_state existed.
type LegacyRecord struct {
	Submitted        bool
	Approved         bool
	PaymentSubmitted bool
	PaymentDone      bool
	Published        bool
	RejectionReason  *string
}

// DeriveLifecycleState maps legacy booleans to a state, most advanced flag first.
func DeriveLifecycleState(r LegacyRecord) LifecycleState {
	switch {
	case r.Published:
		return StatePublished
	case r.PaymentDone:
		return StateUnpublished
	case r.PaymentSubmitted:
		return StatePaymentSubmitted
	case r.Approved:
		return StateApproved
	case r.RejectionReason != nil && *r.RejectionReason != "":
		return StateRejected
	case r.Submitted:
		return StatePendingReview
	default:
		return StateDraft
	}
}
