package models

import "time"

// TokenPurpose scopes an action token to a single kind of operation.
type TokenPurpose string

const (
	PurposeUTRSubmission      TokenPurpose = "UTR_SUBMISSION"
	PurposeCoAuthorInvitation TokenPurpose = "COAUTHOR_INVITATION"
)

// ActionToken is a single-use bearer credential. Only the SHA-256 hash of the value is stored.
type ActionToken struct {
	ID               string       `db:"id" json:"id"`
	Value            string       `db:"-" json:"-"`
	TokenHash        string       `db:"token_hash" json:"-"`
	Purpose          TokenPurpose `db:"purpose" json:"purpose"`
	SubjectArticleID string       `db:"subject_article_id" json:"subject_article_id"`
	SubjectUserID    string       `db:"subject_user_id" json:"subject_user_id"`
	IssuedAt         time.Time    `db:"issued_at" json:"issued_at"`
	ExpiresAt        time.Time    `db:"expires_at" json:"expires_at"`
	ConsumedAt       *time.Time   `db:"consumed_at" json:"consumed_at,omitempty"`
	SupersededAt     *time.Time   `db:"superseded_at" json:"superseded_at,omitempty"`
}

// Expired reports whether now is at or past the expiry.
func (t *ActionToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Usable reports whether the token may still be claimed at now.
func (t *ActionToken) Usable(now time.Time) bool {
	return t.ConsumedAt == nil && t.SupersededAt == nil && !t.Expired(now)
}
