package models

import "time"

// CoAuthorInvitation links an article to an invited co-author.
type CoAuthorInvitation struct {
	ID             string     `db:"id" json:"id"`
	ArticleID      string     `db:"article_id" json:"article_id"`
	CoAuthorUserID string     `db:"coauthor_user_id" json:"coauthor_user_id"`
	Accepted       bool       `db:"accepted" json:"accepted"`
	AcceptedAt     *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	TokenID        *string    `db:"token_id" json:"-"`
	InvitedAt      time.Time  `db:"invited_at" json:"invited_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
