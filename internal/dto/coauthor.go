package dto

// InviteCoAuthorsRequest lists users to invite onto an article.
type InviteCoAuthorsRequest struct {
	CoAuthorIDs []string `json:"coauthor_ids" validate:"required,min=1,dive,required"`
}

// Per-recipient invitation outcomes.
const (
	InviteStatusInvited   = "invited"
	InviteStatusReinvited = "reinvited"
	InviteStatusAccepted  = "already_accepted"
)

// InviteOutcome reports what happened for one invited user.
type InviteOutcome struct {
	UserID           string `json:"user_id"`
	Status           string `json:"status"`
	NotificationSent bool   `json:"notification_sent"`
	Error            string `json:"error,omitempty"`
}

// InviteCoAuthorsResult answers an invite request.
type InviteCoAuthorsResult struct {
	ArticleID string          `json:"article_id"`
	Results   []InviteOutcome `json:"results"`
}

// CoAuthorPreview answers GET /coauthor/accept.
type CoAuthorPreview struct {
	Valid           bool            `json:"valid"`
	AlreadyAccepted bool            `json:"already_accepted"`
	Expired         bool            `json:"expired"`
	Article         *ArticleSummary `json:"article,omitempty"`
	CoAuthorName    string          `json:"coauthor_name,omitempty"`
}

// ConfirmCoAuthorRequest is posted to accept an invitation.
type ConfirmCoAuthorRequest struct {
	Token string `json:"token" validate:"required"`
}

// ConfirmCoAuthorResult answers POST /coauthor/accept.
type ConfirmCoAuthorResult struct {
	Article      ArticleSummary      `json:"article"`
	Notification NotificationOutcome `json:"notification"`
}
