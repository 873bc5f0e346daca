package dto

import (
	"io"
	"time"

	"github.com/noah-isme/journal-api/internal/models"
)

// CreateArticleRequest creates a draft. FileURL is used when no file is uploaded.
type CreateArticleRequest struct {
	Title   string `json:"title" form:"title" validate:"required,min=3,max=300"`
	Slug    string `json:"slug" form:"slug" validate:"required,min=3,max=160"`
	FileURL string `json:"file_url" form:"-" validate:"omitempty,url"`
}

// UpdateArticleRequest edits a draft.
type UpdateArticleRequest struct {
	Title *string `json:"title" validate:"omitempty,min=3,max=300"`
	Slug  *string `json:"slug" validate:"omitempty,min=3,max=160"`
}

// SubmitArticleRequest moves a draft into review, optionally inviting co-authors.
type SubmitArticleRequest struct {
	CoAuthorIDs []string `json:"coauthor_ids" validate:"omitempty,dive,required"`
}

// RejectArticleRequest carries the editor's reason.
type RejectArticleRequest struct {
	RejectionReason string `json:"rejection_reason"`
}

// RejectPaymentRequest carries an optional note shown to the author.
type RejectPaymentRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// ArticleQuery mirrors review queue filters.
type ArticleQuery struct {
	States   []models.LifecycleState
	Page     int
	PageSize int
}

// ArticleView is the article payload with its derived legacy flags.
type ArticleView struct {
	*models.Article
	Flags models.LegacyFlags `json:"flags"`
}

// NewArticleView wraps a for responses.
func NewArticleView(a *models.Article) *ArticleView {
	if a == nil {
		return nil
	}
	return &ArticleView{Article: a, Flags: a.LegacyFlags()}
}

// NotificationOutcome reports the best effort delivery attempted after a committed transition.
type NotificationOutcome struct {
	Attempted bool   `json:"attempted"`
	Sent      bool   `json:"sent"`
	LogID     string `json:"log_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ActionResult is returned by every editorial action.
type ActionResult struct {
	Article      *ArticleView        `json:"article"`
	ExpiresAt    *time.Time          `json:"expires_at,omitempty"`
	Notification NotificationOutcome `json:"notification"`
}

// DownloadLink is a signed, time limited reference to a stored file.
type DownloadLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SubmitArticleResult answers a submission. Invitation problems never undo the submission.
type SubmitArticleResult struct {
	Article         *ArticleView           `json:"article"`
	Invitations     *InviteCoAuthorsResult `json:"invitations,omitempty"`
	InvitationError string                 `json:"invitation_error,omitempty"`
}

// ManuscriptUpload is a PDF streamed from a multipart form.
type ManuscriptUpload struct {
	Filename string
	Size     int64
	Reader   io.Reader
}
