package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/internal/repository"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
)

type transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type articleStore interface {
	Create(ctx context.Context, article *models.Article) error
	GetByID(ctx context.Context, id string) (*models.Article, error)
	LockByID(ctx context.Context, id string) (*models.Article, error)
	UpdateDraft(ctx context.Context, id, title, slug string) (*models.Article, error)
	Transition(ctx context.Context, p repository.TransitionParams) (*models.Article, error)
	List(ctx context.Context, filter models.ArticleFilter) ([]models.Article, int, error)
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
	ListByRoles(ctx context.Context, roles ...models.UserRole) ([]models.User, error)
}

func requireEditor(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.IsEditor() {
		return appErrors.Clone(appErrors.ErrForbidden, "editor role required")
	}
	return nil
}

func requireActor(actor *models.JWTClaims) error {
	if actor == nil || actor.UserID == "" {
		return appErrors.ErrUnauthorized
	}
	return nil
}

// withTimeout bounds d only when positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func internalError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message+": timed out")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func articleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "article not found")
	}
	return internalError(err, "failed to load article")
}

// transitionArticle applies action to the article with a conditional write. When the write
// matches nothing the article is re-read to report NotFound or the state that blocked it.
func transitionArticle(ctx context.Context, articles articleStore, action models.ArticleAction, articleID string, reason *string, at time.Time, set ...repository.Assignment) (*models.Article, error) {
	t := models.Transitions[action]
	updated, err := articles.Transition(ctx, repository.TransitionParams{
		ArticleID:       articleID,
		From:            t.From,
		To:              t.To,
		RejectionReason: reason,
		Set:             set,
		At:              at,
	})
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, internalError(err, "failed to update article")
	}
	current, getErr := articles.GetByID(ctx, articleID)
	if getErr != nil {
		return nil, articleNotFound(getErr)
	}
	return nil, invalidTransition(action, current.LifecycleState)
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return appErrors.FromError(err).Code
}

func uniqueEmails(groups ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, group := range groups {
		for _, email := range group {
			email = strings.TrimSpace(email)
			key := strings.ToLower(email)
			if email == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, email)
		}
	}
	return out
}

func formatExpiry(t time.Time) string {
	return t.UTC().Format("02 Jan 2006 15:04 MST")
}
