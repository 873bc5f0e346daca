package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/journal-api/internal/dto"
	"github.com/noah-isme/journal-api/internal/models"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
)

type coauthorStore interface {
	GetByArticleAndUser(ctx context.Context, articleID, userID string) (*models.CoAuthorInvitation, error)
	Create(ctx context.Context, inv *models.CoAuthorInvitation) error
	Rebind(ctx context.Context, id, tokenID string, at time.Time) error
	MarkAccepted(ctx context.Context, id string, at time.Time) (*models.CoAuthorInvitation, error)
	ListByArticle(ctx context.Context, articleID string) ([]models.CoAuthorInvitation, error)
}

// States in which the author list is frozen.
var coauthorsFrozen = map[models.LifecycleState]bool{
	models.StateRejected:    true,
	models.StatePublished:   true,
	models.StateUnpublished: true,
}

// CoAuthorService invites co-authors and records their confirmation.
type CoAuthorService struct {
	tx        transactor
	articles  articleStore
	coauthors coauthorStore
	tokens    *TokenStore
	users     userDirectory
	notifier  notifier
	logger    *zap.Logger
	cfg       WorkflowSettings
	now       func() time.Time
}

// NewCoAuthorService wires the co-author service.
func NewCoAuthorService(tx transactor, articles articleStore, coauthors coauthorStore, tokens *TokenStore, users userDirectory, notifier notifier, logger *zap.Logger, cfg WorkflowSettings) *CoAuthorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoAuthorService{
		tx:        tx,
		articles:  articles,
		coauthors: coauthors,
		tokens:    tokens,
		users:     users,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

type pendingInvite struct {
	user  models.User
	token *models.ActionToken
	index int
}

// Invite adds co-authors to the article, mailing each a confirmation link. Users already
// invited but not yet confirmed get a new link; earlier links stop working.
func (s *CoAuthorService) Invite(ctx context.Context, articleID string, userIDs []string, actor *models.JWTClaims) (*dto.InviteCoAuthorsResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one co-author is required")
	}

	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, internalError(err, "failed to load users")
	}
	byID := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	unknown := make([]string, 0)
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "unknown co-author"), map[string]interface{}{"unknown_ids": unknown})
	}

	result := &dto.InviteCoAuthorsResult{ArticleID: articleID, Results: make([]dto.InviteOutcome, len(ids))}
	pending := make([]pendingInvite, 0, len(ids))
	var article *models.Article

	txCtx, cancel := withTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()
	err = s.tx.WithinTx(txCtx, func(ctx context.Context) error {
		pending = pending[:0]
		locked, err := s.articles.LockByID(ctx, articleID)
		if err != nil {
			return articleNotFound(err)
		}
		if locked.AuthorID != actor.UserID && !actor.Role.IsEditor() {
			return appErrors.Clone(appErrors.ErrForbidden, "only the author may invite co-authors")
		}
		for _, id := range ids {
			if id == locked.AuthorID {
				return appErrors.Clone(appErrors.ErrValidation, "the author cannot be invited as a co-author")
			}
		}
		if coauthorsFrozen[locked.LifecycleState] {
			return appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrInvalidTransition, "co-authors cannot be changed in the article's current state"),
				map[string]interface{}{"current_state": string(locked.LifecycleState)})
		}

		existing, err := s.coauthors.ListByArticle(ctx, articleID)
		if err != nil {
			return internalError(err, "failed to load co-authors")
		}
		current := make(map[string]models.CoAuthorInvitation, len(existing))
		for _, inv := range existing {
			current[inv.CoAuthorUserID] = inv
		}
		added := 0
		for _, id := range ids {
			if _, ok := current[id]; !ok {
				added++
			}
		}
		if len(existing)+added > s.cfg.MaxCoAuthors {
			return appErrors.WithDetails(appErrors.ErrMaxCoAuthorsExceeded, map[string]interface{}{
				"max":      s.cfg.MaxCoAuthors,
				"existing": len(existing),
				"added":    added,
			})
		}

		now := s.now().UTC()
		for i, id := range ids {
			inv, known := current[id]
			if known && inv.Accepted {
				result.Results[i] = dto.InviteOutcome{UserID: id, Status: dto.InviteStatusAccepted}
				continue
			}
			token, err := s.tokens.Issue(ctx, models.PurposeCoAuthorInvitation, articleID, id, s.cfg.CoAuthorTokenTTL)
			if err != nil {
				return err
			}
			if known {
				if err := s.coauthors.Rebind(ctx, inv.ID, token.ID, now); err != nil {
					return internalError(err, "failed to refresh invitation")
				}
				result.Results[i] = dto.InviteOutcome{UserID: id, Status: dto.InviteStatusReinvited}
			} else {
				tokenID := token.ID
				if err := s.coauthors.Create(ctx, &models.CoAuthorInvitation{
					ArticleID:      articleID,
					CoAuthorUserID: id,
					TokenID:        &tokenID,
					InvitedAt:      now,
				}); err != nil {
					return internalError(err, "failed to record invitation")
				}
				result.Results[i] = dto.InviteOutcome{UserID: id, Status: dto.InviteStatusInvited}
			}
			pending = append(pending, pendingInvite{user: byID[id], token: token, index: i})
		}
		article = locked
		return nil
	})
	if err != nil {
		return nil, internalError(err, "failed to invite co-authors")
	}

	authorName := ""
	if author, err := s.users.FindByID(ctx, article.AuthorID); err == nil {
		authorName = author.FullName
	}
	for _, p := range pending {
		outcome := s.notifier.Dispatch(ctx, models.Notification{
			TemplateID: models.TemplateCoAuthorInvitation,
			To:         []string{p.user.Email},
			Params: map[string]string{
				"coauthor_name": p.user.FullName,
				"author_name":   authorName,
				"title":         article.Title,
				"article_id":    article.ID,
				"link":          s.cfg.link("/coauthor/accept", p.token.Value),
				"expires_at":    formatExpiry(p.token.ExpiresAt),
			},
			ArticleID: article.ID,
			DedupeKey: "coauthor.invitation:" + p.token.ID,
		})
		result.Results[p.index].NotificationSent = outcome.Sent
		result.Results[p.index].Error = outcome.Error
	}
	s.logger.Info("co-authors invited", zap.String("article_id", articleID), zap.Int("links", len(pending)))
	return result, nil
}

// Preview reports what the co-author link would do without consuming it.
func (s *CoAuthorService) Preview(ctx context.Context, value string) (*dto.CoAuthorPreview, error) {
	token, err := s.tokens.Lookup(ctx, value, models.PurposeCoAuthorInvitation)
	if err != nil {
		return nil, err
	}
	inv, err := s.coauthors.GetByArticleAndUser(ctx, token.SubjectArticleID, token.SubjectUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrTokenNotFound
		}
		return nil, internalError(err, "failed to load invitation")
	}
	article, err := s.articles.GetByID(ctx, token.SubjectArticleID)
	if err != nil {
		return nil, articleNotFound(err)
	}

	status := s.tokens.Check(token)
	preview := &dto.CoAuthorPreview{
		AlreadyAccepted: inv.Accepted,
		Expired:         errors.Is(status, appErrors.ErrTokenExpired),
		Article: &dto.ArticleSummary{
			ID:    article.ID,
			Title: article.Title,
			Slug:  article.Slug,
			State: string(article.LifecycleState),
		},
	}
	preview.Valid = status == nil && !inv.Accepted
	if user, err := s.users.FindByID(ctx, token.SubjectUserID); err == nil {
		preview.CoAuthorName = user.FullName
	}
	if author, err := s.users.FindByID(ctx, article.AuthorID); err == nil {
		preview.Article.Author = author.FullName
	}
	return preview, nil
}

// Confirm consumes the link and marks the invitation accepted. A link that was already
// used answers as a bad request.
func (s *CoAuthorService) Confirm(ctx context.Context, value string) (*dto.ConfirmCoAuthorResult, error) {
	var accepted *models.CoAuthorInvitation
	txCtx, cancel := withTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()
	err := s.tx.WithinTx(txCtx, func(ctx context.Context) error {
		token, err := s.tokens.Claim(ctx, value, models.PurposeCoAuthorInvitation)
		if err != nil {
			return err
		}
		inv, err := s.coauthors.GetByArticleAndUser(ctx, token.SubjectArticleID, token.SubjectUserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrTokenNotFound
			}
			return internalError(err, "failed to load invitation")
		}
		updated, err := s.coauthors.MarkAccepted(ctx, inv.ID, s.now().UTC())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrTokenAlreadyConsumed
			}
			return internalError(err, "failed to accept invitation")
		}
		accepted = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrTokenAlreadyConsumed) {
			return nil, appErrors.WithStatus(appErrors.Clone(appErrors.ErrTokenAlreadyConsumed, "co-authorship was already confirmed"), http.StatusBadRequest)
		}
		return nil, internalError(err, "failed to confirm co-authorship")
	}

	article, err := s.articles.GetByID(ctx, accepted.ArticleID)
	if err != nil {
		return nil, articleNotFound(err)
	}
	result := &dto.ConfirmCoAuthorResult{Article: dto.ArticleSummary{
		ID:    article.ID,
		Title: article.Title,
		Slug:  article.Slug,
		State: string(article.LifecycleState),
	}}
	coauthorName := ""
	if user, err := s.users.FindByID(ctx, accepted.CoAuthorUserID); err == nil {
		coauthorName = user.FullName
	}
	result.Notification = notifyArticleAuthor(ctx, s.users, s.notifier, s.logger, article, models.TemplateCoAuthorAccepted,
		"coauthor.accepted:"+accepted.ID, map[string]string{"coauthor_name": coauthorName})
	s.logger.Info("co-authorship confirmed", zap.String("article_id", article.ID), zap.String("coauthor_id", accepted.CoAuthorUserID))
	return result, nil
}

// List returns the invitations on an article for its author or an editor.
func (s *CoAuthorService) List(ctx context.Context, articleID string, actor *models.JWTClaims) ([]models.CoAuthorInvitation, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return nil, articleNotFound(err)
	}
	if article.AuthorID != actor.UserID && !actor.Role.IsEditor() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this article")
	}
	list, err := s.coauthors.ListByArticle(ctx, articleID)
	if err != nil {
		return nil, internalError(err, "failed to list co-authors")
	}
	return list, nil
}
