package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/noah-isme/journal-api/internal/dto"
	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/internal/repository"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
	"github.com/noah-isme/journal-api/pkg/watermark"
)

const maxPaymentNoteLength = 2000

type notifier interface {
	Dispatch(ctx context.Context, n models.Notification) dto.NotificationOutcome
}

// WorkflowSettings are the editorial policy knobs shared by the workflow services.
type WorkflowSettings struct {
	UTRTokenTTL        time.Duration
	CoAuthorTokenTTL   time.Duration
	MaxCoAuthors       int
	RejectionReasonMin int
	PersistTimeout     time.Duration
	PublicBaseURL      string
	Payment            dto.PaymentInstructions
	EditorEmails       []string
}

func (w WorkflowSettings) withDefaults() WorkflowSettings {
	if w.UTRTokenTTL <= 0 {
		w.UTRTokenTTL = 48 * time.Hour
	}
	if w.CoAuthorTokenTTL <= 0 {
		w.CoAuthorTokenTTL = 30 * 24 * time.Hour
	}
	if w.MaxCoAuthors <= 0 {
		w.MaxCoAuthors = 2
	}
	if w.RejectionReasonMin <= 0 {
		w.RejectionReasonMin = 10
	}
	w.PublicBaseURL = strings.TrimRight(w.PublicBaseURL, "/")
	return w
}

func (w WorkflowSettings) link(path, token string) string {
	return w.PublicBaseURL + path + "?token=" + url.QueryEscape(token)
}

func (w WorkflowSettings) paymentParams() map[string]string {
	return map[string]string{
		"fee":            w.Payment.Fee,
		"account_name":   w.Payment.AccountName,
		"account_number": w.Payment.AccountNumber,
		"ifsc":           w.Payment.IFSC,
		"bank_name":      w.Payment.BankName,
	}
}

// ArticleActionService runs the editor-side lifecycle actions. Each action commits its
// state change and token work in one transaction, then notifies without affecting the result.
type ArticleActionService struct {
	tx       transactor
	articles articleStore
	tokens   *TokenStore
	users    userDirectory
	notifier notifier
	stamper  manuscriptStamper
	logger   *zap.Logger
	metrics  *MetricsService
	cfg      WorkflowSettings
	now      func() time.Time
}

// NewArticleActionService wires the action service.
func NewArticleActionService(tx transactor, articles articleStore, tokens *TokenStore, users userDirectory, notifier notifier, stamper manuscriptStamper, logger *zap.Logger, metrics *MetricsService, cfg WorkflowSettings) *ArticleActionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArticleActionService{
		tx:       tx,
		articles: articles,
		tokens:   tokens,
		users:    users,
		notifier: notifier,
		stamper:  stamper,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// Approve accepts the manuscript and mails a fresh single-use UTR link to the author.
func (s *ArticleActionService) Approve(ctx context.Context, articleID string, actor *models.JWTClaims) (*dto.ActionResult, error) {
	if err := requireEditor(actor); err != nil {
		return nil, err
	}
	var article *models.Article
	var token *models.ActionToken
	err := s.persist(ctx, models.ActionApprove, func(ctx context.Context) error {
		now := s.now().UTC()
		updated, err := transitionArticle(ctx, s.articles, models.ActionApprove, articleID, nil, now,
			repository.Assignment{Column: "approved_at", Value: now})
		if err != nil {
			return err
		}
		issued, err := s.tokens.Issue(ctx, models.PurposeUTRSubmission, updated.ID, updated.AuthorID, s.cfg.UTRTokenTTL)
		if err != nil {
			return err
		}
		article, token = updated, issued
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("article approved", zap.String("article_id", article.ID), zap.String("editor_id", actor.UserID))

	params := s.cfg.paymentParams()
	params["link"] = s.cfg.link("/payment/submit", token.Value)
	params["expires_at"] = formatExpiry(token.ExpiresAt)
	outcome := s.notifyAuthor(ctx, article, models.TemplateArticleApproved, "article.approved:"+token.ID, params)
	return &dto.ActionResult{Article: dto.NewArticleView(article), ExpiresAt: &token.ExpiresAt, Notification: outcome}, nil
}

// Reject returns the manuscript to the author with a reason of at least the configured length.
func (s *ArticleActionService) Reject(ctx context.Context, articleID, reason string, actor *models.JWTClaims) (*dto.ActionResult, error) {
	if err := requireEditor(actor); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(reason)
	if utf8.RuneCountInString(trimmed) < s.cfg.RejectionReasonMin {
		return nil, appErrors.WithDetails(appErrors.ErrReasonTooShort, map[string]interface{}{
			"min_length": s.cfg.RejectionReasonMin,
		})
	}

	var article *models.Article
	err := s.persist(ctx, models.ActionReject, func(ctx context.Context) error {
		updated, err := transitionArticle(ctx, s.articles, models.ActionReject, articleID, &trimmed, s.now().UTC())
		article = updated
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("article rejected", zap.String("article_id", article.ID), zap.String("editor_id", actor.UserID))

	key := fmt.Sprintf("article.rejected:%s:%d", article.ID, article.UpdatedAt.UnixNano())
	outcome := s.notifyAuthor(ctx, article, models.TemplateArticleRejected, key, map[string]string{"reason": trimmed})
	return &dto.ActionResult{Article: dto.NewArticleView(article), Notification: outcome}, nil
}

// Reopen puts a rejected manuscript back in the review queue and clears the reason.
func (s *ArticleActionService) Reopen(ctx context.Context, articleID string, actor *models.JWTClaims) (*dto.ActionResult, error) {
	if err := requireEditor(actor); err != nil {
		return nil, err
	}
	var article *models.Article
	err := s.persist(ctx, models.ActionReopen, func(ctx context.Context) error {
		updated, err := transitionArticle(ctx, s.articles, models.ActionReopen, articleID, nil, s.now().UTC())
		article = updated
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("article reopened", zap.String("article_id", article.ID), zap.String("editor_id", actor.UserID))
	return &dto.ActionResult{Article: dto.NewArticleView(article)}, nil
}

// ResendApproval invalidates every outstanding UTR link and mails a new one.
// The article stays APPROVED; the self-transition serialises concurrent resends.
func (s *ArticleActionService) ResendApproval(ctx context.Context, articleID string, actor *models.JWTClaims) (*dto.ActionResult, error) {
	if err := requireEditor(actor); err != nil {
		return nil, err
	}
	var article *models.Article
	var token *models.ActionToken
	err := s.persist(ctx, models.ActionResendApproval, func(ctx context.Context) error {
		updated, err := transitionArticle(ctx, s.articles, models.ActionResendApproval, articleID, nil, s.now().UTC())
		if err != nil {
			return err
		}
		issued, err := s.tokens.Issue(ctx, models.PurposeUTRSubmission, updated.ID, updated.AuthorID, s.cfg.UTRTokenTTL)
		if err != nil {
			return err
		}
		article, token = updated, issued
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("approval link reissued", zap.String("article_id", article.ID), zap.String("editor_id", actor.UserID))

	params := s.cfg.paymentParams()
	params["link"] = s.cfg.link("/payment/submit", token.Value)
	params["expires_at"] = formatExpiry(token.ExpiresAt)
	outcome := s.notifyAuthor(ctx, article, models.TemplateApprovalResent, "approval.resent:"+token.ID, params)
	return &dto.ActionResult{Article: dto.NewArticleView(article), ExpiresAt: &token.ExpiresAt, Notification: outcome}, nil
}

// VerifyAndPublish confirms the payment, finalises the watermark and publishes.
func (s *ArticleActionService) VerifyAndPublish(ctx context.Context, articleID string, actor *models.JWTClaims) (*dto.ActionResult, error) {
	if err := requireEditor(actor); err != nil {
		return nil, err
	}
	current, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return nil, articleNotFound(err)
	}
	// Fail fast so a stale request does not stamp a sheet it cannot use.
	if _, err := Plan(models.ActionPublish, current.LifecycleState); err != nil {
		s.metrics.ObserveTransition(models.ActionPublish, outcomeLabel(err))
		return nil, err
	}
	stamped, err := s.stamper.Stamp(ctx, current, watermark.LabelPublished)
	if err != nil {
		s.metrics.ObserveTransition(models.ActionPublish, appErrors.ErrInternal.Code)
		return nil, internalError(err, "failed to finalise watermark")
	}

	var article *models.Article
	err = s.persist(ctx, models.ActionPublish, func(ctx context.Context) error {
		now := s.now().UTC()
		updated, err := transitionArticle(ctx, s.articles, models.ActionPublish, articleID, nil, now,
			repository.Assignment{Column: "published_at", Value: now},
			repository.Assignment{Column: "watermarked_file_url", Value: stamped})
		article = updated
		return err
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrInvalidTransition) {
			s.logger.Warn("publish lost a race, stamped sheet left unused", zap.String("article_id", articleID), zap.String("path", stamped))
		}
		return nil, err
	}
	s.logger.Info("article published", zap.String("article_id", article.ID), zap.String("editor_id", actor.UserID))

	outcome := s.notifyAuthor(ctx, article, models.TemplateArticlePublished, "article.published:"+article.ID, nil)
	return &dto.ActionResult{Article: dto.NewArticleView(article), Notification: outcome}, nil
}

// RejectPayment discards the submitted UTR and lets the author resubmit.
// The author's last UTR link is re-armed; a new link is minted only when none can be.
func (s *ArticleActionService) RejectPayment(ctx context.Context, articleID, reason string, actor *models.JWTClaims) (*dto.ActionResult, error) {
	if err := requireEditor(actor); err != nil {
		return nil, err
	}
	note := strings.TrimSpace(reason)
	if utf8.RuneCountInString(note) > maxPaymentNoteLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment rejection note is too long")
	}
	var noteValue *string
	if note != "" {
		noteValue = &note
	}

	var article *models.Article
	var token *models.ActionToken
	fresh := false
	err := s.persist(ctx, models.ActionRejectPayment, func(ctx context.Context) error {
		updated, err := transitionArticle(ctx, s.articles, models.ActionRejectPayment, articleID, nil, s.now().UTC(),
			repository.Assignment{Column: "payment_note", Value: noteValue},
			repository.Assignment{Column: "utr_number", Value: nil},
			repository.Assignment{Column: "payment_submitted_at", Value: nil})
		if err != nil {
			return err
		}
		rearmed, err := s.tokens.Rearm(ctx, models.PurposeUTRSubmission, updated.ID, s.cfg.UTRTokenTTL)
		if errors.Is(err, appErrors.ErrTokenNotFound) {
			rearmed, err = s.tokens.Issue(ctx, models.PurposeUTRSubmission, updated.ID, updated.AuthorID, s.cfg.UTRTokenTTL)
			fresh = true
		}
		if err != nil {
			return err
		}
		article, token = updated, rearmed
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment rejected", zap.String("article_id", article.ID), zap.String("editor_id", actor.UserID), zap.Bool("new_link", fresh))

	params := map[string]string{"reason": note, "expires_at": formatExpiry(token.ExpiresAt)}
	if fresh {
		params["link"] = s.cfg.link("/payment/submit", token.Value)
	}
	key := fmt.Sprintf("payment.rejected:%s:%d", article.ID, article.UpdatedAt.UnixNano())
	outcome := s.notifyAuthor(ctx, article, models.TemplatePaymentRejected, key, params)
	return &dto.ActionResult{Article: dto.NewArticleView(article), ExpiresAt: &token.ExpiresAt, Notification: outcome}, nil
}

// Unpublish withdraws a published article from public listing.
func (s *ArticleActionService) Unpublish(ctx context.Context, articleID string, actor *models.JWTClaims) (*dto.ActionResult, error) {
	if err := requireEditor(actor); err != nil {
		return nil, err
	}
	var article *models.Article
	err := s.persist(ctx, models.ActionUnpublish, func(ctx context.Context) error {
		updated, err := transitionArticle(ctx, s.articles, models.ActionUnpublish, articleID, nil, s.now().UTC())
		article = updated
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("article unpublished", zap.String("article_id", article.ID), zap.String("editor_id", actor.UserID))

	outcome := s.notifyAuthor(ctx, article, models.TemplateArticleUnpublished, "article.unpublished:"+article.ID, nil)
	return &dto.ActionResult{Article: dto.NewArticleView(article), Notification: outcome}, nil
}

func (s *ArticleActionService) persist(ctx context.Context, action models.ArticleAction, fn func(ctx context.Context) error) error {
	ctx, cancel := withTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()
	err := s.tx.WithinTx(ctx, fn)
	if err != nil {
		err = internalError(err, "failed to persist "+strings.ToLower(string(action)))
	}
	s.metrics.ObserveTransition(action, outcomeLabel(err))
	return err
}

func (s *ArticleActionService) notifyAuthor(ctx context.Context, article *models.Article, templateID, dedupeKey string, params map[string]string) dto.NotificationOutcome {
	return notifyArticleAuthor(ctx, s.users, s.notifier, s.logger, article, templateID, dedupeKey, params)
}

func notifyArticleAuthor(ctx context.Context, users userDirectory, n notifier, logger *zap.Logger, article *models.Article, templateID, dedupeKey string, params map[string]string) dto.NotificationOutcome {
	author, err := users.FindByID(ctx, article.AuthorID)
	if err != nil {
		logger.Warn("cannot notify author", zap.String("article_id", article.ID), zap.Error(err))
		return dto.NotificationOutcome{Error: "author could not be resolved"}
	}
	merged := map[string]string{
		"author_name": author.FullName,
		"title":       article.Title,
		"article_id":  article.ID,
	}
	for k, v := range params {
		merged[k] = v
	}
	return n.Dispatch(ctx, models.Notification{
		TemplateID: templateID,
		To:         []string{author.Email},
		Params:     merged,
		ArticleID:  article.ID,
		DedupeKey:  dedupeKey,
	})
}
