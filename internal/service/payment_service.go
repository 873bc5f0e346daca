package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/journal-api/internal/dto"
	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/internal/repository"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
)

var utrPattern = regexp.MustCompile(`^[A-Za-z0-9]{6,64}$`)

// PaymentService serves the public UTR submission page reached through an emailed link.
type PaymentService struct {
	tx       transactor
	articles articleStore
	tokens   *TokenStore
	users    userDirectory
	notifier notifier
	logger   *zap.Logger
	metrics  *MetricsService
	cfg      WorkflowSettings
	now      func() time.Time
}

// NewPaymentService wires the payment service.
func NewPaymentService(tx transactor, articles articleStore, tokens *TokenStore, users userDirectory, notifier notifier, logger *zap.Logger, metrics *MetricsService, cfg WorkflowSettings) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		tx:       tx,
		articles: articles,
		tokens:   tokens,
		users:    users,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// ValidatePaymentToken checks a UTR link without consuming it.
func (s *PaymentService) ValidatePaymentToken(ctx context.Context, value string) (*dto.PaymentTokenView, error) {
	token, err := s.tokens.Validate(ctx, value, models.PurposeUTRSubmission)
	if err != nil {
		return nil, err
	}
	article, err := s.articles.GetByID(ctx, token.SubjectArticleID)
	if err != nil {
		return nil, articleNotFound(err)
	}
	summary := s.summary(ctx, article)
	instructions := s.cfg.Payment
	expires := token.ExpiresAt
	return &dto.PaymentTokenView{
		Status:       dto.TokenStatusValid,
		Article:      &summary,
		ExpiresAt:    &expires,
		Instructions: &instructions,
	}, nil
}

// SubmitUTR consumes the link and records the transfer reference in one transaction.
// If the article cannot move, the claim rolls back and the link stays usable.
func (s *PaymentService) SubmitUTR(ctx context.Context, req dto.SubmitUTRRequest) (*dto.SubmitUTRResult, error) {
	utr := strings.ToUpper(strings.TrimSpace(req.UTRNumber))
	if utr == "" {
		return nil, appErrors.ErrMissingUTR
	}
	if !utrPattern.MatchString(utr) {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, map[string]interface{}{
			"utr_number": "must be 6 to 64 letters or digits",
		})
	}
	if strings.TrimSpace(req.Token) == "" {
		return nil, appErrors.ErrTokenNotFound
	}

	var article *models.Article
	txCtx, cancel := withTimeout(ctx, s.cfg.PersistTimeout)
	err := s.tx.WithinTx(txCtx, func(ctx context.Context) error {
		token, err := s.tokens.Claim(ctx, req.Token, models.PurposeUTRSubmission)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		updated, err := transitionArticle(ctx, s.articles, models.ActionSubmitPayment, token.SubjectArticleID, nil, now,
			repository.Assignment{Column: "utr_number", Value: utr},
			repository.Assignment{Column: "payment_submitted_at", Value: now},
			repository.Assignment{Column: "payment_note", Value: nil})
		article = updated
		return err
	})
	cancel()
	if err != nil {
		err = internalError(err, "failed to record payment")
		s.metrics.ObserveTransition(models.ActionSubmitPayment, outcomeLabel(err))
		return nil, err
	}
	s.metrics.ObserveTransition(models.ActionSubmitPayment, "ok")
	s.logger.Info("payment submitted", zap.String("article_id", article.ID))

	summary := s.summary(ctx, article)
	recipients := s.editorRecipients(ctx)
	outcome := s.notifier.Dispatch(ctx, models.Notification{
		TemplateID: models.TemplatePaymentSubmitted,
		To:         recipients,
		Params: map[string]string{
			"title":       article.Title,
			"article_id":  article.ID,
			"author_name": summary.Author,
			"utr_number":  utr,
		},
		ArticleID: article.ID,
		DedupeKey: fmt.Sprintf("payment.submitted:%s:%d", article.ID, article.UpdatedAt.UnixNano()),
	})
	return &dto.SubmitUTRResult{Article: summary, Notification: outcome}, nil
}

// TokenStatus maps a token error onto the status string shown by the payment page.
func TokenStatus(err error) string {
	switch {
	case err == nil:
		return dto.TokenStatusValid
	case errors.Is(err, appErrors.ErrTokenExpired):
		return dto.TokenStatusExpired
	case errors.Is(err, appErrors.ErrTokenAlreadyConsumed):
		return dto.TokenStatusUsed
	default:
		return dto.TokenStatusInvalid
	}
}

func (s *PaymentService) summary(ctx context.Context, article *models.Article) dto.ArticleSummary {
	summary := dto.ArticleSummary{
		ID:    article.ID,
		Title: article.Title,
		Slug:  article.Slug,
		State: string(article.LifecycleState),
	}
	if author, err := s.users.FindByID(ctx, article.AuthorID); err == nil {
		summary.Author = author.FullName
	}
	return summary
}

func (s *PaymentService) editorRecipients(ctx context.Context) []string {
	editors, err := s.users.ListByRoles(ctx, models.EditorRoles...)
	if err != nil {
		s.logger.Warn("failed to list editors, using configured addresses", zap.Error(err))
	}
	emails := make([]string, 0, len(editors))
	for _, editor := range editors {
		emails = append(emails, editor.Email)
	}
	return uniqueEmails(emails, s.cfg.EditorEmails)
}
