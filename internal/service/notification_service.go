package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/journal-api/internal/dto"
	"github.com/noah-isme/journal-api/internal/models"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
	"github.com/noah-isme/journal-api/pkg/jobs"
	"github.com/noah-isme/journal-api/pkg/mailer"
)

// JobTypeNotificationRetry identifies redelivery jobs on the notification queue.
const JobTypeNotificationRetry = "notification.retry"

type notificationLogRepository interface {
	Reserve(ctx context.Context, entry *models.NotificationLog) (*models.NotificationLog, bool, error)
	GetByID(ctx context.Context, id string) (*models.NotificationLog, error)
	MarkSent(ctx context.Context, id string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error
	ListFailed(ctx context.Context, maxAttempts, limit int) ([]models.NotificationLog, error)
	List(ctx context.Context, articleID string, status models.NotificationStatus, limit int) ([]models.NotificationLog, error)
}

type retryScheduler interface {
	Enqueue(job jobs.Job) error
	Pending(key string) bool
}

// NotificationSettings configures delivery.
type NotificationSettings struct {
	JournalName string
	SendTimeout time.Duration
	MaxAttempts int
}

// NotificationService renders, logs and delivers workflow emails. Delivery is best effort:
// callers get an outcome, never an error, and failed rows are retried in the background.
type NotificationService struct {
	repo    notificationLogRepository
	sender  mailer.Sender
	queue   retryScheduler
	logger  *zap.Logger
	metrics *MetricsService
	cfg     NotificationSettings
	now     func() time.Time
}

// NewNotificationService constructs the service.
func NewNotificationService(repo notificationLogRepository, sender mailer.Sender, logger *zap.Logger, metrics *MetricsService, cfg NotificationSettings) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &NotificationService{repo: repo, sender: sender, logger: logger, metrics: metrics, cfg: cfg, now: time.Now}
}

// UseRetryQueue attaches the background queue. Its handler should be HandleRetry.
func (s *NotificationService) UseRetryQueue(q retryScheduler) {
	s.queue = q
}

// Dispatch sends n once per dedupe key. A key that was already delivered is not sent again.
func (s *NotificationService) Dispatch(ctx context.Context, n models.Notification) dto.NotificationOutcome {
	// Delivery happens after the transition committed; a client hanging up must not abort it.
	ctx = context.WithoutCancel(ctx)
	logger := s.logger.With(zap.String("template", n.TemplateID), zap.String("article_id", n.ArticleID))

	if len(n.To) == 0 {
		logger.Warn("notification has no recipients")
		return dto.NotificationOutcome{Error: mailer.ErrNoRecipients.Error()}
	}
	params := make(map[string]string, len(n.Params)+1)
	params["journal"] = s.cfg.JournalName
	for k, v := range n.Params {
		params[k] = v
	}
	subject, body, err := renderTemplate(n.TemplateID, params)
	if err != nil {
		logger.Error("failed to render notification", zap.Error(err))
		return dto.NotificationOutcome{Error: err.Error()}
	}

	entry := &models.NotificationLog{
		DedupeKey:  n.DedupeKey,
		TemplateID: n.TemplateID,
		Recipients: n.To,
		Subject:    subject,
		Body:       body,
	}
	if entry.DedupeKey == "" {
		entry.DedupeKey = n.TemplateID + ":" + uuid.NewString()
	}
	if n.ArticleID != "" {
		articleID := n.ArticleID
		entry.ArticleID = &articleID
	}

	stored, created, err := s.repo.Reserve(ctx, entry)
	if err != nil {
		logger.Error("failed to log notification, sending untracked", zap.Error(err))
		outcome := dto.NotificationOutcome{Attempted: true}
		if sendErr := s.send(ctx, entry); sendErr != nil {
			outcome.Error = sendErr.Error()
			return outcome
		}
		outcome.Sent = true
		return outcome
	}
	if !created {
		switch {
		case stored.Status == models.NotificationSent:
			logger.Debug("notification already delivered", zap.String("dedupe_key", stored.DedupeKey))
			return dto.NotificationOutcome{Sent: true, LogID: stored.ID}
		case stored.Status == models.NotificationPending:
			logger.Debug("notification delivery in flight", zap.String("dedupe_key", stored.DedupeKey))
			return dto.NotificationOutcome{LogID: stored.ID, Error: "delivery already in progress"}
		case s.queue != nil && s.queue.Pending(retryKey(stored.ID)):
			return dto.NotificationOutcome{LogID: stored.ID, Error: "delivery retry already scheduled"}
		}
	}
	return s.deliver(ctx, stored)
}

// Resend retries a logged notification on an editor's request. Delivered rows are never resent.
func (s *NotificationService) Resend(ctx context.Context, id string, actor *models.JWTClaims) (dto.NotificationOutcome, error) {
	if err := requireEditor(actor); err != nil {
		return dto.NotificationOutcome{}, err
	}
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dto.NotificationOutcome{}, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return dto.NotificationOutcome{}, internalError(err, "failed to load notification")
	}
	if entry.Status == models.NotificationSent {
		return dto.NotificationOutcome{}, appErrors.Clone(appErrors.ErrConflict, "notification was already delivered")
	}
	if s.queue != nil && s.queue.Pending(retryKey(entry.ID)) {
		return dto.NotificationOutcome{}, appErrors.Clone(appErrors.ErrConflict, "a retry for this notification is in progress")
	}
	outcome := s.deliver(context.WithoutCancel(ctx), entry)
	if !outcome.Sent {
		return outcome, appErrors.WithDetails(appErrors.ErrNotificationFailed, map[string]interface{}{
			"log_id": entry.ID,
			"error":  outcome.Error,
		})
	}
	return outcome, nil
}

// List returns logged notifications.
func (s *NotificationService) List(ctx context.Context, query dto.NotificationQuery, actor *models.JWTClaims) ([]models.NotificationLog, error) {
	if err := requireEditor(actor); err != nil {
		return nil, err
	}
	if query.Status != "" {
		switch query.Status {
		case models.NotificationPending, models.NotificationSent, models.NotificationFailed:
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown notification status")
		}
	}
	list, err := s.repo.List(ctx, query.ArticleID, query.Status, query.Limit)
	if err != nil {
		return nil, internalError(err, "failed to list notifications")
	}
	return list, nil
}

// HandleRetry is the queue handler for JobTypeNotificationRetry jobs.
func (s *NotificationService) HandleRetry(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok || id == "" {
		return fmt.Errorf("notification retry: unexpected payload %T", job.Payload)
	}
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("notification retry for missing row", zap.String("log_id", id))
			return nil
		}
		return err
	}
	if entry.Status == models.NotificationSent || entry.Attempts >= s.cfg.MaxAttempts {
		return nil
	}
	if err := s.send(ctx, entry); err != nil {
		s.markFailed(ctx, entry, err)
		return err
	}
	s.markSent(ctx, entry)
	return nil
}

// RequeueFailed schedules redelivery of FAILED rows left over from earlier runs.
func (s *NotificationService) RequeueFailed(ctx context.Context, limit int) (int, error) {
	if s.queue == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.repo.ListFailed(ctx, s.cfg.MaxAttempts, limit)
	if err != nil {
		return 0, fmt.Errorf("list failed notifications: %w", err)
	}
	scheduled := 0
	for _, row := range rows {
		if s.scheduleRetry(row.ID) {
			scheduled++
		}
	}
	if scheduled > 0 {
		s.logger.Info("requeued failed notifications", zap.Int("count", scheduled))
	}
	return scheduled, nil
}

func (s *NotificationService) deliver(ctx context.Context, entry *models.NotificationLog) dto.NotificationOutcome {
	outcome := dto.NotificationOutcome{Attempted: true, LogID: entry.ID}
	if err := s.send(ctx, entry); err != nil {
		s.markFailed(ctx, entry, err)
		s.scheduleRetry(entry.ID)
		outcome.Error = err.Error()
		return outcome
	}
	s.markSent(ctx, entry)
	outcome.Sent = true
	return outcome
}

func (s *NotificationService) send(ctx context.Context, entry *models.NotificationLog) error {
	sendCtx, cancel := withTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	return s.sender.Send(sendCtx, mailer.Message{
		To:       []string(entry.Recipients),
		Subject:  entry.Subject,
		Markdown: entry.Body,
	})
}

func (s *NotificationService) markSent(ctx context.Context, entry *models.NotificationLog) {
	s.metrics.ObserveNotification(entry.TemplateID, models.NotificationSent)
	if _, err := s.repo.MarkSent(ctx, entry.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to mark notification sent", zap.String("log_id", entry.ID), zap.Error(err))
	}
}

func (s *NotificationService) markFailed(ctx context.Context, entry *models.NotificationLog, cause error) {
	s.metrics.ObserveNotification(entry.TemplateID, models.NotificationFailed)
	s.logger.Warn("notification delivery failed",
		zap.String("log_id", entry.ID),
		zap.String("template", entry.TemplateID),
		zap.Error(cause))
	if err := s.repo.MarkFailed(ctx, entry.ID, cause.Error(), s.now().UTC()); err != nil {
		s.logger.Warn("failed to mark notification failed", zap.String("log_id", entry.ID), zap.Error(err))
	}
}

func (s *NotificationService) scheduleRetry(id string) bool {
	if s.queue == nil {
		return false
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:       uuid.NewString(),
		Type:     JobTypeNotificationRetry,
		Key:      retryKey(id),
		Payload:  id,
		Enqueued: s.now().UTC(),
	})
	if err != nil {
		if !errors.Is(err, jobs.ErrDuplicate) {
			s.logger.Warn("failed to schedule notification retry", zap.String("log_id", id), zap.Error(err))
		}
		return false
	}
	return true
}

func retryKey(id string) string {
	return "notification:" + id
}
