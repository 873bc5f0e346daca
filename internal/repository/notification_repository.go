package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/journal-api/internal/models"
)

const notificationColumns = `id, dedupe_key, template_id, article_id, recipients, subject, body, status, attempts, last_error, sent_at, created_at, updated_at`

// NotificationRepository persists the notification log.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Reserve inserts a PENDING row keyed by dedupe key. When the key already exists the
// stored row is returned with created=false.
func (r *NotificationRepository) Reserve(ctx context.Context, entry *models.NotificationLog) (*models.NotificationLog, bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	entry.CreatedAt, entry.UpdatedAt = now, now
	if entry.Status == "" {
		entry.Status = models.NotificationPending
	}

	const query = `INSERT INTO notification_log (id, dedupe_key, template_id, article_id, recipients, subject, body, status, attempts, created_at, updated_at)
	VALUES (:id, :dedupe_key, :template_id, :article_id, :recipients, :subject, :body, :status, 0, :created_at, :updated_at)
	ON CONFLICT (dedupe_key) DO NOTHING`
	res, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, entry)
	if err != nil {
		return nil, false, fmt.Errorf("reserve notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return entry, true, nil
	}

	existing, err := r.getBy(ctx, "dedupe_key", entry.DedupeKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID loads a log row.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*models.NotificationLog, error) {
	return r.getBy(ctx, "id", id)
}

func (r *NotificationRepository) getBy(ctx context.Context, column, value string) (*models.NotificationLog, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_log WHERE %s = $1`, notificationColumns, column)
	var entry models.NotificationLog
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &entry, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &entry, nil
}

// MarkSent records a successful delivery. Rows already SENT are left untouched.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE notification_log SET status = 'SENT', sent_at = $1, attempts = attempts + 1, last_error = NULL, updated_at = $1
	WHERE id = $2 AND status <> 'SENT'`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("mark notification sent: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkFailed records a failed attempt.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	const query = `UPDATE notification_log SET status = 'FAILED', attempts = attempts + 1, last_error = $1, updated_at = $2
	WHERE id = $3 AND status <> 'SENT'`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, truncateError(reason), at, id); err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return nil
}

// ListFailed returns FAILED rows with fewer than maxAttempts attempts, oldest first.
func (r *NotificationRepository) ListFailed(ctx context.Context, maxAttempts, limit int) ([]models.NotificationLog, error) {
	query := `SELECT ` + notificationColumns + ` FROM notification_log
	WHERE status = 'FAILED' AND attempts < $1 ORDER BY updated_at LIMIT $2`
	list := make([]models.NotificationLog, 0)
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &list, query, maxAttempts, limit); err != nil {
		return nil, fmt.Errorf("list failed notifications: %w", err)
	}
	return list, nil
}

// List returns log rows matching the filters, newest first.
func (r *NotificationRepository) List(ctx context.Context, articleID string, status models.NotificationStatus, limit int) ([]models.NotificationLog, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 3)
	if articleID != "" {
		args = append(args, articleID)
		conditions = append(conditions, fmt.Sprintf("article_id = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM notification_log%s ORDER BY created_at DESC LIMIT $%d`, notificationColumns, where, len(args))

	list := make([]models.NotificationLog, 0)
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &list, query, args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

func truncateError(s string) string {
	if len(s) > 1000 {
		return s[:1000]
	}
	return s
}
