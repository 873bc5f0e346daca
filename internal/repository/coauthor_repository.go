package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/journal-api/internal/models"
)

const coauthorColumns = `id, article_id, coauthor_user_id, accepted, accepted_at, token_id, invited_at, created_at, updated_at`

// CoAuthorRepository persists co-author invitations.
type CoAuthorRepository struct {
	db *sqlx.DB
}

// NewCoAuthorRepository constructs the repository.
func NewCoAuthorRepository(db *sqlx.DB) *CoAuthorRepository {
	return &CoAuthorRepository{db: db}
}

// GetByArticleAndUser finds the invitation for a specific co-author.
func (r *CoAuthorRepository) GetByArticleAndUser(ctx context.Context, articleID, userID string) (*models.CoAuthorInvitation, error) {
	query := `SELECT ` + coauthorColumns + ` FROM coauthor_invitations WHERE article_id = $1 AND coauthor_user_id = $2`
	var inv models.CoAuthorInvitation
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &inv, query, articleID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get coauthor invitation: %w", err)
	}
	return &inv, nil
}

// Create inserts an invitation. A second record for the same pair yields ErrDuplicate.
func (r *CoAuthorRepository) Create(ctx context.Context, inv *models.CoAuthorInvitation) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if inv.InvitedAt.IsZero() {
		inv.InvitedAt = now
	}
	inv.CreatedAt, inv.UpdatedAt = now, now
	const query = `INSERT INTO coauthor_invitations (id, article_id, coauthor_user_id, accepted, token_id, invited_at, created_at, updated_at)
	VALUES (:id, :article_id, :coauthor_user_id, :accepted, :token_id, :invited_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, inv); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create coauthor invitation: %w", err)
	}
	return nil
}

// Rebind points an un-accepted invitation at a freshly minted token.
func (r *CoAuthorRepository) Rebind(ctx context.Context, id, tokenID string, at time.Time) error {
	const query = `UPDATE coauthor_invitations SET token_id = $1, invited_at = $2, updated_at = $2 WHERE id = $3 AND accepted = FALSE`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, tokenID, at, id)
	if err != nil {
		return fmt.Errorf("rebind coauthor invitation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkAccepted flips accepted exactly once. sql.ErrNoRows means it was already accepted.
func (r *CoAuthorRepository) MarkAccepted(ctx context.Context, id string, at time.Time) (*models.CoAuthorInvitation, error) {
	query := `UPDATE coauthor_invitations SET accepted = TRUE, accepted_at = $1, updated_at = $1
	WHERE id = $2 AND accepted = FALSE RETURNING ` + coauthorColumns
	var inv models.CoAuthorInvitation
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &inv, query, at, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("accept coauthor invitation: %w", err)
	}
	return &inv, nil
}

// ListByArticle returns all invitations for the article, oldest first.
func (r *CoAuthorRepository) ListByArticle(ctx context.Context, articleID string) ([]models.CoAuthorInvitation, error) {
	query := `SELECT ` + coauthorColumns + ` FROM coauthor_invitations WHERE article_id = $1 ORDER BY created_at`
	list := make([]models.CoAuthorInvitation, 0)
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &list, query, articleID); err != nil {
		return nil, fmt.Errorf("list coauthor invitations: %w", err)
	}
	return list, nil
}
