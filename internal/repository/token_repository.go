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
	"github.com/noah-isme/journal-api/pkg/database"
)

const tokenColumns = `id, token_hash, purpose, subject_article_id, subject_user_id, issued_at, expires_at, consumed_at, superseded_at`

// TokenRepository persists action tokens by hash.
type TokenRepository struct {
	db    *sqlx.DB
	reads database.ReadPolicy
}

// NewTokenRepository constructs the repository.
func NewTokenRepository(db *sqlx.DB, reads database.ReadPolicy) *TokenRepository {
	return &TokenRepository{db: db, reads: reads}
}

// Create inserts a token. A hash collision yields ErrDuplicate.
// Inside a transaction the insert runs under a savepoint so a collision leaves the transaction usable.
func (r *TokenRepository) Create(ctx context.Context, token *models.ActionToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	const query = `INSERT INTO action_tokens (id, token_hash, purpose, subject_article_id, subject_user_id, issued_at, expires_at)
	VALUES (:id, :token_hash, :purpose, :subject_article_id, :subject_user_id, :issued_at, :expires_at)`

	q := conn(ctx, r.db)
	tx := inTx(ctx)
	if tx {
		if _, err := q.ExecContext(ctx, `SAVEPOINT create_action_token`); err != nil {
			return fmt.Errorf("create action token: %w", err)
		}
	}
	if _, err := sqlx.NamedExecContext(ctx, q, query, token); err != nil {
		if tx {
			if _, rbErr := q.ExecContext(ctx, `ROLLBACK TO SAVEPOINT create_action_token`); rbErr != nil {
				return fmt.Errorf("create action token: %w", rbErr)
			}
		}
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create action token: %w", err)
	}
	if tx {
		if _, err := q.ExecContext(ctx, `RELEASE SAVEPOINT create_action_token`); err != nil {
			return fmt.Errorf("create action token: %w", err)
		}
	}
	return nil
}

// SupersedeLive retires every unconsumed, unsuperseded token for the subject and purpose.
func (r *TokenRepository) SupersedeLive(ctx context.Context, purpose models.TokenPurpose, articleID, userID string, at time.Time) (int64, error) {
	const query = `UPDATE action_tokens SET superseded_at = $1
	WHERE purpose = $2 AND subject_article_id = $3 AND subject_user_id = $4
	  AND consumed_at IS NULL AND superseded_at IS NULL`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, at, purpose, articleID, userID)
	if err != nil {
		return 0, fmt.Errorf("supersede action tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("supersede action tokens: %w", err)
	}
	return n, nil
}

// GetByHash loads a token regardless of its state.
func (r *TokenRepository) GetByHash(ctx context.Context, hash string) (*models.ActionToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM action_tokens WHERE token_hash = $1`
	var token models.ActionToken
	get := func(ctx context.Context) error {
		return sqlx.GetContext(ctx, conn(ctx, r.db), &token, query, hash)
	}
	var err error
	if inTx(ctx) {
		err = get(ctx)
	} else {
		err = r.reads.Do(ctx, get)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get action token: %w", err)
	}
	return &token, nil
}

// Claim consumes a usable token in one conditional write. sql.ErrNoRows means the
// token is missing, of another purpose, already consumed, superseded or expired.
func (r *TokenRepository) Claim(ctx context.Context, hash string, purpose models.TokenPurpose, now time.Time) (*models.ActionToken, error) {
	query := `UPDATE action_tokens SET consumed_at = $1
	WHERE token_hash = $2 AND purpose = $3
	  AND consumed_at IS NULL AND superseded_at IS NULL AND expires_at > $1
	RETURNING ` + tokenColumns
	var token models.ActionToken
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &token, query, now, hash, purpose); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("claim action token: %w", err)
	}
	return &token, nil
}

// Rearm makes the most recent consumed, unsuperseded token for the article usable again until expiresAt.
func (r *TokenRepository) Rearm(ctx context.Context, purpose models.TokenPurpose, articleID string, expiresAt time.Time) (*models.ActionToken, error) {
	query := `UPDATE action_tokens SET consumed_at = NULL, expires_at = $1
	WHERE id = (
		SELECT id FROM action_tokens
		WHERE purpose = $2 AND subject_article_id = $3 AND superseded_at IS NULL AND consumed_at IS NOT NULL
		ORDER BY issued_at DESC LIMIT 1
	)
	RETURNING ` + tokenColumns
	var token models.ActionToken
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &token, query, expiresAt, purpose, articleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("rearm action token: %w", err)
	}
	return &token, nil
}
