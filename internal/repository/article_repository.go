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
	"github.com/noah-isme/journal-api/pkg/database"
)

const articleColumns = `id, author_id, title, slug, lifecycle_state, rejection_reason, utr_number, payment_note,
	file_url, watermarked_file_url, submitted_at, approved_at, payment_submitted_at, published_at, created_at, updated_at`

// transitionColumns are the only columns a transition may write besides state and reason.
var transitionColumns = map[string]struct{}{
	"utr_number":           {},
	"payment_note":         {},
	"watermarked_file_url": {},
	"submitted_at":         {},
	"approved_at":          {},
	"payment_submitted_at": {},
	"published_at":         {},
}

// Assignment sets one column as part of a transition.
type Assignment struct {
	Column string
	Value  interface{}
}

// TransitionParams describes a conditional state change.
type TransitionParams struct {
	ArticleID       string
	From            []models.LifecycleState
	To              models.LifecycleState
	RejectionReason *string
	Set             []Assignment
	At              time.Time
}

// ArticleRepository persists articles.
type ArticleRepository struct {
	db    *sqlx.DB
	reads database.ReadPolicy
}

// NewArticleRepository constructs the repository.
func NewArticleRepository(db *sqlx.DB, reads database.ReadPolicy) *ArticleRepository {
	return &ArticleRepository{db: db, reads: reads}
}

// Create inserts a draft. A taken slug yields ErrDuplicate.
func (r *ArticleRepository) Create(ctx context.Context, article *models.Article) error {
	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	if article.LifecycleState == "" {
		article.LifecycleState = models.StateDraft
	}
	now := time.Now().UTC()
	if article.CreatedAt.IsZero() {
		article.CreatedAt = now
	}
	article.UpdatedAt = article.CreatedAt

	const query = `INSERT INTO articles (id, author_id, title, slug, lifecycle_state, file_url, created_at, updated_at)
	VALUES (:id, :author_id, :title, :slug, :lifecycle_state, :file_url, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, article); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create article: %w", err)
	}
	return nil
}

// GetByID fetches an article. Outside a transaction, transient failures are retried.
func (r *ArticleRepository) GetByID(ctx context.Context, id string) (*models.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = $1`
	var article models.Article
	get := func(ctx context.Context) error {
		return sqlx.GetContext(ctx, conn(ctx, r.db), &article, query, id)
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
		return nil, fmt.Errorf("get article: %w", err)
	}
	return &article, nil
}

// LockByID reads an article with a row lock. It must run inside a transaction.
func (r *ArticleRepository) LockByID(ctx context.Context, id string) (*models.Article, error) {
	if !inTx(ctx) {
		return nil, fmt.Errorf("lock article: transaction required")
	}
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = $1 FOR UPDATE`
	var article models.Article
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &article, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock article: %w", err)
	}
	return &article, nil
}

// UpdateDraft changes title and slug while the article is still a draft.
// sql.ErrNoRows means the article is missing or no longer a draft.
func (r *ArticleRepository) UpdateDraft(ctx context.Context, id, title, slug string) (*models.Article, error) {
	query := `UPDATE articles SET title = $1, slug = $2, updated_at = $3
	WHERE id = $4 AND lifecycle_state = 'DRAFT' RETURNING ` + articleColumns
	var article models.Article
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &article, query, title, slug, time.Now().UTC(), id)
	switch {
	case err == nil:
		return &article, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, err
	case isUniqueViolation(err):
		return nil, ErrDuplicate
	default:
		return nil, fmt.Errorf("update draft: %w", err)
	}
}

// Transition moves an article to p.To only if its current state is one of p.From.
// The rejection reason is always written so it is non-null exactly when the target is REJECTED.
// sql.ErrNoRows means the article was missing or in another state.
func (r *ArticleRepository) Transition(ctx context.Context, p TransitionParams) (*models.Article, error) {
	if len(p.From) == 0 {
		return nil, fmt.Errorf("transition: no source states")
	}
	if p.At.IsZero() {
		p.At = time.Now().UTC()
	}
	reason := p.RejectionReason
	if p.To != models.StateRejected {
		reason = nil
	}

	args := []interface{}{p.To, reason, p.At}
	sets := []string{"lifecycle_state = $1", "rejection_reason = $2", "updated_at = $3"}
	for _, a := range p.Set {
		if _, ok := transitionColumns[a.Column]; !ok {
			return nil, fmt.Errorf("transition: column %q not writable", a.Column)
		}
		args = append(args, a.Value)
		sets = append(sets, fmt.Sprintf("%s = $%d", a.Column, len(args)))
	}

	args = append(args, p.ArticleID)
	where := fmt.Sprintf("id = $%d", len(args))
	placeholders := make([]string, len(p.From))
	for i, s := range p.From {
		args = append(args, s)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	query := fmt.Sprintf(`UPDATE articles SET %s WHERE %s AND lifecycle_state IN (%s) RETURNING %s`,
		strings.Join(sets, ", "), where, strings.Join(placeholders, ", "), articleColumns)

	var article models.Article
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &article, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("transition article: %w", err)
	}
	return &article, nil
}

// List returns articles matching filter, newest first, with the total count.
func (r *ArticleRepository) List(ctx context.Context, filter models.ArticleFilter) ([]models.Article, int, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, len(filter.States)+3)
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, s := range filter.States {
			args = append(args, s)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("lifecycle_state IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.AuthorID != "" {
		args = append(args, filter.AuthorID)
		conditions = append(conditions, fmt.Sprintf("author_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := normalizePage(filter.Page, filter.PageSize)

	var total int
	err := r.reads.Do(ctx, func(ctx context.Context) error {
		return sqlx.GetContext(ctx, conn(ctx, r.db), &total, `SELECT COUNT(*) FROM articles`+where, args...)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("count articles: %w", err)
	}

	listArgs := append(append([]interface{}{}, args...), size, (page-1)*size)
	query := fmt.Sprintf(`SELECT %s FROM articles%s ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`,
		articleColumns, where, len(args)+1, len(args)+2)

	articles := make([]models.Article, 0)
	err = r.reads.Do(ctx, func(ctx context.Context) error {
		articles = articles[:0]
		return sqlx.SelectContext(ctx, conn(ctx, r.db), &articles, query, listArgs...)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list articles: %w", err)
	}
	return articles, total, nil
}

// ListLegacy streams pre-lifecycle rows for the backfill command.
func (r *ArticleRepository) ListLegacy(ctx context.Context, limit int) ([]LegacyArticleRow, error) {
	const query = `SELECT id, submitted, approved, payment_submitted, payment_done, published, rejection_reason
	FROM articles WHERE lifecycle_state IS NULL ORDER BY created_at LIMIT $1`
	rows := make([]LegacyArticleRow, 0)
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list legacy articles: %w", err)
	}
	return rows, nil
}

// SetDerivedState writes a state computed from legacy flags. Rows already migrated are left alone.
func (r *ArticleRepository) SetDerivedState(ctx context.Context, id string, state models.LifecycleState) (bool, error) {
	const query = `UPDATE articles SET lifecycle_state = $1,
		rejection_reason = CASE WHEN $1 = 'REJECTED' THEN rejection_reason ELSE NULL END,
		updated_at = $2
	WHERE id = $3 AND lifecycle_state IS NULL`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, state, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("set derived state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set derived state: %w", err)
	}
	return n == 1, nil
}

// LegacyArticleRow carries the boolean columns kept for older clients.
type LegacyArticleRow struct {
	ID               string  `db:"id"`
	Submitted        bool    `db:"submitted"`
	Approved         bool    `db:"approved"`
	PaymentSubmitted bool    `db:"payment_submitted"`
	PaymentDone      bool    `db:"payment_done"`
	Published        bool    `db:"published"`
	RejectionReason  *string `db:"rejection_reason"`
}

// Record converts the row for DeriveLifecycleState.
func (l LegacyArticleRow) Record() models.LegacyRecord {
	return models.LegacyRecord{
		Submitted:        l.Submitted,
		Approved:         l.Approved,
		PaymentSubmitted: l.PaymentSubmitted,
		PaymentDone:      l.PaymentDone,
		Published:        l.Published,
		RejectionReason:  l.RejectionReason,
	}
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
