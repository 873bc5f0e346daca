package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/internal/repository"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
)

// tokenBytes gives 256 bits of entropy per action token.
const tokenBytes = 32

const maxIssueAttempts = 3

type actionTokenRepository interface {
	Create(ctx context.Context, token *models.ActionToken) error
	SupersedeLive(ctx context.Context, purpose models.TokenPurpose, articleID, userID string, at time.Time) (int64, error)
	GetByHash(ctx context.Context, hash string) (*models.ActionToken, error)
	Claim(ctx context.Context, hash string, purpose models.TokenPurpose, now time.Time) (*models.ActionToken, error)
	Rearm(ctx context.Context, purpose models.TokenPurpose, articleID string, expiresAt time.Time) (*models.ActionToken, error)
}

// TokenStore issues, validates and claims single-use action tokens for every purpose.
// Issue and Rearm should run inside the caller's transaction so they commit with the transition they belong to.
type TokenStore struct {
	repo    actionTokenRepository
	logger  *zap.Logger
	metrics *MetricsService
	random  io.Reader
	now     func() time.Time
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(repo actionTokenRepository, logger *zap.Logger, metrics *MetricsService) *TokenStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenStore{repo: repo, logger: logger, metrics: metrics, random: rand.Reader, now: time.Now}
}

// HashToken returns the stored form of a token value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Issue supersedes the live token for the subject and purpose, then mints a new one.
// The returned token carries the raw Value; it is never persisted.
func (s *TokenStore) Issue(ctx context.Context, purpose models.TokenPurpose, articleID, userID string, ttl time.Duration) (*models.ActionToken, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("issue token: ttl must be positive")
	}
	now := s.now().UTC()
	if _, err := s.repo.SupersedeLive(ctx, purpose, articleID, userID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to supersede previous token")
	}

	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		value, err := s.generate()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate token")
		}
		token := &models.ActionToken{
			Value:            value,
			TokenHash:        HashToken(value),
			Purpose:          purpose,
			SubjectArticleID: articleID,
			SubjectUserID:    userID,
			IssuedAt:         now,
			ExpiresAt:        now.Add(ttl),
		}
		err = s.repo.Create(ctx, token)
		if err == nil {
			s.logger.Debug("action token issued", zap.String("purpose", string(purpose)), zap.String("article_id", articleID), zap.Time("expires_at", token.ExpiresAt))
			return token, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist token")
		}
		s.logger.Warn("action token collision, regenerating", zap.Int("attempt", attempt))
	}
	return nil, appErrors.Clone(appErrors.ErrInternal, "failed to mint a unique token")
}

// Lookup returns the stored token for value and purpose without judging its usability.
// Unknown values and tokens minted for another purpose both yield ErrTokenNotFound.
func (s *TokenStore) Lookup(ctx context.Context, value string, purpose models.TokenPurpose) (*models.ActionToken, error) {
	if value == "" {
		return nil, appErrors.ErrTokenNotFound
	}
	token, err := s.repo.GetByHash(ctx, HashToken(value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrTokenNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load token")
	}
	if token.Purpose != purpose {
		return nil, appErrors.ErrTokenNotFound
	}
	return token, nil
}

// Check classifies a loaded token. Consumption wins over expiry so a used link reads as used.
func (s *TokenStore) Check(token *models.ActionToken) error {
	switch {
	case token.ConsumedAt != nil:
		return appErrors.ErrTokenAlreadyConsumed
	case token.SupersededAt != nil:
		return appErrors.Clone(appErrors.ErrTokenExpired, "token was replaced by a newer link")
	case token.Expired(s.now()):
		return appErrors.ErrTokenExpired
	default:
		return nil
	}
}

// Validate returns the token when it is usable, leaving it unconsumed.
func (s *TokenStore) Validate(ctx context.Context, value string, purpose models.TokenPurpose) (*models.ActionToken, error) {
	token, err := s.Lookup(ctx, value, purpose)
	if err != nil {
		return nil, err
	}
	if err := s.Check(token); err != nil {
		return nil, err
	}
	return token, nil
}

// Claim consumes the token in a single conditional write. Of two racing callers exactly
// one succeeds; the other observes ErrTokenAlreadyConsumed.
func (s *TokenStore) Claim(ctx context.Context, value string, purpose models.TokenPurpose) (*models.ActionToken, error) {
	if value == "" {
		s.metrics.ObserveTokenClaim(purpose, "not_found")
		return nil, appErrors.ErrTokenNotFound
	}
	token, err := s.repo.Claim(ctx, HashToken(value), purpose, s.now().UTC())
	if err == nil {
		token.Value = value
		s.metrics.ObserveTokenClaim(purpose, "claimed")
		return token, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim token")
	}

	// The conditional write matched nothing; re-read to tell the caller why.
	current, lookupErr := s.Lookup(ctx, value, purpose)
	if lookupErr != nil {
		s.metrics.ObserveTokenClaim(purpose, "not_found")
		return nil, lookupErr
	}
	reason := s.Check(current)
	if reason == nil {
		// Usable on re-read means the row changed between the two statements; report the race as a loss.
		reason = appErrors.ErrTokenAlreadyConsumed
	}
	s.metrics.ObserveTokenClaim(purpose, appErrors.FromError(reason).Code)
	return nil, reason
}

// Rearm makes the article's last consumed token of purpose usable again for ttl.
// It returns ErrTokenNotFound when there is nothing to re-arm.
func (s *TokenStore) Rearm(ctx context.Context, purpose models.TokenPurpose, articleID string, ttl time.Duration) (*models.ActionToken, error) {
	token, err := s.repo.Rearm(ctx, purpose, articleID, s.now().UTC().Add(ttl))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrTokenNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to re-arm token")
	}
	return token, nil
}

func (s *TokenStore) generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
