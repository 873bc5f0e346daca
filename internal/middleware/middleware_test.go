package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/internal/service"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (v stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func serve(router *gin.Engine, method, path, auth string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(JWT(stubValidator{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleAuthor}}))
	router.GET("/me", func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.UserID)
	})

	rec := serve(router, http.MethodGet, "/me", "Bearer good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Body.String())

	for _, header := range []string{"", "Basic good", "Bearer ", "Bearer bad"} {
		rec := serve(router, http.MethodGet, "/me", header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Equal(t, "NOT_AUTHENTICATED", errorCode(t, rec), header)
	}
}

func TestRequireEditor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for role, want := range map[models.UserRole]int{
		models.RoleEditor: http.StatusNoContent,
		models.RoleAdmin:  http.StatusNoContent,
		models.RoleAuthor: http.StatusForbidden,
	} {
		router := gin.New()
		router.Use(JWT(stubValidator{claims: &models.JWTClaims{UserID: "u1", Role: role}}), RequireEditor())
		router.POST("/approve", func(c *gin.Context) { c.Status(http.StatusNoContent) })

		assert.Equal(t, want, serve(router, http.MethodPost, "/approve", "Bearer good").Code, role)
	}

	router := gin.New()
	router.Use(RequireEditor())
	router.POST("/approve", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodPost, "/approve", "").Code)
}

type memAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
	err     error
}

func (m *memAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *log)
	return nil
}

func TestAuditRecordsSuccessOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &memAudit{}
	router := gin.New()
	router.Use(JWT(stubValidator{claims: &models.JWTClaims{UserID: "editor-1", Role: models.RoleEditor}}))
	router.POST("/articles/:id/approve", Audit(repo, nil, models.AuditActionArticleApprove, "article"), func(c *gin.Context) {
		if c.Param("id") == "bad" {
			c.Status(http.StatusConflict)
			return
		}
		c.Status(http.StatusOK)
	})

	serve(router, http.MethodPost, "/articles/a1/approve", "Bearer good")
	serve(router, http.MethodPost, "/articles/bad/approve", "Bearer good")

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	assert.Equal(t, models.AuditActionArticleApprove, entry.Action)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "a1", *entry.ResourceID)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "editor-1", *entry.UserID)
	assert.Contains(t, string(entry.NewValues), `"status":200`)
}

func TestAuditFailureIsLogged(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.WarnLevel)
	router := gin.New()
	router.POST("/x", Audit(&memAudit{err: errors.New("db down")}, zap.New(core), "X", "x"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/x", "").Code)
	assert.Equal(t, 1, logs.FilterMessage("failed to write audit log").Len())
}

type fixedWindow struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (f *fixedWindow) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[key]++
	return f.counts[key], 1500 * time.Millisecond, nil
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	counter := &fixedWindow{}
	router := gin.New()
	router.GET("/payment/validate-token", RateLimit(counter, RateLimitOptions{Scope: "public", Limit: 2, Window: time.Minute}, metrics, nil), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/payment/validate-token", "").Code)
	rec := serve(router, http.MethodGet, "/payment/validate-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve(router, http.MethodGet, "/payment/validate-token", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", errorCode(t, rec))
	limited, err := testutil.GatherAndCount(metrics.Registry(), "rate_limited_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, limited)
}

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", RateLimit(&fixedWindow{err: errors.New("redis: connection refused")}, RateLimitOptions{Limit: 1}, nil, nil), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/", "").Code)
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/articles/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, http.MethodGet, "/health", "")
	serve(router, http.MethodGet, "/articles/a1", "")
	serve(router, http.MethodGet, "/articles/a2", "")
	serve(router, http.MethodGet, "/nowhere", "")

	count, err := testutil.GatherAndCount(metrics.Registry(), "http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per route template plus the unmatched bucket, probes skipped")
}
