package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-api/internal/dto"
	"github.com/noah-isme/journal-api/internal/middleware"
	"github.com/noah-isme/journal-api/internal/models"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
	"github.com/noah-isme/journal-api/pkg/response"
)

func newJSONContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type editorActionsMock struct {
	calls  []string
	reason string
	result *dto.ActionResult
	err    error
}

func (m *editorActionsMock) record(name string) (*dto.ActionResult, error) {
	m.calls = append(m.calls, name)
	return m.result, m.err
}

func (m *editorActionsMock) Approve(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ActionResult, error) {
	return m.record("approve:" + id)
}

func (m *editorActionsMock) Reject(ctx context.Context, id, reason string, actor *models.JWTClaims) (*dto.ActionResult, error) {
	m.reason = reason
	return m.record("reject:" + id)
}

func (m *editorActionsMock) Reopen(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ActionResult, error) {
	return m.record("reopen:" + id)
}

func (m *editorActionsMock) ResendApproval(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ActionResult, error) {
	return m.record("resend:" + id)
}

func (m *editorActionsMock) VerifyAndPublish(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ActionResult, error) {
	return m.record("publish:" + id)
}

func (m *editorActionsMock) RejectPayment(ctx context.Context, id, reason string, actor *models.JWTClaims) (*dto.ActionResult, error) {
	m.reason = reason
	return m.record("reject-payment:" + id)
}

func (m *editorActionsMock) Unpublish(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ActionResult, error) {
	return m.record("unpublish:" + id)
}

func approvedResult() *dto.ActionResult {
	expires := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	return &dto.ActionResult{
		Article:      dto.NewArticleView(&models.Article{ID: "a1", LifecycleState: models.StateApproved}),
		ExpiresAt:    &expires,
		Notification: dto.NotificationOutcome{Attempted: true, Sent: true},
	}
}

func TestEditorActionHandlerApprove(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &editorActionsMock{result: approvedResult()}
	handler := NewEditorActionHandler(mock)

	c, w := newJSONContext(http.MethodPost, "/articles/a1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "editor-1", Role: models.RoleEditor})

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"approve:a1"}, mock.calls)

	env := decodeEnvelope(t, w)
	var result struct {
		Article   map[string]interface{} `json:"article"`
		ExpiresAt string                 `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "APPROVED", result.Article["lifecycle_state"])
	assert.Equal(t, "2026-03-03T09:00:00Z", result.ExpiresAt)
	assert.Nil(t, env.Meta)
}

func TestEditorActionHandlerFlagsFailedNotification(t *testing.T) {
	gin.SetMode(gin.TestMode)
	result := approvedResult()
	result.Notification = dto.NotificationOutcome{Attempted: true, Error: "smtp down"}
	handler := NewEditorActionHandler(&editorActionsMock{result: result})

	c, w := newJSONContext(http.MethodPost, "/articles/a1/verify-and-publish", nil)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	handler.VerifyAndPublish(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeEnvelope(t, w).Meta["notification_failed"])
}

func TestEditorActionHandlerMapsErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string]struct {
		err    error
		status int
	}{
		"invalid transition": {appErrors.ErrInvalidTransition, http.StatusConflict},
		"not found":          {appErrors.ErrNotFound, http.StatusNotFound},
		"forbidden":          {appErrors.ErrForbidden, http.StatusForbidden},
		"reason too short":   {appErrors.ErrReasonTooShort, http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			handler := NewEditorActionHandler(&editorActionsMock{err: tc.err})
			c, w := newJSONContext(http.MethodPost, "/articles/a1/reject", []byte(`{"rejection_reason":"short"}`))
			c.Params = gin.Params{{Key: "id", Value: "a1"}}

			handler.Reject(c)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.err.(*appErrors.Error).Code, decodeEnvelope(t, w).Error.Code)
		})
	}
}

func TestEditorActionHandlerRejectBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &editorActionsMock{result: approvedResult()}
	handler := NewEditorActionHandler(mock)

	c, w := newJSONContext(http.MethodPost, "/articles/a1/reject", []byte(`{"rejection_reason":"Needs more citations"}`))
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	handler.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Needs more citations", mock.reason)

	c, w = newJSONContext(http.MethodPost, "/articles/a1/reject", []byte(`{not json`))
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	handler.Reject(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, mock.calls, 1)
}

func TestEditorActionHandlerRejectPaymentOptionalBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &editorActionsMock{result: approvedResult()}
	handler := NewEditorActionHandler(mock)

	c, w := newJSONContext(http.MethodPost, "/articles/a1/reject-payment", nil)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	handler.RejectPayment(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mock.reason)

	c, w = newJSONContext(http.MethodPost, "/articles/a1/reject-payment", []byte(`{"reason":"Amount short by 500"}`))
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	handler.RejectPayment(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Amount short by 500", mock.reason)
}

func TestEditorRoutesRequireEditorRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &editorActionsMock{result: approvedResult()}
	handler := NewEditorActionHandler(mock)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "author-1", Role: models.RoleAuthor})
	})
	router.POST("/articles/:id/unpublish", middleware.RequireEditor(), handler.Unpublish)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/articles/a1/unpublish", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, mock.calls)

	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "NOT_AUTHORIZED", env.Error.Code)
}
