package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-api/internal/dto"
	"github.com/noah-isme/journal-api/internal/middleware"
	"github.com/noah-isme/journal-api/internal/models"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
)

type coauthorServiceMock struct {
	invited    []string
	invite     *dto.InviteCoAuthorsResult
	preview    *dto.CoAuthorPreview
	confirm    *dto.ConfirmCoAuthorResult
	confirmErr error
	confirmed  string
}

func (m *coauthorServiceMock) Invite(ctx context.Context, articleID string, userIDs []string, actor *models.JWTClaims) (*dto.InviteCoAuthorsResult, error) {
	m.invited = userIDs
	return m.invite, nil
}

func (m *coauthorServiceMock) Preview(ctx context.Context, value string) (*dto.CoAuthorPreview, error) {
	return m.preview, nil
}

func (m *coauthorServiceMock) Confirm(ctx context.Context, value string) (*dto.ConfirmCoAuthorResult, error) {
	m.confirmed = value
	return m.confirm, m.confirmErr
}

func (m *coauthorServiceMock) List(ctx context.Context, articleID string, actor *models.JWTClaims) ([]models.CoAuthorInvitation, error) {
	return []models.CoAuthorInvitation{{ID: "i1", ArticleID: articleID}}, nil
}

func TestCoAuthorHandlerInvite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &coauthorServiceMock{invite: &dto.InviteCoAuthorsResult{ArticleID: "a1"}}
	handler := NewCoAuthorHandler(mock)

	c, w := newJSONContext(http.MethodPost, "/articles/a1/coauthors", []byte(`{"coauthor_ids":["u2","u3"]}`))
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "author-1", Role: models.RoleAuthor})

	handler.Invite(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"u2", "u3"}, mock.invited)
}

func TestCoAuthorHandlerPreview(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCoAuthorHandler(&coauthorServiceMock{preview: &dto.CoAuthorPreview{Valid: true, CoAuthorName: "Cora One"}})

	c, w := newJSONContext(http.MethodGet, "/coauthor/accept?token=xyz", nil)
	handler.Preview(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"coauthor_name":"Cora One"`)

	c, w = newJSONContext(http.MethodGet, "/coauthor/accept", nil)
	handler.Preview(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCoAuthorHandlerConfirm(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &coauthorServiceMock{confirm: &dto.ConfirmCoAuthorResult{Article: dto.ArticleSummary{ID: "a1"}}}
	handler := NewCoAuthorHandler(mock)

	c, w := newJSONContext(http.MethodPost, "/coauthor/accept", []byte(`{"token":" xyz "}`))
	handler.Confirm(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "xyz", mock.confirmed)

	mock.confirmErr = appErrors.WithStatus(appErrors.ErrTokenAlreadyConsumed, http.StatusBadRequest)
	c, w = newJSONContext(http.MethodPost, "/coauthor/accept", []byte(`{"token":"xyz"}`))
	handler.Confirm(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "TOKEN_ALREADY_CONSUMED", decodeEnvelope(t, w).Error.Code)

	c, w = newJSONContext(http.MethodPost, "/coauthor/accept", []byte(`{}`))
	handler.Confirm(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
