package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/journal-api/internal/dto"
	"github.com/noah-isme/journal-api/internal/models"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
	"github.com/noah-isme/journal-api/pkg/response"
)

type coauthorService interface {
	Invite(ctx context.Context, articleID string, userIDs []string, actor *models.JWTClaims) (*dto.InviteCoAuthorsResult, error)
	Preview(ctx context.Context, value string) (*dto.CoAuthorPreview, error)
	Confirm(ctx context.Context, value string) (*dto.ConfirmCoAuthorResult, error)
	List(ctx context.Context, articleID string, actor *models.JWTClaims) ([]models.CoAuthorInvitation, error)
}

// CoAuthorHandler exposes co-author invitations and their public confirmation page.
type CoAuthorHandler struct {
	coauthors coauthorService
}

// NewCoAuthorHandler constructs the handler.
func NewCoAuthorHandler(coauthors coauthorService) *CoAuthorHandler {
	return &CoAuthorHandler{coauthors: coauthors}
}

// Invite godoc
// @Summary Invite co-authors
// @Tags Co-authors
// @Accept json
// @Produce json
// @Param id path string true "Article ID"
// @Param payload body dto.InviteCoAuthorsRequest true "Users to invite"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /articles/{id}/coauthors [post]
func (h *CoAuthorHandler) Invite(c *gin.Context) {
	var req dto.InviteCoAuthorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid invitation payload"))
		return
	}
	result, err := h.coauthors.Invite(c.Request.Context(), c.Param("id"), req.CoAuthorIDs, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// List godoc
// @Summary List co-author invitations
// @Tags Co-authors
// @Produce json
// @Param id path string true "Article ID"
// @Success 200 {object} response.Envelope
// @Router /articles/{id}/coauthors [get]
func (h *CoAuthorHandler) List(c *gin.Context) {
	list, err := h.coauthors.List(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Preview godoc
// @Summary Inspect a co-author link
// @Tags Co-authors
// @Produce json
// @Param token query string true "Invitation token"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /coauthor/accept [get]
func (h *CoAuthorHandler) Preview(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.ErrTokenNotFound)
		return
	}
	preview, err := h.coauthors.Preview(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, preview)
}

// Confirm godoc
// @Summary Confirm co-authorship
// @Tags Co-authors
// @Accept json
// @Produce json
// @Param payload body dto.ConfirmCoAuthorRequest true "Invitation token"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /coauthor/accept [post]
func (h *CoAuthorHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmCoAuthorRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		response.Error(c, appErrors.ErrTokenNotFound)
		return
	}
	result, err := h.coauthors.Confirm(c.Request.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
