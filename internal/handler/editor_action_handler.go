package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/journal-api/internal/dto"
	"github.com/noah-isme/journal-api/internal/models"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
	"github.com/noah-isme/journal-api/pkg/response"
)

type editorActions interface {
	Approve(ctx context.Context, articleID string, actor *models.JWTClaims) (*dto.ActionResult, error)
	Reject(ctx context.Context, articleID, reason string, actor *models.JWTClaims) (*dto.ActionResult, error)
	Reopen(ctx context.Context, articleID string, actor *models.JWTClaims) (*dto.ActionResult, error)
	ResendApproval(ctx context.Context, articleID string, actor *models.JWTClaims) (*dto.ActionResult, error)
	VerifyAndPublish(ctx context.Context, articleID string, actor *models.JWTClaims) (*dto.ActionResult, error)
	RejectPayment(ctx context.Context, articleID, reason string, actor *models.JWTClaims) (*dto.ActionResult, error)
	Unpublish(ctx context.Context, articleID string, actor *models.JWTClaims) (*dto.ActionResult, error)
}

// EditorActionHandler exposes the editorial lifecycle actions.
type EditorActionHandler struct {
	actions editorActions
}

// NewEditorActionHandler constructs the handler.
func NewEditorActionHandler(actions editorActions) *EditorActionHandler {
	return &EditorActionHandler{actions: actions}
}

// Approve godoc
// @Summary Approve an article
// @Description Issues a single-use UTR token and emails payment instructions
// @Tags Editorial
// @Produce json
// @Param id path string true "Article ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /articles/{id}/approve [post]
func (h *EditorActionHandler) Approve(c *gin.Context) {
	h.run(c, h.actions.Approve)
}

// Reject godoc
// @Summary Reject an article
// @Tags Editorial
// @Accept json
// @Produce json
// @Param id path string true "Article ID"
// @Param payload body dto.RejectArticleRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /articles/{id}/reject [post]
func (h *EditorActionHandler) Reject(c *gin.Context) {
	var req dto.RejectArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rejection payload"))
		return
	}
	result, err := h.actions.Reject(c.Request.Context(), c.Param("id"), req.RejectionReason, claimsFromContext(c))
	respondAction(c, result, err)
}

// Reopen godoc
// @Summary Return a rejected article to review
// @Tags Editorial
// @Produce json
// @Param id path string true "Article ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /articles/{id}/reopen [post]
func (h *EditorActionHandler) Reopen(c *gin.Context) {
	h.run(c, h.actions.Reopen)
}

// ResendApproval godoc
// @Summary Reissue the payment link
// @Description Supersedes every earlier UTR token for the article
// @Tags Editorial
// @Produce json
// @Param id path string true "Article ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /articles/{id}/resend-approval [post]
func (h *EditorActionHandler) ResendApproval(c *gin.Context) {
	h.run(c, h.actions.ResendApproval)
}

// VerifyAndPublish godoc
// @Summary Verify payment and publish
// @Tags Editorial
// @Produce json
// @Param id path string true "Article ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /articles/{id}/verify-and-publish [post]
func (h *EditorActionHandler) VerifyAndPublish(c *gin.Context) {
	h.run(c, h.actions.VerifyAndPublish)
}

// RejectPayment godoc
// @Summary Reject a submitted payment
// @Tags Editorial
// @Accept json
// @Produce json
// @Param id path string true "Article ID"
// @Param payload body dto.RejectPaymentRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /articles/{id}/reject-payment [post]
func (h *EditorActionHandler) RejectPayment(c *gin.Context) {
	var req dto.RejectPaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment rejection payload"))
			return
		}
	}
	result, err := h.actions.RejectPayment(c.Request.Context(), c.Param("id"), req.Reason, claimsFromContext(c))
	respondAction(c, result, err)
}

// Unpublish godoc
// @Summary Withdraw a published article
// @Tags Editorial
// @Produce json
// @Param id path string true "Article ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /articles/{id}/unpublish [post]
func (h *EditorActionHandler) Unpublish(c *gin.Context) {
	h.run(c, h.actions.Unpublish)
}

func (h *EditorActionHandler) run(c *gin.Context, action func(context.Context, string, *models.JWTClaims) (*dto.ActionResult, error)) {
	result, err := action(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	respondAction(c, result, err)
}

// respondAction answers 200 once the transition committed. A failed notification is
// surfaced in meta without changing the status.
func respondAction(c *gin.Context, result *dto.ActionResult, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Notification.Attempted && !result.Notification.Sent {
		response.OK(c, result, map[string]interface{}{"notification_failed": true})
		return
	}
	response.OK(c, result)
}
