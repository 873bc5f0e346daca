package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/journal-api/internal/dto"
	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/pkg/response"
)

type notificationService interface {
	List(ctx context.Context, query dto.NotificationQuery, actor *models.JWTClaims) ([]models.NotificationLog, error)
	Resend(ctx context.Context, id string, actor *models.JWTClaims) (dto.NotificationOutcome, error)
}

// NotificationHandler lets editors inspect and resend workflow emails.
type NotificationHandler struct {
	notifications notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(notifications notificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List godoc
// @Summary Notification log
// @Tags Notifications
// @Produce json
// @Param article_id query string false "Article ID"
// @Param status query string false "PENDING, SENT or FAILED"
// @Param limit query int false "Max rows"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	query := dto.NotificationQuery{
		ArticleID: c.Query("article_id"),
		Status:    models.NotificationStatus(strings.ToUpper(c.Query("status"))),
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		query.Limit = limit
	}
	list, err := h.notifications.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Resend godoc
// @Summary Resend a failed notification
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification log ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /notifications/{id}/resend [post]
func (h *NotificationHandler) Resend(c *gin.Context) {
	outcome, err := h.notifications.Resend(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, outcome)
}
