package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/journal-api/internal/dto"
	"github.com/noah-isme/journal-api/internal/service"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
	"github.com/noah-isme/journal-api/pkg/response"
)

type paymentService interface {
	ValidatePaymentToken(ctx context.Context, value string) (*dto.PaymentTokenView, error)
	SubmitUTR(ctx context.Context, req dto.SubmitUTRRequest) (*dto.SubmitUTRResult, error)
}

// PaymentHandler serves the public payment page endpoints.
type PaymentHandler struct {
	payments paymentService
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// ValidateToken godoc
// @Summary Check a payment link
// @Description Does not consume the token. Errors carry details.status (invalid, expired or used).
// @Tags Payment
// @Produce json
// @Param token query string true "UTR token"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /payment/validate-token [get]
func (h *PaymentHandler) ValidateToken(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.WithDetails(appErrors.ErrTokenNotFound, map[string]interface{}{"status": dto.TokenStatusInvalid}))
		return
	}
	view, err := h.payments.ValidatePaymentToken(c.Request.Context(), token)
	if err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Code != appErrors.ErrInternal.Code {
			appErr = appErrors.WithDetails(appErr, map[string]interface{}{"status": service.TokenStatus(err)})
		}
		response.Error(c, appErr)
		return
	}
	response.OK(c, view)
}

// SubmitUTR godoc
// @Summary Submit the payment reference
// @Tags Payment
// @Accept json
// @Produce json
// @Param payload body dto.SubmitUTRRequest true "Token and UTR"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /payment/submit-utr [post]
func (h *PaymentHandler) SubmitUTR(c *gin.Context) {
	var req dto.SubmitUTRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}
	result, err := h.payments.SubmitUTR(c.Request.Context(), req)
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
