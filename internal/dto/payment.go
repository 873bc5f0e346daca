package dto

import "time"

// Token check outcomes returned by the public payment page.
const (
	TokenStatusValid   = "valid"
	TokenStatusInvalid = "invalid"
	TokenStatusExpired = "expired"
	TokenStatusUsed    = "used"
)

// SubmitUTRRequest is posted by the token bearer after paying.
type SubmitUTRRequest struct {
	Token     string `json:"token" validate:"required"`
	UTRNumber string `json:"utr_number"`
}

// ArticleSummary is the public subset of an article shown to token bearers.
type ArticleSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Slug   string `json:"slug"`
	State  string `json:"lifecycle_state"`
	Author string `json:"author,omitempty"`
}

// PaymentInstructions are shown alongside a valid UTR token.
type PaymentInstructions struct {
	Fee           string `json:"fee"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	IFSC          string `json:"ifsc"`
	BankName      string `json:"bank_name"`
}

// PaymentTokenView answers GET /payment/validate-token.
type PaymentTokenView struct {
	Status       string               `json:"status"`
	Article      *ArticleSummary      `json:"article,omitempty"`
	ExpiresAt    *time.Time           `json:"expires_at,omitempty"`
	Instructions *PaymentInstructions `json:"instructions,omitempty"`
}

// SubmitUTRResult answers POST /payment/submit-utr.
type SubmitUTRResult struct {
	Article      ArticleSummary      `json:"article"`
	Notification NotificationOutcome `json:"notification"`
}
