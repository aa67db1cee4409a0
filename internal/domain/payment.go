package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment attempt statuses.
const (
	AttemptInitiated = "initiated"
	AttemptSucceeded = "succeeded"
	AttemptFailed    = "failed"
)

// PaymentAttempt records one hand-off of an order to a payment gateway.
type PaymentAttempt struct {
	ID            string    `json:"id"`
	OrderID       int       `json:"order_id"`
	OrderKey      string    `json:"order_key"`
	CartKey       string    `json:"cart_key,omitempty"`
	Gateway       Gateway   `json:"gateway"`
	PaymentMethod string    `json:"payment_method"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	ProviderRef   string    `json:"provider_ref,omitempty"`
	RedirectURL   string    `json:"redirect_url,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewPaymentAttempt starts an attempt for order through gateway.
func NewPaymentAttempt(order *Order, cartKey string, gateway Gateway, now time.Time) *PaymentAttempt {
	return &PaymentAttempt{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		OrderKey:      order.OrderKey,
		CartKey:       cartKey,
		Gateway:       gateway,
		PaymentMethod: order.PaymentMethod,
		Amount:        order.Total,
		Currency:      order.Currency,
		Status:        AttemptInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// PaymentResult is what the storefront is told after placing or retrying an
// order. RedirectURL is set for hosted gateways, ConfirmationURL for cash on
// delivery.
type PaymentResult struct {
	OrderID         int     `json:"order_id"`
	OrderKey        string  `json:"order_key"`
	Status          string  `json:"status"`
	Total           float64 `json:"total"`
	Currency        string  `json:"currency"`
	Gateway         Gateway `json:"gateway"`
	RedirectURL     string  `json:"redirect_url,omitempty"`
	ConfirmationURL string  `json:"confirmation_url,omitempty"`
	AttemptID       string  `json:"attempt_id,omitempty"`
}

// Verification states returned to the storefront.
const (
	PaymentStatePaid   = "paid"
	PaymentStateFailed = "payment_failed"
)

// VerifyResult is the outcome of verifying a gateway payment.
type VerifyResult struct {
	OrderID        int    `json:"order_id"`
	State          string `json:"state"`
	TransactionID  string `json:"transaction_id,omitempty"`
	Message        string `json:"message,omitempty"`
	RetryAvailable bool   `json:"retry_available"`
}
