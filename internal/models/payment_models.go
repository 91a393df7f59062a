package models

import "time"

// PaymentStatus enumerates the lifecycle of a payment attempt.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentPaid       PaymentStatus = "PAID"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
	PaymentCancelled  PaymentStatus = "CANCELLED"
)

// IsTerminal reports whether the payment can no longer move, excepting the
// explicit PAID -> REFUNDED admin action.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentPaid, PaymentFailed, PaymentRefunded, PaymentCancelled:
		return true
	}
	return false
}

// Payment represents one payment attempt against an order. At most one
// non-terminal payment may exist per order at a time.
type Payment struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`

	// TxRef is our locally generated unique transaction reference, sent to
	// the gateway as the account reference.
	TxRef string `json:"tx_ref"`
	// CheckoutID and MerchantID are issued by the gateway once it accepts
	// the push request; ReceiptID only on successful completion.
	CheckoutID *string `json:"checkout_id,omitempty"`
	MerchantID *string `json:"merchant_id,omitempty"`
	ReceiptID  *string `json:"receipt_id,omitempty"`

	Amount        float64       `json:"amount"`
	Currency      string        `json:"currency"`
	PhoneNumber   string        `json:"phone_number"`
	Status        PaymentStatus `json:"status"`
	FailureReason *string       `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InitiatePaymentRequest starts an STK push for an order.
type InitiatePaymentRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
}

// PaymentIntent is returned to the customer after a push has been sent.
type PaymentIntent struct {
	PaymentID  string `json:"payment_id"`
	TxRef      string `json:"tx_ref"`
	CheckoutID string `json:"checkout_id"`
	Message    string `json:"message"`
}

// CallbackResult is the normalized outcome of a gateway callback payload.
type CallbackResult struct {
	CheckoutID    string
	Success       bool
	ReceiptID     string
	FailureReason string
}

// ReconciliationResult reports what a callback did to the payment record.
type ReconciliationResult struct {
	Payment *Payment `json:"payment"`
	// Replayed is true when the callback referenced a payment that was
	// already terminal; the stored outcome is returned untouched.
	Replayed bool `json:"replayed"`
}

// PaymentStatusResponse combines the local record with the gateway's view.
type PaymentStatusResponse struct {
	Payment       *Payment `json:"payment"`
	GatewayStatus string   `json:"gateway_status,omitempty"`
}
