package models

import "time"

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// PaymentPrice is an amount in minor units (paise, cents).
type PaymentPrice struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Payment records one provider intent and its verification outcome.
// OrderID, UserID and Price may be missing on legacy records.
// CompletionPending is set on a SUCCESS payment whose completion event
// was not published yet.
type Payment struct {
	ID                string        `json:"id"`
	OrderID           string        `json:"order,omitempty"`
	UserID            string        `json:"user,omitempty"`
	ProviderOrderID   string        `json:"providerOrderId"`
	ProviderPaymentID string        `json:"providerPaymentId,omitempty"`
	Signature         string        `json:"signature,omitempty"`
	Status            PaymentStatus `json:"status"`
	Price             *PaymentPrice `json:"price,omitempty"`
	CompletionPending bool          `json:"-"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// VerifyPaymentRequest is the body of POST /payments/verify. The provider
// field names are accepted alongside the legacy razorpay ones.
type VerifyPaymentRequest struct {
	ProviderOrderID   string `json:"providerOrderId"`
	ProviderPaymentID string `json:"providerPaymentId"`
	RazorpayOrderID   string `json:"razorpayOrderId"`
	PaymentID         string `json:"paymentId"`
	Signature         string `json:"signature"`
}

// Normalize folds the legacy field names into the provider ones.
func (r *VerifyPaymentRequest) Normalize() {
	if r.ProviderOrderID == "" {
		r.ProviderOrderID = r.RazorpayOrderID
	}
	if r.ProviderPaymentID == "" {
		r.ProviderPaymentID = r.PaymentID
	}
}
