package events

// Topic names are shared with the auth service and the notification dispatcher.
const (
	TopicUserCreated      = "AUTH_NOTIFICATION.USER_CREATED"
	TopicPaymentCompleted = "PAYMENT_NOTIFICATION.PAYMENT_COMPLETED"
	TopicPaymentFailed    = "PAYMENT_NOTIFICATION.PAYMENT_FAILED"
)

// NotificationTopics are consumed by the notification dispatcher.
var NotificationTopics = []string{TopicUserCreated, TopicPaymentCompleted, TopicPaymentFailed}

// UserCreated is published by the auth service after registration.
type UserCreated struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
}

// PaymentCompleted is published once per verified payment. Amount is in major units.
type PaymentCompleted struct {
	Email     string  `json:"email"`
	OrderID   string  `json:"orderId"`
	PaymentID string  `json:"paymentId"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

// PaymentFailed is published when verification fails after the signature was accepted.
type PaymentFailed struct {
	Email           string  `json:"email"`
	OrderID         string  `json:"orderId"`
	PaymentID       string  `json:"paymentId"`
	ProviderOrderID string  `json:"providerOrderId,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
	Currency        string  `json:"currency,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}
