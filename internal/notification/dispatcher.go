// Package notification turns checkout events into outbound customer messages.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"html"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
)

// Message is a rendered notification ready for delivery.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
	Topic   string `json:"topic"`
	EventID string `json:"eventId,omitempty"`
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher renders consumed events and hands them to a Sender, skipping
// events it has already delivered.
type Dispatcher struct {
	sender  Sender
	deduper Deduper
	logger  *logging.LoggerV2
}

// NewDispatcher creates a dispatcher. deduper may be nil to deliver every event.
func NewDispatcher(sender Sender, deduper Deduper, logger *logging.LoggerV2) *Dispatcher {
	return &Dispatcher{sender: sender, deduper: deduper, logger: logger.Named("notification-dispatcher")}
}

// Handle processes one event; it satisfies events.Handler. Malformed payloads
// and payloads without an email are dropped. A delivery failure releases the
// de-duplication claim and is returned so the event is redelivered.
func (d *Dispatcher) Handle(ctx context.Context, evt events.Message) error {
	msg, err := Render(evt.Topic, evt.Value)
	if err != nil {
		d.logger.Error("Dropping undeliverable event", logging.Fields{
			"topic":    evt.Topic,
			"event_id": evt.EventID,
			"error":    err,
		})
		return nil
	}
	msg.EventID = evt.EventID

	if d.deduper != nil && evt.EventID != "" {
		claimed, err := d.deduper.Claim(ctx, evt.EventID)
		if err != nil {
			return fmt.Errorf("claim event %s: %w", evt.EventID, err)
		}
		if !claimed {
			d.logger.Info("Skipping duplicate event", logging.Fields{"topic": evt.Topic, "event_id": evt.EventID})
			return nil
		}
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		d.logger.Error("Failed to send notification", logging.Fields{
			"topic":    evt.Topic,
			"event_id": evt.EventID,
			"error":    err,
		})
		if d.deduper != nil && evt.EventID != "" {
			if relErr := d.deduper.Release(ctx, evt.EventID); relErr != nil {
				d.logger.Warn("Failed to release event claim", logging.Fields{"event_id": evt.EventID, "error": relErr})
			}
		}
		return err
	}

	d.logger.Info("Notification sent", logging.Fields{"topic": evt.Topic, "event_id": evt.EventID})
	return nil
}

// ErrMissingEmail is returned by Render for payloads without a recipient.
var ErrMissingEmail = fmt.Errorf("notification: payload has no email")

type payload struct {
	Email    string      `json:"email"`
	Username string      `json:"username"`
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
	OrderID  string      `json:"orderId"`
}

// Render builds the message for a topic's payload.
func Render(topic string, value []byte) (Message, error) {
	var p payload
	if err := json.Unmarshal(value, &p); err != nil {
		return Message{}, fmt.Errorf("notification: decode %s payload: %w", topic, err)
	}
	if p.Email == "" {
		return Message{}, ErrMissingEmail
	}

	msg := Message{To: p.Email, Topic: topic}
	switch topic {
	case events.TopicUserCreated:
		name := nameOr(p.Username, "User")
		msg.Subject = "Welcome to our platform!"
		msg.Text = fmt.Sprintf("Welcome to our platform, %s!", name)
		msg.HTML = page("Welcome to our Services", name,
			"Thank you for signing up. We're excited to have you on board.")
	case events.TopicPaymentCompleted:
		amount := formatAmount(p.Amount, p.Currency)
		msg.Subject = "Payment Confirmation"
		msg.Text = fmt.Sprintf("Your payment of %s has been successfully processed.", amount)
		msg.HTML = page("Payment Successful", nameOr(p.Username, "Customer"),
			fmt.Sprintf("Your payment of %s has been successfully processed. Thank you for your purchase!", amount))
	case events.TopicPaymentFailed:
		amount := formatAmount(p.Amount, p.Currency)
		msg.Subject = "Payment Failed"
		msg.Text = fmt.Sprintf("Unfortunately, your payment of %s could not be processed. Please try again.", amount)
		msg.HTML = page("Payment Failed", nameOr(p.Username, "Customer"),
			fmt.Sprintf("Unfortunately, your payment of %s could not be processed. Please try again or contact support for assistance.", amount))
	default:
		return Message{}, fmt.Errorf("notification: unknown topic %q", topic)
	}
	return msg, nil
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func formatAmount(amount json.Number, currency string) string {
	a := amount.String()
	if a == "" {
		a = "0"
	}
	if currency == "" {
		return "$" + a
	}
	return a + " " + currency
}

func page(heading, name, body string) string {
	return fmt.Sprintf("<h1>%s</h1><p>Hi %s,</p><p>%s</p><p>Best regards,<br/>The Team</p>",
		html.EscapeString(heading), html.EscapeString(name), html.EscapeString(body))
}
