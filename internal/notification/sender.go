package notification

import (
	"context"
	"sync"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
)

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *logging.LoggerV2
}

func NewLogSender(logger *logging.LoggerV2) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("Notification", logging.Fields{
		"to":       msg.To,
		"subject":  msg.Subject,
		"text":     msg.Text,
		"topic":    msg.Topic,
		"event_id": msg.EventID,
	})
	return nil
}

// RecordingSender keeps every message it is given.
type RecordingSender struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func (s *RecordingSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.sent = append(s.sent, msg)
	return nil
}

// Sent returns a copy of the delivered messages.
func (s *RecordingSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
