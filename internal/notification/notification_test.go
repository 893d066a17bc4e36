package notification

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name        string
		topic       string
		value       string
		wantSubject string
		wantText    string
	}{
		{
			name:        "welcome",
			topic:       events.TopicUserCreated,
			value:       `{"email":"a@example.com","username":"asha"}`,
			wantSubject: "Welcome to our platform!",
			wantText:    "Welcome to our platform, asha!",
		},
		{
			name:        "welcome without username",
			topic:       events.TopicUserCreated,
			value:       `{"email":"a@example.com"}`,
			wantSubject: "Welcome to our platform!",
			wantText:    "Welcome to our platform, User!",
		},
		{
			name:        "payment completed",
			topic:       events.TopicPaymentCompleted,
			value:       `{"email":"a@example.com","orderId":"o1","paymentId":"pp","amount":1000.5,"currency":"INR"}`,
			wantSubject: "Payment Confirmation",
			wantText:    "Your payment of 1000.5 INR has been successfully processed.",
		},
		{
			name:        "payment failed without amount",
			topic:       events.TopicPaymentFailed,
			value:       `{"email":"a@example.com","orderId":"o1"}`,
			wantSubject: "Payment Failed",
			wantText:    "Unfortunately, your payment of $0 could not be processed. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Render(tt.topic, []byte(tt.value))
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if msg.To != "a@example.com" || msg.Subject != tt.wantSubject || msg.Text != tt.wantText {
				t.Errorf("unexpected message: %+v", msg)
			}
			if !strings.HasPrefix(msg.HTML, "<h1>") {
				t.Errorf("expected html body, got %q", msg.HTML)
			}
		})
	}
}

func TestRender_EscapesHTML(t *testing.T) {
	msg, err := Render(events.TopicUserCreated, []byte(`{"email":"a@example.com","username":"<script>x</script>"}`))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Errorf("username was not escaped: %q", msg.HTML)
	}
}

func TestRender_Rejects(t *testing.T) {
	if _, err := Render(events.TopicPaymentCompleted, []byte(`{"orderId":"o1"}`)); !errors.Is(err, ErrMissingEmail) {
		t.Errorf("expected ErrMissingEmail, got %v", err)
	}
	if _, err := Render(events.TopicPaymentCompleted, []byte(`not json`)); err == nil {
		t.Error("expected decode error")
	}
	if _, err := Render("SOMETHING.ELSE", []byte(`{"email":"a@example.com"}`)); err == nil {
		t.Error("expected unknown topic error")
	}
}

func TestDispatcher_DeduplicatesByEventID(t *testing.T) {
	sender := &RecordingSender{}
	d := NewDispatcher(sender, NewMemoryDeduper(), logging.NewNop())
	evt := events.Message{
		Topic:   events.TopicPaymentCompleted,
		EventID: "evt_1",
		Value:   []byte(`{"email":"a@example.com","amount":10,"currency":"INR"}`),
	}

	for i := 0; i < 3; i++ {
		if err := d.Handle(context.Background(), evt); err != nil {
			t.Fatalf("Handle failed: %v", err)
		}
	}
	sent := sender.Sent()
	if len(sent) != 1 || sent[0].EventID != "evt_1" {
		t.Errorf("expected one delivery, got %+v", sent)
	}
}

func TestDispatcher_DropsPayloadWithoutEmail(t *testing.T) {
	sender := &RecordingSender{}
	d := NewDispatcher(sender, nil, logging.NewNop())

	err := d.Handle(context.Background(), events.Message{Topic: events.TopicPaymentFailed, Value: []byte(`{"orderId":"o1"}`)})
	if err != nil {
		t.Errorf("expected payload to be dropped without error, got %v", err)
	}
	if len(sender.Sent()) != 0 {
		t.Error("expected nothing to be sent")
	}
}

func TestDispatcher_SendFailureReleasesClaim(t *testing.T) {
	sender := &RecordingSender{Err: errors.New("smtp down")}
	d := NewDispatcher(sender, NewMemoryDeduper(), logging.NewNop())
	evt := events.Message{Topic: events.TopicUserCreated, EventID: "evt_2", Value: []byte(`{"email":"a@example.com"}`)}

	if err := d.Handle(context.Background(), evt); err == nil {
		t.Fatal("expected send failure to be returned")
	}

	sender.Err = nil
	if err := d.Handle(context.Background(), evt); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if len(sender.Sent()) != 1 {
		t.Errorf("expected redelivered event to be sent, got %d", len(sender.Sent()))
	}
}

func TestRedisDeduper(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Integration test - requires REDIS_ADDR")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	d := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()
	id := "test-" + time.Now().Format("150405.000000")
	defer d.Release(ctx, id)

	first, err := d.Claim(ctx, id)
	if err != nil || !first {
		t.Fatalf("expected first claim to win, got %v %v", first, err)
	}
	second, err := d.Claim(ctx, id)
	if err != nil || second {
		t.Errorf("expected second claim to lose, got %v %v", second, err)
	}
}
