package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/segmentio/kafka-go"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
)

// Header keys set on every published message.
const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderCorrelationID = "correlation_id"
)

// Publisher sends flat JSON payloads to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// KafkaPublisher publishes to Kafka. One writer serves every topic; the topic
// is set per message.
type KafkaPublisher struct {
	writer  *kafka.Writer
	logger  *logging.LoggerV2
	metrics *metrics.EventMetrics
}

// NewKafkaPublisher creates a publisher. The process owns it and must Close it.
func NewKafkaPublisher(cfg config.KafkaConfig, m *metrics.EventMetrics, logger *logging.LoggerV2) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return &KafkaPublisher{
		writer:  writer,
		logger:  logger,
		metrics: m,
	}
}

// Publish writes one message. Headers carry the event id, the topic and the
// request correlation id so consumers can de-duplicate and trace.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   data,
		Headers: buildHeaders(ctx, topic),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.record(topic, "error")
		p.logger.Error("Failed to publish event", logging.Fields{
			"topic": topic,
			"key":   key,
			"error": err.Error(),
		})
		return err
	}

	p.record(topic, "ok")
	p.logger.Info("Event published", logging.Fields{
		"topic":    topic,
		"key":      key,
		"event_id": string(msg.Headers[0].Value),
	})
	return nil
}

func (p *KafkaPublisher) record(topic, result string) {
	if p.metrics != nil {
		p.metrics.Published.WithLabelValues(topic, result).Inc()
	}
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.logger.Info("Closing Kafka publisher")
	return p.writer.Close()
}

func buildHeaders(ctx context.Context, topic string) []kafka.Header {
	headers := []kafka.Header{
		{Key: HeaderEventID, Value: []byte(NewEventID())},
		{Key: HeaderEventType, Value: []byte(topic)},
	}
	if requestID := middleware.RequestIDFromContext(ctx); requestID != "" {
		headers = append(headers, kafka.Header{Key: HeaderCorrelationID, Value: []byte(requestID)})
	}
	return headers
}

// NewEventID returns a sortable, unique event id.
func NewEventID() string {
	return "evt_" + ulid.Make().String()
}

// PublishedMessage is a message captured by MemoryPublisher.
type PublishedMessage struct {
	Topic   string
	Key     string
	Payload []byte
}

// MemoryPublisher keeps messages in memory. It backs local runs without a
// broker and tests; Fail makes every subsequent Publish return the error.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []PublishedMessage
	failWith error
	failOn   map[string]bool
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{failOn: map[string]bool{}}
}

func (m *MemoryPublisher) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil && (len(m.failOn) == 0 || m.failOn[topic]) {
		return m.failWith
	}
	m.messages = append(m.messages, PublishedMessage{Topic: topic, Key: key, Payload: data})
	return nil
}

// Fail makes Publish return err, for the given topics or all topics when none are given.
func (m *MemoryPublisher) Fail(err error, topics ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
	m.failOn = map[string]bool{}
	for _, t := range topics {
		m.failOn[t] = true
	}
}

// Messages returns the captured messages for a topic, or all when topic is "".
func (m *MemoryPublisher) Messages(topic string) []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PublishedMessage
	for _, msg := range m.messages {
		if topic == "" || msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}
