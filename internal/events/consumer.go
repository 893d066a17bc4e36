package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
)

// Message is a consumed event.
type Message struct {
	Topic   string
	Key     string
	EventID string
	Value   []byte
}

// Handler processes one message. A message whose handler fails is retried
// in place and its offset is not committed until the handler succeeds.
type Handler func(ctx context.Context, msg Message) error

const (
	defaultRetryBackoff    = 200 * time.Millisecond
	defaultMaxRetryBackoff = 30 * time.Second
)

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads a set of topics within a consumer group.
type KafkaConsumer struct {
	reader     messageReader
	handler    Handler
	logger     *logging.LoggerV2
	metrics    *metrics.EventMetrics
	backoff    time.Duration
	maxBackoff time.Duration
	stopCh     chan struct{}
}

// NewKafkaConsumer creates a consumer for the topics.
func NewKafkaConsumer(cfg config.KafkaConfig, topics []string, handler Handler, m *metrics.EventMetrics, logger *logging.LoggerV2) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.ConsumerGroup,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
	})

	return newConsumer(reader, handler, m, logger)
}

func newConsumer(reader messageReader, handler Handler, m *metrics.EventMetrics, logger *logging.LoggerV2) *KafkaConsumer {
	return &KafkaConsumer{
		reader:     reader,
		handler:    handler,
		logger:     logger,
		metrics:    m,
		backoff:    defaultRetryBackoff,
		maxBackoff: defaultMaxRetryBackoff,
		stopCh:     make(chan struct{}),
	}
}

// Start consumes until ctx is cancelled or Stop is called. Offsets are
// committed only after the handler succeeds.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting Kafka consumer")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			c.logger.Info("Kafka consumer stopped")
			return nil
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-c.stopCh:
				return nil
			default:
			}
			c.logger.Error("Failed to read message", logging.Fields{"error": err.Error()})
			continue
		}

		event := toMessage(msg)
		if !c.handle(ctx, msg, event) {
			// Shutting down mid-retry: the uncommitted message is redelivered
			// to whichever member owns the partition next.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Info("Kafka consumer stopped")
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit offset", logging.Fields{
				"topic":  event.Topic,
				"offset": msg.Offset,
				"error":  err.Error(),
			})
		}
	}
}

// handle runs the handler until it succeeds, backing off between attempts.
// It reports false when the consumer is stopped before that happens.
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message, event Message) bool {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, event)
		if err == nil {
			c.record(event.Topic, "ok")
			return true
		}

		c.record(event.Topic, "error")
		c.logger.Error("Failed to handle message", logging.Fields{
			"topic":    event.Topic,
			"event_id": event.EventID,
			"offset":   msg.Offset,
			"attempt":  attempt,
			"retry_in": wait.String(),
			"error":    err.Error(),
		})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-c.stopCh:
			timer.Stop()
			return false
		case <-timer.C:
		}

		wait *= 2
		if wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}

// Stop stops the consumer and closes the reader.
func (c *KafkaConsumer) Stop() error {
	close(c.stopCh)
	return c.reader.Close()
}

func (c *KafkaConsumer) record(topic, result string) {
	if c.metrics != nil {
		c.metrics.Consumed.WithLabelValues(topic, result).Inc()
	}
}

func toMessage(msg kafka.Message) Message {
	out := Message{Topic: msg.Topic, Key: string(msg.Key), Value: msg.Value}
	for _, h := range msg.Headers {
		if h.Key == HeaderEventID {
			out.EventID = string(h.Value)
		}
	}
	if out.EventID == "" {
		// Producers outside this repo may not set the header.
		out.EventID = fmt.Sprintf("%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
	}
	return out
}
