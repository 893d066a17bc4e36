package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/notification"
)

// Ensure HTTPNotificationClient implements notification.Sender
var _ notification.Sender = (*HTTPNotificationClient)(nil)

// HTTPNotificationClient delivers rendered notifications to an HTTP mail API.
type HTTPNotificationClient struct {
	baseURL    string
	path       string
	httpClient *http.Client
	apiKey     string
	logger     *logging.LoggerV2
}

// NewHTTPNotificationClient creates a new HTTP-based notification sender.
// The first configured endpoint is used.
func NewHTTPNotificationClient(cfg config.NotificationConfig, logger *logging.LoggerV2) *HTTPNotificationClient {
	path := "/api/notifications"
	if len(cfg.Sender.Endpoints) > 0 {
		path = cfg.Sender.Endpoints[0]
	}
	return &HTTPNotificationClient{
		baseURL: strings.TrimRight(cfg.Sender.BaseURL, "/"),
		path:    path,
		httpClient: &http.Client{
			Timeout: cfg.Sender.Timeout,
		},
		apiKey: cfg.APIKey,
		logger: logger,
	}
}

// Send posts one message. Any non-2xx answer is an error so the event is retried.
func (c *HTTPNotificationClient) Send(ctx context.Context, msg notification.Message) error {
	c.logger.Debug("Sending notification", logging.Fields{
		"to":    msg.To,
		"topic": msg.Topic,
	})

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(ctx, req, msg.EventID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to send notification", logging.Fields{
			"to":    msg.To,
			"error": err,
		})
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}

	c.logger.Info("Notification delivered", logging.Fields{
		"to":    msg.To,
		"topic": msg.Topic,
	})
	return nil
}

func (c *HTTPNotificationClient) setHeaders(ctx context.Context, req *http.Request, eventID string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	// Lets the mail API drop duplicates on its side too.
	if eventID != "" {
		req.Header.Set("Idempotency-Key", eventID)
	}
	if requestID := middleware.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set(middleware.RequestIDHeader, requestID)
	}
}
