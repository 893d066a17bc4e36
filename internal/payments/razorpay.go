package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
)

// RazorpayProvider opens orders through the Razorpay REST API.
type RazorpayProvider struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
	logger     *logging.LoggerV2
}

func NewRazorpayProvider(cfg config.ProviderConfig, logger *logging.LoggerV2) *RazorpayProvider {
	return &RazorpayProvider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (p *RazorpayProvider) Name() string { return "razorpay" }

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateIntent creates a Razorpay order for the amount.
func (p *RazorpayProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.Currency),
		Receipt:  req.Receipt,
		Notes:    req.Metadata,
	})
	if err != nil {
		return Intent{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return Intent{}, err
	}
	httpReq.SetBasicAuth(p.keyID, p.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")
	if requestID := middleware.RequestIDFromContext(ctx); requestID != "" {
		httpReq.Header.Set(middleware.RequestIDHeader, requestID)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("Razorpay request failed", logging.Fields{"error": err.Error()})
		return Intent{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.logger.Error("Razorpay returned error", logging.Fields{
			"status_code": resp.StatusCode,
			"body":        string(snippet),
		})
		return Intent{}, fmt.Errorf("razorpay: create order returned status %d", resp.StatusCode)
	}

	var order razorpayOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return Intent{}, fmt.Errorf("razorpay: decode order: %w", err)
	}
	if order.ID == "" {
		return Intent{}, fmt.Errorf("razorpay: order response has no id")
	}

	return Intent{
		ID:       order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Status:   order.Status,
	}, nil
}
