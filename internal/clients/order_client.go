package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	apperrors "github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

var orderEnvelopes = []envelope{
	{"order"},
	{"data", "order"},
	{"data"},
	{},
}

// HTTPOrderClient reads orders from the order service using the caller's credential.
type HTTPOrderClient struct {
	api    *upstream
	logger *logging.LoggerV2
}

func NewHTTPOrderClient(cfg config.ServiceConfig, logger *logging.LoggerV2) *HTTPOrderClient {
	return &HTTPOrderClient{
		api:    newUpstream("order-service", cfg, logger),
		logger: logger,
	}
}

// FetchOrder returns the order as seen by the caller. Authorisation failures
// are reported as such; every other failure is UpstreamUnavailable.
func (c *HTTPOrderClient) FetchOrder(ctx context.Context, orderID, token string) (*models.Order, error) {
	body, err := c.api.getJSON(ctx, orderID, token)
	if errors.Is(err, errNotFound) {
		return nil, apperrors.NewNotFound("order")
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized:
			return nil, apperrors.NewUnauthorized("order service rejected the credential")
		case http.StatusForbidden:
			return nil, apperrors.NewForbidden("order belongs to another user")
		}
	}
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable("order-service", err)
	}

	doc, ok := unwrap(body, orderEnvelopes, func(m map[string]interface{}) bool {
		_, hasTotal := m["totalPrice"]
		return hasTotal
	})
	if !ok {
		return nil, apperrors.NewUpstreamUnavailable("order-service", errors.New("order response has no totalPrice"))
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, apperrors.NewUpstreamUnavailable("order-service", err)
	}
	if order.ID == "" {
		order.ID = orderID
	}
	return &order, nil
}
