package clients

import (
	"context"
	"errors"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	apperrors "github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

var cartEnvelopes = []envelope{
	{"cart"},
	{"data", "cart"},
	{"data"},
	{},
}

// HTTPCartClient reads the caller's cart from the cart service.
type HTTPCartClient struct {
	api    *upstream
	logger *logging.LoggerV2
}

func NewHTTPCartClient(cfg config.ServiceConfig, logger *logging.LoggerV2) *HTTPCartClient {
	return &HTTPCartClient{
		api:    newUpstream("cart-service", cfg, logger),
		logger: logger,
	}
}

// FetchCart returns the caller's cart. A cart the service does not know
// about is returned empty.
func (c *HTTPCartClient) FetchCart(ctx context.Context, token string) (*models.Cart, error) {
	body, err := c.api.getJSON(ctx, "", token)
	if errors.Is(err, errNotFound) {
		return &models.Cart{}, nil
	}
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable("cart-service", err)
	}

	payload, ok := unwrap(body, cartEnvelopes, func(m map[string]interface{}) bool {
		_, isList := m["items"].([]interface{})
		return isList
	})
	if !ok {
		c.logger.Warn("Cart response has no recognised envelope", logging.Fields{"keys": len(body)})
		return &models.Cart{}, nil
	}

	raw := payload["items"].([]interface{})
	cart := &models.Cart{Items: make([]models.CartItem, 0, len(raw))}
	for _, entry := range raw {
		line, ok := entry.(map[string]interface{})
		if !ok {
			return nil, apperrors.NewValidationError("items", "cart line is not an object")
		}
		productID := stringField(line, "productId", "product", "productID", "_id")
		if productID == "" {
			return nil, apperrors.NewValidationError("items", "cart line has no product id")
		}
		qty, ok := intField(line, "quantity", "qty")
		if !ok || qty <= 0 {
			return nil, apperrors.NewValidationError("items", "cart line quantity must be positive")
		}
		cart.Items = append(cart.Items, models.CartItem{ProductID: productID, Quantity: qty})
	}
	return cart, nil
}
