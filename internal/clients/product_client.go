package clients

import (
	"context"
	"errors"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	apperrors "github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

var productEnvelopes = []envelope{
	{"data", "product"},
	{"product"},
	{"data"},
	{},
}

// HTTPProductClient reads catalog records from the product service.
type HTTPProductClient struct {
	api    *upstream
	logger *logging.LoggerV2
}

func NewHTTPProductClient(cfg config.ServiceConfig, logger *logging.LoggerV2) *HTTPProductClient {
	return &HTTPProductClient{
		api:    newUpstream("product-service", cfg, logger),
		logger: logger,
	}
}

// FetchProduct returns the product with its raw document attached for price resolution.
func (c *HTTPProductClient) FetchProduct(ctx context.Context, productID, token string) (*models.Product, error) {
	body, err := c.api.getJSON(ctx, productID, token)
	if errors.Is(err, errNotFound) {
		return nil, apperrors.NewProductNotFound(productID)
	}
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable("product-service", err)
	}

	doc, ok := unwrap(body, productEnvelopes, func(m map[string]interface{}) bool {
		return stringField(m, "_id", "id", "title", "name") != ""
	})
	if !ok {
		return nil, apperrors.NewProductNotFound(productID)
	}

	id := stringField(doc, "_id", "id")
	if id == "" {
		id = productID
	}
	if id != productID {
		c.logger.Warn("Product service returned a different product", logging.Fields{
			"product_id":  productID,
			"returned_id": id,
		})
		return nil, apperrors.NewProductNotFound(productID)
	}

	stock, ok := intField(doc, "stock", "countInStock", "quantity", "inventory")
	if !ok || stock < 0 {
		c.logger.Warn("Product record has no usable stock", logging.Fields{"product_id": productID})
		return nil, apperrors.NewInvalidProductStock(productID)
	}

	return &models.Product{
		ID:    id,
		Title: stringField(doc, "title", "name"),
		Stock: stock,
		Raw:   doc,
	}, nil
}
