package handlers

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/service"
)

// Check is a named readiness probe such as a database or Redis ping.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handlers holds the HTTP handlers for the order and payment services.
// A binary wires only the service it serves; the other stays nil.
type Handlers struct {
	orderService   *service.OrderService
	paymentService *service.PaymentService
	config         *config.Config
	gatherer       prometheus.Gatherer
	checks         []Check
	logger         *logging.LoggerV2
}

// NewHandlers creates a new handlers instance.
func NewHandlers(
	orderService *service.OrderService,
	paymentService *service.PaymentService,
	cfg *config.Config,
	gatherer prometheus.Gatherer,
	logger *logging.LoggerV2,
	checks ...Check,
) *Handlers {
	return &Handlers{
		orderService:   orderService,
		paymentService: paymentService,
		config:         cfg,
		gatherer:       gatherer,
		checks:         checks,
		logger:         logger.Named("handlers"),
	}
}

func (h *Handlers) serviceName() string {
	if h.config == nil || h.config.ServiceName == "" {
		return "checkout"
	}
	return h.config.ServiceName + "-service"
}
