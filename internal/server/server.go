package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/auth"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
)

// Routes registers a service's API surface under /api.
type Routes func(api *gin.RouterGroup, h *handlers.Handlers, authn *auth.Middleware)

type Server struct {
	config     *config.Config
	router     *gin.Engine
	handlers   *handlers.Handlers
	authn      *auth.Middleware
	httpServer *http.Server
	logger     *logging.LoggerV2
}

// NewServer builds the router with the shared middleware chain and probe
// endpoints, then lets each Routes register its API.
func NewServer(
	cfg *config.Config,
	h *handlers.Handlers,
	authn *auth.Middleware,
	m *metrics.ServerMetrics,
	logger *logging.LoggerV2,
	routes ...Routes,
) *Server {
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		gin.Recovery(),
		middleware.AccessLog(logger.Named("http")),
		middleware.Metrics(m),
	)

	s := &Server{
		config:   cfg,
		router:   router,
		handlers: h,
		authn:    authn,
		logger:   logger,
	}

	s.setupRoutes(routes)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupRoutes(routes []Routes) {
	s.router.GET("/health", s.handlers.Health)
	s.router.GET("/live", s.handlers.Live)
	s.router.GET("/ready", s.handlers.Ready)
	s.router.GET("/metrics", s.handlers.Metrics)

	api := s.router.Group("/api")
	for _, register := range routes {
		register(api, s.handlers, s.authn)
	}
}

// OrderRoutes is the order service's API.
func OrderRoutes(api *gin.RouterGroup, h *handlers.Handlers, authn *auth.Middleware) {
	orders := api.Group("/orders", authn.Require())
	{
		orders.POST("", h.CreateOrder)
		orders.GET("/me", h.ListMyOrders)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/cancel", h.CancelOrder)
		orders.PATCH("/:id/address", h.UpdateOrderAddress)
	}

	api.POST("/orders/:id/status", authn.Require(auth.RoleAdmin), h.UpdateOrderStatus)
}

// PaymentRoutes is the payment service's API.
func PaymentRoutes(api *gin.RouterGroup, h *handlers.Handlers, authn *auth.Middleware) {
	payments := api.Group("/payments", authn.Require())
	{
		payments.POST("/verify", h.VerifyPayment)
		payments.POST("/:orderId", h.CreatePayment)
		payments.GET("/:id", h.GetPayment)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Server starting", logging.Fields{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
