package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/auth"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/clients"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/payments"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/server"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/service"
)

func main() {
	cfg := config.Load("payments")

	logger := logging.NewLoggerV2("payments-service")
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", logging.Fields{"error": err})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		paymentRepo repository.PaymentRepository
		checks      []handlers.Check
	)

	if cfg.Features.InMemoryStore {
		logger.Warn("Using in-memory payment store")
		paymentRepo = repository.NewMemoryPaymentRepository()
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := pgxpool.New(ctx, cfg.Database.URL())
		if err == nil {
			err = pool.Ping(ctx)
		}
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to database", logging.Fields{"error": err})
		}
		defer pool.Close()

		logger.Info("Database connected", logging.Fields{
			"host": cfg.Database.Host,
			"name": cfg.Database.Name,
		})
		paymentRepo = repository.NewPostgresPaymentRepository(pool, logger)
		checks = append(checks, handlers.Check{Name: "postgres", Ping: pool.Ping})
	}

	provider, err := payments.NewProvider(cfg.Provider, logger)
	if err != nil {
		logger.Fatal("Failed to configure payment provider", logging.Fields{"error": err})
	}

	eventMetrics := metrics.NewEventMetrics(reg)
	var publisher events.Publisher = events.NewMemoryPublisher()
	if cfg.Features.EnableEvents {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka, eventMetrics, logger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	} else {
		logger.Warn("Event publishing disabled; payment events stay in memory")
	}

	paymentService := service.NewPaymentService(
		paymentRepo,
		clients.NewHTTPOrderClient(cfg.OrderService, logger),
		provider,
		payments.NewHMACVerifier(cfg.Provider.KeySecret),
		publisher,
		metrics.NewPaymentMetrics(reg),
		logger,
	)

	h := handlers.NewHandlers(nil, paymentService, cfg, reg, logger, checks...)
	authn := auth.NewMiddleware(auth.NewJWTVerifier(cfg.Auth.JWTSecrets, cfg.Auth.ClockSkew), cfg.Auth.CookieName)
	srv := server.NewServer(cfg, h, authn, metrics.NewServerMetrics(reg, "payments"), logger, server.PaymentRoutes)

	go func() {
		logger.Info("Server starting", logging.Fields{
			"port":     cfg.Server.Port,
			"provider": cfg.Provider.Name,
			"events":   cfg.Features.EnableEvents,
		})
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed to start", logging.Fields{"error": err})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logging.Fields{"error": err})
	}

	logger.Info("Server exited")
}
