package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/auth"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/clients"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/pricing"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/server"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/service"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load("orders")

	logger := logging.NewLoggerV2("orders-service")
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", logging.Fields{"error": err})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		orderRepo  repository.OrderRepository
		orderCache repository.OrderCache
		checks     []handlers.Check
	)

	if cfg.Features.InMemoryStore {
		logger.Warn("Using in-memory order store")
		orderRepo = repository.NewMemoryOrderRepository()
	} else {
		db, err := initDatabase(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to connect to database", logging.Fields{"error": err})
		}
		defer db.Close()

		orderRepo = repository.NewPostgresOrderRepository(db, logger)
		checks = append(checks, handlers.Check{Name: "postgres", Ping: db.PingContext})
	}

	if cfg.Features.EnableOrderCaching && !cfg.Features.InMemoryStore {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		orderCache = repository.NewRedisOrderCache(rdb, cfg.Redis.TTL, logger)
		checks = append(checks, handlers.Check{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	cartClient := clients.NewHTTPCartClient(cfg.CartService, logger)
	productClient := clients.NewHTTPProductClient(cfg.ProductService, logger)
	resolver := pricing.NewResolver(productClient, cfg.DefaultCurrency)

	orderService := service.NewOrderService(
		orderRepo,
		orderCache,
		cartClient,
		resolver,
		metrics.NewOrderMetrics(reg),
		cfg,
		logger,
	)

	h := handlers.NewHandlers(orderService, nil, cfg, reg, logger, checks...)
	authn := auth.NewMiddleware(auth.NewJWTVerifier(cfg.Auth.JWTSecrets, cfg.Auth.ClockSkew), cfg.Auth.CookieName)
	srv := server.NewServer(cfg, h, authn, metrics.NewServerMetrics(reg, "orders"), logger, server.OrderRoutes)

	go func() {
		logger.Info("Server starting", logging.Fields{
			"port":            cfg.Server.Port,
			"in_memory_store": cfg.Features.InMemoryStore,
			"order_caching":   orderCache != nil,
		})
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed to start", logging.Fields{"error": err})
		}
	}()

	var consumer *events.KafkaConsumer
	if cfg.Features.EnablePaymentConsumer {
		consumer = events.NewKafkaConsumer(
			cfg.Kafka,
			[]string{events.TopicPaymentCompleted},
			orderService.HandlePaymentCompleted,
			metrics.NewEventMetrics(reg),
			logger,
		)
		go func() {
			if err := consumer.Start(context.Background()); err != nil {
				logger.Error("Event consumer failed", logging.Fields{"error": err})
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error("Event consumer did not stop cleanly", logging.Fields{"error": err})
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logging.Fields{"error": err})
	}

	logger.Info("Server exited")
}

func initDatabase(cfg *config.Config, logger *logging.LoggerV2) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database connected", logging.Fields{
		"host": cfg.Database.Host,
		"name": cfg.Database.Name,
	})

	return db, nil
}
