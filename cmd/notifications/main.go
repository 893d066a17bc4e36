package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/clients"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/notification"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/server"
)

func main() {
	cfg := config.Load("notifications")

	logger := logging.NewLoggerV2("notifications-service")
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", logging.Fields{"error": err})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		deduper notification.Deduper
		checks  []handlers.Check
	)
	if cfg.Features.InMemoryStore {
		deduper = notification.NewMemoryDeduper()
	} else {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		deduper = notification.NewRedisDeduper(rdb, cfg.Notification.DedupeTTL)
		checks = append(checks, handlers.Check{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	var sender notification.Sender = notification.NewLogSender(logger)
	if cfg.Notification.Sender.BaseURL != "" {
		sender = clients.NewHTTPNotificationClient(cfg.Notification, logger)
	}

	dispatcher := notification.NewDispatcher(sender, deduper, logger)
	consumer := events.NewKafkaConsumer(
		cfg.Kafka,
		events.NotificationTopics,
		dispatcher.Handle,
		metrics.NewEventMetrics(reg),
		logger,
	)

	h := handlers.NewHandlers(nil, nil, cfg, reg, logger, checks...)
	srv := server.NewServer(cfg, h, nil, metrics.NewServerMetrics(reg, "notifications"), logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed to start", logging.Fields{"error": err})
		}
	}()

	go func() {
		logger.Info("Notification dispatcher starting", logging.Fields{
			"topics":      events.NotificationTopics,
			"http_sender": cfg.Notification.Sender.BaseURL != "",
		})
		if err := consumer.Start(context.Background()); err != nil {
			logger.Error("Event consumer failed", logging.Fields{"error": err})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down dispatcher...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumer.Stop(); err != nil {
		logger.Error("Event consumer did not stop cleanly", logging.Fields{"error": err})
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logging.Fields{"error": err})
	}

	logger.Info("Dispatcher exited")
}
