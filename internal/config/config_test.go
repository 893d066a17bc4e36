package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load("orders")

	if cfg.Server.Port != 8082 {
		t.Errorf("expected port 8082, got %d", cfg.Server.Port)
	}
	if cfg.Pagination.DefaultLimit != 10 {
		t.Errorf("expected default limit 10, got %d", cfg.Pagination.DefaultLimit)
	}
	if len(cfg.CartService.Endpoints) != 2 || cfg.CartService.Endpoints[0] != "/api/cart" {
		t.Errorf("unexpected cart endpoints: %v", cfg.CartService.Endpoints)
	}
	if cfg.Auth.CookieName != "token" {
		t.Errorf("expected cookie name token, got %q", cfg.Auth.CookieName)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("JWT_SECRETS", "first, second")
	t.Setenv("CART_SERVICE_TIMEOUT", "3")
	t.Setenv("PRODUCT_SERVICE_TIMEOUT", "750ms")
	t.Setenv("DEFAULT_CURRENCY", "usd")
	t.Setenv("IN_MEMORY_STORE", "true")

	cfg := Load("payments")

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if len(cfg.Auth.JWTSecrets) != 2 || cfg.Auth.JWTSecrets[1] != "second" {
		t.Errorf("unexpected secrets: %v", cfg.Auth.JWTSecrets)
	}
	if cfg.CartService.Timeout != 3*time.Second {
		t.Errorf("expected 3s, got %s", cfg.CartService.Timeout)
	}
	if cfg.ProductService.Timeout != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %s", cfg.ProductService.Timeout)
	}
	if cfg.DefaultCurrency != "USD" {
		t.Errorf("expected USD, got %s", cfg.DefaultCurrency)
	}
	if !cfg.Features.InMemoryStore {
		t.Error("expected in-memory store flag")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad currency", func(c *Config) { c.DefaultCurrency = "XXQ" }, true},
		{"no secrets", func(c *Config) { c.Auth.JWTSecrets = nil }, true},
		{"unknown provider", func(c *Config) { c.Provider.Name = "paypal" }, true},
		{"missing provider secret", func(c *Config) { c.Provider.KeySecret = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load("payments")
			cfg.DefaultCurrency = "INR"
			cfg.Auth.JWTSecrets = []string{"secret"}
			cfg.Provider.Name = "razorpay"
			cfg.Provider.KeySecret = "provider-secret"
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseURL(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss", Name: "checkout", SSLMode: "disable", MaxOpenConns: 4}

	want := "postgres://u:p%40ss@db:5432/checkout?sslmode=disable&pool_max_conns=4"
	if got := d.URL(); got != want {
		t.Errorf("URL() = %s, want %s", got, want)
	}
}
