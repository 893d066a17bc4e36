package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	apperrors "github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
)

func serviceConfig(url string, endpoints ...string) config.ServiceConfig {
	return config.ServiceConfig{BaseURL: url, Timeout: time.Second, Endpoints: endpoints}
}

func TestCartClient_EnvelopesAndFallback(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"cart envelope", `{"cart": {"items": [{"productId": "p1", "quantity": 2}]}}`},
		{"data.cart envelope", `{"data": {"cart": {"items": [{"product": {"_id": "p1"}, "quantity": 2}]}}}`},
		{"data envelope", `{"data": {"items": [{"product": "p1", "qty": "2"}]}}`},
		{"bare", `{"items": [{"productId": "p1", "quantity": 2}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sawAuth, sawRequestID string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/api/cart" {
					http.NotFound(w, r)
					return
				}
				sawAuth = r.Header.Get("Authorization")
				sawRequestID = r.Header.Get(middleware.RequestIDHeader)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewHTTPCartClient(serviceConfig(srv.URL, "/api/cart", "/cart"), logging.NewNop())
			ctx := middleware.WithRequestID(context.Background(), "req-1")

			cart, err := client.FetchCart(ctx, "tok")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(cart.Items) != 1 || cart.Items[0].ProductID != "p1" || cart.Items[0].Quantity != 2 {
				t.Errorf("unexpected cart: %+v", cart.Items)
			}
			if sawAuth != "Bearer tok" || sawRequestID != "req-1" {
				t.Errorf("credential or request id not forwarded: %q %q", sawAuth, sawRequestID)
			}
		})
	}
}

func TestCartClient_StopsOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPCartClient(serviceConfig(srv.URL, "/api/cart", "/cart"), logging.NewNop())

	_, err := client.FetchCart(context.Background(), "tok")
	if apperrors.KindOf(err) != apperrors.KindUpstreamUnavailable {
		t.Fatalf("expected UpstreamUnavailable, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no fallback past a 5xx, got %d calls", calls)
	}
}

func TestCartClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := serviceConfig(srv.URL, "/cart")
	cfg.Timeout = 20 * time.Millisecond
	client := NewHTTPCartClient(cfg, logging.NewNop())

	_, err := client.FetchCart(context.Background(), "tok")
	if apperrors.KindOf(err) != apperrors.KindUpstreamUnavailable {
		t.Fatalf("expected UpstreamUnavailable on timeout, got %v", err)
	}
}

func TestCartClient_MissingCartIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client := NewHTTPCartClient(serviceConfig(srv.URL, "/api/cart", "/cart"), logging.NewNop())

	cart, err := client.FetchCart(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Errorf("expected empty cart, got %+v", cart.Items)
	}
}

func TestCartClient_RejectsBadQuantity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": [{"productId": "p1", "quantity": 0}]}`))
	}))
	defer srv.Close()

	client := NewHTTPCartClient(serviceConfig(srv.URL, "/cart"), logging.NewNop())

	_, err := client.FetchCart(context.Background(), "tok")
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestProductClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/products/p1":
			http.NotFound(w, r)
		case "/products/p1":
			_, _ = w.Write([]byte(`{"data": {"product": {"_id": "p1", "title": "Mug", "stock": 10, "price": {"amount": 500}}}}`))
		case "/products/p2":
			_, _ = w.Write([]byte(`{"name": "Pen", "countInStock": "4", "sellingPrice": 12.5}`))
		case "/products/p3":
			_, _ = w.Write([]byte(`{"product": {"_id": "p9", "title": "Lamp", "stock": 2, "price": 80}}`))
		case "/products/p4":
			_, _ = w.Write([]byte(`{"product": {"_id": "p4", "title": "Rug", "price": 80}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewHTTPProductClient(serviceConfig(srv.URL, "/api/products/{id}", "/products/{id}"), logging.NewNop())

	t.Run("nested envelope after 404", func(t *testing.T) {
		p, err := client.FetchProduct(context.Background(), "p1", "tok")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.ID != "p1" || p.Title != "Mug" || p.Stock != 10 {
			t.Errorf("unexpected product: %+v", p)
		}
		if _, ok := p.Raw["price"].(map[string]interface{}); !ok {
			t.Error("expected raw document to keep the price object")
		}
	})

	t.Run("bare document", func(t *testing.T) {
		p, err := client.FetchProduct(context.Background(), "p2", "tok")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.ID != "p2" || p.Title != "Pen" || p.Stock != 4 {
			t.Errorf("unexpected product: %+v", p)
		}
	})

	t.Run("record for another product", func(t *testing.T) {
		_, err := client.FetchProduct(context.Background(), "p3", "tok")
		if apperrors.KindOf(err) != apperrors.KindProductNotFound {
			t.Fatalf("expected ProductNotFound, got %v", err)
		}
	})

	t.Run("missing stock", func(t *testing.T) {
		_, err := client.FetchProduct(context.Background(), "p4", "tok")
		if apperrors.KindOf(err) != apperrors.KindInvalidProductStock {
			t.Fatalf("expected InvalidProductStock, got %v", err)
		}
	})

	t.Run("not found everywhere", func(t *testing.T) {
		_, err := client.FetchProduct(context.Background(), "missing", "tok")
		if apperrors.KindOf(err) != apperrors.KindProductNotFound {
			t.Fatalf("expected ProductNotFound, got %v", err)
		}
	})
}

func TestOrderClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/orders/o1":
			_, _ = w.Write([]byte(`{"order": {"id": "o1", "user": "u1", "status": "PENDING", "totalPrice": {"amount": 1000, "currency": "INR"}}}`))
		case "/api/orders/o2":
			w.WriteHeader(http.StatusForbidden)
		case "/api/orders/o3":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewHTTPOrderClient(serviceConfig(srv.URL, "/api/orders/{id}"), logging.NewNop())

	order, err := client.FetchOrder(context.Background(), "o1", "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.UserID != "u1" || order.TotalPrice.MinorUnits() != 100000 || order.TotalPrice.Currency != "INR" {
		t.Errorf("unexpected order: %+v", order)
	}

	tests := map[string]apperrors.Kind{
		"o2": apperrors.KindForbidden,
		"o3": apperrors.KindUpstreamUnavailable,
		"o4": apperrors.KindNotFound,
	}
	for id, want := range tests {
		_, err := client.FetchOrder(context.Background(), id, "tok")
		if got := apperrors.KindOf(err); got != want {
			t.Errorf("FetchOrder(%s) kind = %s, want %s", id, got, want)
		}
	}
}
