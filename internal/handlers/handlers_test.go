package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/auth"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	apperrors "github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/payments"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/pricing"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/service"
)

const (
	jwtSecret      = "test-secret"
	providerSecret = "whsec_test"
)

type fakeCarts struct{ cart *models.Cart }

func (f *fakeCarts) FetchCart(ctx context.Context, token string) (*models.Cart, error) {
	return f.cart, nil
}

type fakeProducts map[string]*models.Product

func (f fakeProducts) FetchProduct(ctx context.Context, productID, token string) (*models.Product, error) {
	p, ok := f[productID]
	if !ok {
		return nil, apperrors.NewProductNotFound(productID)
	}
	return p, nil
}

type fakeOrders map[string]*models.Order

func (f fakeOrders) FetchOrder(ctx context.Context, orderID, token string) (*models.Order, error) {
	o, ok := f[orderID]
	if !ok {
		return nil, apperrors.NewNotFound("order")
	}
	return o, nil
}

type fakeProvider struct{}

func (fakeProvider) Name() string { return "fake" }

func (fakeProvider) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	return payments.Intent{ID: "order_" + req.Receipt, Amount: req.Amount, Currency: req.Currency, Status: "created"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ServiceName:     "orders",
		DefaultCurrency: "INR",
		Pagination:      config.PaginationConfig{DefaultPage: 1, DefaultLimit: 10, MaxLimit: 100},
	}
}

func token(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":    userID,
		"email": userID + "@example.com",
		"role":  string(role),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type testEnv struct {
	router    *gin.Engine
	orders    *repository.MemoryOrderRepository
	payments  *repository.MemoryPaymentRepository
	upstream  fakeOrders
	publisher *events.MemoryPublisher
}

func newTestEnv(cart *models.Cart, products fakeProducts) *testEnv {
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	logger := logging.NewNop()
	env := &testEnv{
		orders:    repository.NewMemoryOrderRepository(),
		payments:  repository.NewMemoryPaymentRepository(),
		upstream:  fakeOrders{},
		publisher: events.NewMemoryPublisher(),
	}

	orderService := service.NewOrderService(env.orders, nil, &fakeCarts{cart: cart},
		pricing.NewResolver(products, cfg.DefaultCurrency), nil, cfg, logger)
	paymentService := service.NewPaymentService(env.payments, env.upstream, fakeProvider{},
		payments.NewHMACVerifier(providerSecret), env.publisher, nil, logger)

	h := NewHandlers(orderService, paymentService, cfg, prometheus.NewRegistry(), logger)
	authn := auth.NewMiddleware(auth.NewJWTVerifier([]string{jwtSecret}, time.Minute), "token")

	router := gin.New()
	router.Use(middleware.RequestID())
	api := router.Group("/api", authn.Require())
	api.POST("/orders", h.CreateOrder)
	api.GET("/orders/me", h.ListMyOrders)
	api.GET("/orders/:id", h.GetOrder)
	api.POST("/orders/:id/cancel", h.CancelOrder)
	api.PATCH("/orders/:id/address", h.UpdateOrderAddress)
	api.POST("/orders/:id/status", h.UpdateOrderStatus)
	api.POST("/payments/verify", h.VerifyPayment)
	api.POST("/payments/:orderId", h.CreatePayment)
	api.GET("/payments/:id", h.GetPayment)

	env.router = router
	return env
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
		}
	}
	return w, resp
}

var shippingAddress = map[string]interface{}{
	"street":  "12 MG Road",
	"city":    "Pune",
	"state":   "MH",
	"pincode": "411001",
	"country": "IN",
}

func kettleShop() (*models.Cart, fakeProducts) {
	cart := &models.Cart{Items: []models.CartItem{{ProductID: "P1", Quantity: 2}}}
	products := fakeProducts{"P1": {
		ID:    "P1",
		Title: "Kettle",
		Stock: 10,
		Raw:   map[string]interface{}{"_id": "P1", "title": "Kettle", "stock": 10, "price": 500},
	}}
	return cart, products
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewHandlers(nil, nil, testConfig(), prometheus.NewRegistry(), logging.NewNop())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	h.Health(c)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
	if resp["service"] != "orders-service" {
		t.Errorf("Expected service 'orders-service', got %v", resp["service"])
	}
}

func TestLive(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewHandlers(nil, nil, testConfig(), prometheus.NewRegistry(), logging.NewNop())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/live", nil)

	h.Live(c)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestReady(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ok := Check{Name: "postgres", Ping: func(ctx context.Context) error { return nil }}
	down := Check{Name: "redis", Ping: func(ctx context.Context) error { return errors.New("connection refused") }}

	tests := []struct {
		name     string
		checks   []Check
		wantCode int
	}{
		{name: "no checks", wantCode: http.StatusOK},
		{name: "all pass", checks: []Check{ok}, wantCode: http.StatusOK},
		{name: "one fails", checks: []Check{ok, down}, wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandlers(nil, nil, testConfig(), prometheus.NewRegistry(), logging.NewNop(), tt.checks...)

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

			h.Ready(c)

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}
		})
	}
}

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantKind    string
		wantMessage string
		wantField   string
	}{
		{
			name:        "validation keeps field",
			err:         apperrors.NewValidationError("shippingAddress.city", "city is required"),
			wantCode:    http.StatusBadRequest,
			wantKind:    "VALIDATION_ERROR",
			wantMessage: "city is required",
			wantField:   "shippingAddress.city",
		},
		{
			name:        "not found",
			err:         apperrors.NewNotFound("order"),
			wantCode:    http.StatusNotFound,
			wantKind:    "NOT_FOUND",
			wantMessage: "order not found",
		},
		{
			name:        "unclassified error is hidden",
			err:         errors.New("pq: connection reset by peer"),
			wantCode:    http.StatusInternalServerError,
			wantKind:    "INTERNAL_ERROR",
			wantMessage: "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandlers(nil, nil, testConfig(), prometheus.NewRegistry(), logging.NewNop())

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			req := httptest.NewRequest(http.MethodGet, "/api/orders/o1", nil)
			c.Request = req.WithContext(middleware.WithRequestID(req.Context(), "req-1"))

			h.handleError(c, tt.err)

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}
			var resp map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if resp["kind"] != tt.wantKind || resp["message"] != tt.wantMessage {
				t.Errorf("unexpected body: %v", resp)
			}
			if tt.wantField != "" && resp["field"] != tt.wantField {
				t.Errorf("Expected field %q, got %v", tt.wantField, resp["field"])
			}
			if resp["request_id"] != "req-1" {
				t.Errorf("Expected request_id to be echoed, got %v", resp["request_id"])
			}
		})
	}
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(kettleShop())
	alice := token(t, "alice", auth.RoleUser)

	w, resp := env.do(t, http.MethodPost, "/api/orders", alice, map[string]interface{}{"shippingAddress": shippingAddress})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	order, _ := resp["order"].(map[string]interface{})
	if order["status"] != "PENDING" || order["user"] != "alice" {
		t.Errorf("unexpected order: %v", order)
	}
	total, _ := order["totalPrice"].(map[string]interface{})
	if total["amount"] != float64(1000) || total["currency"] != "INR" {
		t.Errorf("unexpected total: %v", total)
	}
}

func TestCreateOrder_RequestErrors(t *testing.T) {
	alice := token(t, "alice", auth.RoleUser)

	tests := []struct {
		name     string
		cart     *models.Cart
		body     interface{}
		bearer   string
		wantCode int
		wantKind string
	}{
		{name: "no token", cart: &models.Cart{}, wantCode: http.StatusUnauthorized, wantKind: "UNAUTHORIZED"},
		{name: "invalid json", cart: &models.Cart{}, body: "{", bearer: alice, wantCode: http.StatusBadRequest, wantKind: "VALIDATION_ERROR"},
		{name: "empty body and empty cart", cart: &models.Cart{}, bearer: alice, wantCode: http.StatusBadRequest, wantKind: "EMPTY_CART"},
		{name: "missing address", cart: &models.Cart{Items: []models.CartItem{{ProductID: "P1", Quantity: 1}}}, bearer: alice, wantCode: http.StatusBadRequest, wantKind: "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, products := kettleShop()
			env := newTestEnv(tt.cart, products)

			w, resp := env.do(t, http.MethodPost, "/api/orders", tt.bearer, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if resp["kind"] != tt.wantKind {
				t.Errorf("Expected kind %s, got %v", tt.wantKind, resp["kind"])
			}
			if resp["request_id"] == nil {
				t.Errorf("Expected request_id in error body")
			}
		})
	}
}

func TestOrderLifecycle(t *testing.T) {
	env := newTestEnv(kettleShop())
	alice := token(t, "alice", auth.RoleUser)
	bob := token(t, "bob", auth.RoleUser)

	_, created := env.do(t, http.MethodPost, "/api/orders", alice, map[string]interface{}{"shippingAddress": shippingAddress})
	orderID := created["order"].(map[string]interface{})["id"].(string)

	w, resp := env.do(t, http.MethodGet, "/api/orders/me?page=1&limit=5", alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	meta, _ := resp["meta"].(map[string]interface{})
	if meta["total"] != float64(1) || meta["page"] != float64(1) || meta["limit"] != float64(5) {
		t.Errorf("unexpected meta: %v", meta)
	}

	w, resp = env.do(t, http.MethodGet, "/api/orders/"+orderID, alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	view, _ := resp["order"].(map[string]interface{})
	if _, ok := view["timeline"]; !ok {
		t.Errorf("expected timeline in order view: %v", view)
	}

	if w, _ = env.do(t, http.MethodGet, "/api/orders/"+orderID, bob, nil); w.Code != http.StatusForbidden {
		t.Errorf("other user: expected 403, got %d", w.Code)
	}

	w, resp = env.do(t, http.MethodPatch, "/api/orders/"+orderID+"/address", alice, map[string]interface{}{
		"shippingAddress": map[string]interface{}{"city": "Mumbai"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("address: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	addr := resp["order"].(map[string]interface{})["shippingAddress"].(map[string]interface{})
	if addr["city"] != "Mumbai" || addr["street"] != "12 MG Road" {
		t.Errorf("expected merged address, got %v", addr)
	}

	if w, _ = env.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", alice, nil); w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", w.Code)
	}
	w, resp = env.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", alice, nil)
	if w.Code != http.StatusConflict || resp["kind"] != "INVALID_STATE_TRANSITION" {
		t.Errorf("second cancel: expected 409 INVALID_STATE_TRANSITION, got %d %v", w.Code, resp["kind"])
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	env := newTestEnv(kettleShop())
	now := time.Now()
	if err := env.orders.Create(context.Background(), &models.Order{
		ID:        "o1",
		UserID:    "alice",
		Status:    models.OrderStatusConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w, resp := env.do(t, http.MethodPost, "/api/orders/o1/status", token(t, "root", auth.RoleAdmin), map[string]string{"status": "SHIPPED"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := resp["order"].(map[string]interface{})["status"]; got != "SHIPPED" {
		t.Errorf("Expected SHIPPED, got %v", got)
	}

	w, _ = env.do(t, http.MethodPost, "/api/orders/o1/status", token(t, "alice", auth.RoleUser), map[string]string{"status": "DELIVERED"})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for non-admin, got %d", w.Code)
	}
}

func TestPaymentFlow(t *testing.T) {
	env := newTestEnv(kettleShop())
	env.upstream["o1"] = &models.Order{
		ID:         "o1",
		UserID:     "alice",
		Status:     models.OrderStatusPending,
		TotalPrice: models.NewMoney(1000.5, "INR"),
	}
	alice := token(t, "alice", auth.RoleUser)

	w, resp := env.do(t, http.MethodPost, "/api/payments/o1", alice, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	providerOrder, _ := resp["providerOrder"].(map[string]interface{})
	if providerOrder["amount"] != float64(100050) || providerOrder["currency"] != "INR" {
		t.Errorf("unexpected provider order: %v", providerOrder)
	}
	providerOrderID := providerOrder["id"].(string)
	paymentID := resp["payment"].(map[string]interface{})["id"].(string)

	verify := map[string]string{
		"providerOrderId":   providerOrderID,
		"providerPaymentId": "pay_provider_1",
		"signature":         payments.NewHMACVerifier(providerSecret).Sign(providerOrderID, "pay_provider_1"),
	}

	w, resp = env.do(t, http.MethodPost, "/api/payments/verify", alice, verify)
	if w.Code != http.StatusOK || resp["message"] != "Payment verified successfully" {
		t.Fatalf("verify: got %d %v", w.Code, resp)
	}

	w, resp = env.do(t, http.MethodPost, "/api/payments/verify", alice, verify)
	if w.Code != http.StatusOK || resp["message"] != "Payment already verified" {
		t.Fatalf("repeat verify: got %d %v", w.Code, resp)
	}
	if got := len(env.publisher.Messages(events.TopicPaymentCompleted)); got != 1 {
		t.Errorf("Expected one PAYMENT_COMPLETED event, got %d", got)
	}

	verify["signature"] = "deadbeef"
	w, resp = env.do(t, http.MethodPost, "/api/payments/verify", alice, verify)
	if w.Code != http.StatusBadRequest || resp["kind"] != "INVALID_SIGNATURE" {
		t.Errorf("tampered: got %d %v", w.Code, resp)
	}

	w, resp = env.do(t, http.MethodGet, "/api/payments/"+paymentID, alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	if got := resp["payment"].(map[string]interface{})["status"]; got != "SUCCESS" {
		t.Errorf("Expected SUCCESS, got %v", got)
	}

	if w, _ = env.do(t, http.MethodGet, "/api/payments/"+paymentID, token(t, "bob", auth.RoleUser), nil); w.Code != http.StatusForbidden {
		t.Errorf("other user: expected 403, got %d", w.Code)
	}
}
