package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsRegisterAndServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	server := NewServerMetrics(reg, "orders")
	orders := NewOrderMetrics(reg)
	payments := NewPaymentMetrics(reg)
	events := NewEventMetrics(reg)

	server.Requests.WithLabelValues("/api/orders", "POST", "201").Inc()
	orders.Created.Inc()
	orders.Failures.WithLabelValues("EMPTY_CART").Inc()
	payments.Verifications.WithLabelValues("verified").Inc()
	events.Published.WithLabelValues("PAYMENT_NOTIFICATION.PAYMENT_COMPLETED", "ok").Inc()

	if got := testutil.ToFloat64(orders.Created); got != 1 {
		t.Errorf("expected 1 created order, got %v", got)
	}

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	for _, name := range []string{
		"acme_checkout_orders_http_requests_total",
		"acme_checkout_order_creation_failures_total",
		"acme_checkout_payment_verifications_total",
		"acme_checkout_events_published_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
