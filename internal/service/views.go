package service

import (
	"github.com/shopspring/decimal"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// BuildPaymentSummary derives the payment view from the order status alone.
// It does not consult payment records; tax is not yet modelled.
func BuildPaymentSummary(order *models.Order) models.PaymentSummary {
	status := models.PaymentSummaryPending
	if order.Status.IsPaid() {
		status = models.PaymentSummaryPaid
	}
	return models.PaymentSummary{
		Subtotal: order.TotalPrice,
		Tax:      models.Money{Amount: decimal.Zero, Currency: order.TotalPrice.Currency},
		Total:    order.TotalPrice,
		Status:   status,
	}
}

var timelineMessages = map[models.OrderStatus]string{
	models.OrderStatusPending:   "Order placed",
	models.OrderStatusConfirmed: "Payment received, order confirmed",
	models.OrderStatusShipped:   "Order shipped",
	models.OrderStatusDelivered: "Order delivered",
	models.OrderStatusCancelled: "Order cancelled",
}

// BuildTimeline synthesises the steps an order must have passed to reach its
// current status. The first step is stamped with the creation time, the rest
// with the last update.
func BuildTimeline(order *models.Order) []models.TimelineEntry {
	var path []models.OrderStatus
	switch order.Status {
	case models.OrderStatusPending:
		path = []models.OrderStatus{models.OrderStatusPending}
	case models.OrderStatusConfirmed:
		path = []models.OrderStatus{models.OrderStatusPending, models.OrderStatusConfirmed}
	case models.OrderStatusShipped:
		path = []models.OrderStatus{models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusShipped}
	case models.OrderStatusDelivered:
		path = []models.OrderStatus{models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusShipped, models.OrderStatusDelivered}
	case models.OrderStatusCancelled:
		path = []models.OrderStatus{models.OrderStatusPending, models.OrderStatusCancelled}
	default:
		path = []models.OrderStatus{order.Status}
	}

	timeline := make([]models.TimelineEntry, 0, len(path))
	for i, status := range path {
		ts := order.UpdatedAt
		if i == 0 {
			ts = order.CreatedAt
		}
		timeline = append(timeline, models.TimelineEntry{
			Status:    status,
			Timestamp: ts,
			Message:   timelineMessages[status],
		})
	}
	return timeline
}

// NewOrderView attaches the derived timeline and payment summary.
func NewOrderView(order *models.Order) *models.OrderView {
	return &models.OrderView{
		Order:          order,
		Timeline:       BuildTimeline(order),
		PaymentSummary: BuildPaymentSummary(order),
	}
}
