package models

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

// CanTransition reports whether the state machine allows from -> to.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SourcesFor lists every status that may move to the target status.
func SourcesFor(to OrderStatus) []OrderStatus {
	var out []OrderStatus
	for _, from := range []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped} {
		if from.CanTransition(to) {
			out = append(out, from)
		}
	}
	return out
}

// IsPaid reports whether the status implies a completed payment.
func (s OrderStatus) IsPaid() bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Address is a shipping destination.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country"`
}

// AddressPatch is a partial address update; nil fields are left untouched.
type AddressPatch struct {
	Street  *string `json:"street,omitempty"`
	City    *string `json:"city,omitempty"`
	State   *string `json:"state,omitempty"`
	Pincode *string `json:"pincode,omitempty"`
	Country *string `json:"country,omitempty"`
}

// Apply merges the patch into a copy of addr.
func (p AddressPatch) Apply(addr Address) Address {
	if p.Street != nil {
		addr.Street = *p.Street
	}
	if p.City != nil {
		addr.City = *p.City
	}
	if p.State != nil {
		addr.State = *p.State
	}
	if p.Pincode != nil {
		addr.Pincode = *p.Pincode
	}
	if p.Country != nil {
		addr.Country = *p.Country
	}
	return addr
}

// Empty reports whether the patch changes nothing.
func (p AddressPatch) Empty() bool {
	return p.Street == nil && p.City == nil && p.State == nil && p.Pincode == nil && p.Country == nil
}

// OrderItem is one priced line of an order.
type OrderItem struct {
	ProductID string `json:"productId"`
	Title     string `json:"title,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     Money  `json:"price"`
}

// Order is an immutable snapshot of a cart at checkout plus its lifecycle state.
type Order struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user"`
	Items           []OrderItem `json:"items"`
	Status          OrderStatus `json:"status"`
	TotalPrice      Money       `json:"totalPrice"`
	ShippingAddress Address     `json:"shippingAddress"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	ShippingAddress *Address `json:"shippingAddress"`
}

// UpdateAddressRequest is the body of PATCH /orders/:id/address.
type UpdateAddressRequest struct {
	ShippingAddress *AddressPatch `json:"shippingAddress"`
}

// UpdateOrderStatusRequest is the body of the admin status endpoint.
type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status"`
}

// TimelineEntry is one derived step in an order's history.
type TimelineEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message"`
}

// PaymentSummaryStatus is the payment state derived from order status.
type PaymentSummaryStatus string

const (
	PaymentSummaryPaid    PaymentSummaryStatus = "PAID"
	PaymentSummaryPending PaymentSummaryStatus = "PENDING"
)

// PaymentSummary is the derived payment view of an order.
type PaymentSummary struct {
	Subtotal Money                `json:"subtotal"`
	Tax      Money                `json:"tax"`
	Total    Money                `json:"total"`
	Status   PaymentSummaryStatus `json:"status"`
}

// OrderView is an order plus its derived timeline and payment summary.
type OrderView struct {
	*Order
	Timeline       []TimelineEntry `json:"timeline"`
	PaymentSummary PaymentSummary  `json:"paymentSummary"`
}

// OrderList is one page of a user's orders.
type OrderList struct {
	Orders []*Order `json:"orders"`
	Total  int      `json:"total"`
	Page   int      `json:"page"`
	Limit  int      `json:"limit"`
}
