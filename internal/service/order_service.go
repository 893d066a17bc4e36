package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/auth"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/pricing"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
)

// CartFetcher loads the caller's current cart.
type CartFetcher interface {
	FetchCart(ctx context.Context, token string) (*models.Cart, error)
}

// LineResolver prices cart lines against the catalog.
type LineResolver interface {
	Resolve(ctx context.Context, items []models.CartItem, token string) ([]pricing.ResolvedLine, error)
}

// OrderService handles order business logic.
type OrderService struct {
	orderRepo  repository.OrderRepository
	orderCache repository.OrderCache
	carts      CartFetcher
	resolver   LineResolver
	metrics    *metrics.OrderMetrics
	config     *config.Config
	logger     *logging.LoggerV2
	tracer     trace.Tracer
	now        func() time.Time
}

// NewOrderService creates a new order service. orderCache and m may be nil.
func NewOrderService(
	orderRepo repository.OrderRepository,
	orderCache repository.OrderCache,
	carts CartFetcher,
	resolver LineResolver,
	m *metrics.OrderMetrics,
	cfg *config.Config,
	logger *logging.LoggerV2,
) *OrderService {
	return &OrderService{
		orderRepo:  orderRepo,
		orderCache: orderCache,
		carts:      carts,
		resolver:   resolver,
		metrics:    m,
		config:     cfg,
		logger:     logger.Named("order-service"),
		tracer:     otel.Tracer("service/orders"),
		now:        time.Now,
	}
}

// CreateOrder turns the caller's cart into a PENDING order. Nothing is
// persisted unless every line resolves to a price and has enough stock.
func (s *OrderService) CreateOrder(ctx context.Context, actor *auth.Identity, req *models.CreateOrderRequest) (order *models.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			s.recordFailure(err)
		}
	}()

	if !actor.Can(auth.CapPlaceOrder) {
		return nil, errors.NewForbidden("role cannot place orders")
	}

	s.logger.Info("Creating order", logging.Fields{"user_id": actor.UserID})

	cart, err := s.carts.FetchCart(ctx, actor.Token)
	if err != nil {
		s.logger.Error("Failed to fetch cart", logging.Fields{
			"user_id": actor.UserID,
			"error":   err,
		})
		return nil, err
	}
	if cart == nil || len(cart.Items) == 0 {
		return nil, errors.NewEmptyCart()
	}
	span.SetAttributes(attribute.Int("cart.lines", len(cart.Items)))

	var addr *models.Address
	if req != nil {
		addr = req.ShippingAddress
	}
	address, err := ValidateShippingAddress(addr)
	if err != nil {
		return nil, err
	}

	lines, err := s.resolver.Resolve(ctx, cart.Items, actor.Token)
	if err != nil {
		s.logger.Warn("Failed to resolve cart prices", logging.Fields{
			"user_id": actor.UserID,
			"kind":    string(errors.KindOf(err)),
		})
		return nil, err
	}

	for _, line := range lines {
		if err := pricing.AssertSufficientStock(line.Product, line.Quantity); err != nil {
			return nil, err
		}
	}

	total, err := pricing.Total(lines, s.config.DefaultCurrency)
	if err != nil {
		return nil, err
	}

	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.OrderItem{
			ProductID: line.Product.ID,
			Title:     line.Product.Title,
			Quantity:  line.Quantity,
			Price:     line.LineTotal,
		})
	}

	now := s.now().UTC()
	order = &models.Order{
		ID:              uuid.NewString(),
		UserID:          actor.UserID,
		Items:           items,
		Status:          models.OrderStatusPending,
		TotalPrice:      total,
		ShippingAddress: address,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		s.logger.Error("Failed to create order", logging.Fields{
			"user_id": actor.UserID,
			"error":   err,
		})
		return nil, errors.NewInternal(err)
	}

	s.invalidate(ctx, order)
	if s.metrics != nil {
		s.metrics.Created.Inc()
	}

	s.logger.Info("Order created successfully", logging.Fields{
		"order_id": order.ID,
		"total":    order.TotalPrice.Amount.String(),
		"currency": order.TotalPrice.Currency,
	})
	return order, nil
}

// GetOrder returns an order with its derived views. Owners and admins may read it.
func (s *OrderService) GetOrder(ctx context.Context, actor *auth.Identity, id string) (*models.OrderView, error) {
	s.logger.Debug("Getting order", logging.Fields{"order_id": id})

	order, err := s.load(ctx, id, true)
	if err != nil {
		return nil, err
	}

	owner := order.UserID == actor.UserID && actor.Can(auth.CapReadOwnOrder)
	if !owner && !actor.Can(auth.CapReadAnyOrder) {
		return nil, errors.NewForbidden("you do not have access to this order")
	}
	return NewOrderView(order), nil
}

// ListMine returns one page of the caller's orders, newest first.
func (s *OrderService) ListMine(ctx context.Context, actor *auth.Identity, pageStr, limitStr string) (*models.OrderList, error) {
	if !actor.Can(auth.CapReadOwnOrder) {
		return nil, errors.NewForbidden("role cannot list orders")
	}

	page, limit := ParsePagination(pageStr, limitStr, s.config.Pagination)
	s.logger.Debug("Listing user orders", logging.Fields{
		"user_id": actor.UserID,
		"page":    page,
		"limit":   limit,
	})

	firstPage := page == 1 && s.cachingEnabled()
	if firstPage {
		if list, err := s.orderCache.GetFirstPage(ctx, actor.UserID, limit); err == nil && list != nil {
			s.logger.Debug("User orders found in cache", logging.Fields{"user_id": actor.UserID})
			return list, nil
		}
	}

	orders, total, err := s.orderRepo.ListByUser(ctx, actor.UserID, limit, (page-1)*limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if orders == nil {
		orders = []*models.Order{}
	}

	list := &models.OrderList{Orders: orders, Total: total, Page: page, Limit: limit}
	if firstPage {
		if err := s.orderCache.SetFirstPage(ctx, actor.UserID, list); err != nil {
			s.logger.Warn("Failed to cache user orders", logging.Fields{
				"user_id": actor.UserID,
				"error":   err,
			})
		}
	}
	return list, nil
}

// CancelOrder moves the caller's own order to CANCELLED.
func (s *OrderService) CancelOrder(ctx context.Context, actor *auth.Identity, id string) (*models.Order, error) {
	s.logger.Info("Cancelling order", logging.Fields{"order_id": id, "user_id": actor.UserID})

	order, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransition(models.OrderStatusCancelled) {
		return nil, errors.NewInvalidStateTransition(string(order.Status), "cancel")
	}

	updated, err := s.orderRepo.UpdateStatus(ctx, id, models.SourcesFor(models.OrderStatusCancelled), models.OrderStatusCancelled)
	if err != nil {
		return nil, s.translateWriteError(ctx, id, "cancel", err)
	}

	s.invalidate(ctx, updated)
	s.logger.Info("Order cancelled", logging.Fields{
		"order_id":        id,
		"previous_status": string(order.Status),
	})
	return updated, nil
}

// UpdateShippingAddress merges the provided fields into a PENDING order's address.
func (s *OrderService) UpdateShippingAddress(ctx context.Context, actor *auth.Identity, id string, req *models.UpdateAddressRequest) (*models.Order, error) {
	var raw *models.AddressPatch
	if req != nil {
		raw = req.ShippingAddress
	}
	patch, err := ValidateAddressPatch(raw)
	if err != nil {
		return nil, err
	}

	order, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, errors.NewInvalidStateTransition(string(order.Status), "update shipping address")
	}

	updated, err := s.orderRepo.UpdateShippingAddress(ctx, id, patch)
	if err != nil {
		return nil, s.translateWriteError(ctx, id, "update shipping address", err)
	}

	s.invalidate(ctx, updated)
	s.logger.Info("Order address updated", logging.Fields{"order_id": id})
	return updated, nil
}

// AdvanceStatus applies an administrative fulfilment step (SHIPPED, DELIVERED).
func (s *OrderService) AdvanceStatus(ctx context.Context, actor *auth.Identity, id string, req *models.UpdateOrderStatusRequest) (*models.Order, error) {
	if !actor.Can(auth.CapAdvanceOrder) {
		return nil, errors.NewForbidden("only administrators can change order status")
	}
	if req == nil || (req.Status != models.OrderStatusShipped && req.Status != models.OrderStatusDelivered) {
		return nil, errors.NewValidationError("status", "status must be SHIPPED or DELIVERED")
	}

	order, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	action := "move to " + string(req.Status)
	if !order.Status.CanTransition(req.Status) {
		return nil, errors.NewInvalidStateTransition(string(order.Status), action)
	}

	updated, err := s.orderRepo.UpdateStatus(ctx, id, models.SourcesFor(req.Status), req.Status)
	if err != nil {
		return nil, s.translateWriteError(ctx, id, action, err)
	}

	s.invalidate(ctx, updated)
	s.logger.Info("Order status updated", logging.Fields{
		"order_id":   id,
		"old_status": string(order.Status),
		"new_status": string(updated.Status),
	})
	return updated, nil
}

// ConfirmPayment moves a PENDING order to CONFIRMED after its payment
// completed. Unknown and already-advanced orders are ignored so redelivered
// events are harmless; only storage failures are returned.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID string) error {
	if orderID == "" {
		s.logger.Warn("Payment event without order id")
		return nil
	}

	updated, err := s.orderRepo.UpdateStatus(ctx, orderID, []models.OrderStatus{models.OrderStatusPending}, models.OrderStatusConfirmed)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("Payment event for unknown order", logging.Fields{"order_id": orderID})
		return nil
	case errors.Is(err, repository.ErrConflict):
		s.logger.Debug("Order already past PENDING", logging.Fields{"order_id": orderID})
		return nil
	case err != nil:
		return err
	}

	s.invalidate(ctx, updated)
	s.logger.Info("Order confirmed by payment", logging.Fields{"order_id": orderID})
	return nil
}

// HandlePaymentCompleted is the consumer handler for PAYMENT_COMPLETED events.
// Undecodable payloads are dropped.
func (s *OrderService) HandlePaymentCompleted(ctx context.Context, msg events.Message) error {
	var event events.PaymentCompleted
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		s.logger.Warn("Dropping malformed payment event", logging.Fields{
			"topic":    msg.Topic,
			"event_id": msg.EventID,
			"error":    err,
		})
		return nil
	}
	return s.ConfirmPayment(ctx, event.OrderID)
}

func (s *OrderService) load(ctx context.Context, id string, useCache bool) (*models.Order, error) {
	if useCache && s.cachingEnabled() {
		if order, err := s.orderCache.Get(ctx, id); err == nil && order != nil {
			s.logger.Debug("Order found in cache", logging.Fields{"order_id": id})
			return order, nil
		}
	}

	order, err := s.orderRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errors.NewNotFound("order")
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	if useCache && s.cachingEnabled() {
		if err := s.orderCache.Set(ctx, order); err != nil {
			s.logger.Warn("Failed to cache order", logging.Fields{"order_id": id, "error": err})
		}
	}
	return order, nil
}

// loadOwned reads fresh state and enforces ownership; existence is checked first.
func (s *OrderService) loadOwned(ctx context.Context, actor *auth.Identity, id string) (*models.Order, error) {
	order, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.UserID || !actor.Can(auth.CapMutateOwn) {
		return nil, errors.NewForbidden("you do not have access to this order")
	}
	return order, nil
}

// translateWriteError maps a guarded write that lost a race to the status it lost to.
func (s *OrderService) translateWriteError(ctx context.Context, id, action string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return errors.NewNotFound("order")
	case errors.Is(err, repository.ErrConflict):
		current := "unknown"
		if order, getErr := s.orderRepo.GetByID(ctx, id); getErr == nil {
			current = string(order.Status)
		}
		return errors.NewInvalidStateTransition(current, action)
	default:
		s.logger.Error("Order update failed", logging.Fields{"order_id": id, "error": err})
		return errors.NewInternal(err)
	}
}

func (s *OrderService) cachingEnabled() bool {
	return s.orderCache != nil && s.config.Features.EnableOrderCaching
}

// invalidate drops the order key and the owner's list pages. Cache failures are logged only.
func (s *OrderService) invalidate(ctx context.Context, order *models.Order) {
	if !s.cachingEnabled() || order == nil {
		return
	}
	if err := s.orderCache.Delete(ctx, order.ID); err != nil {
		s.logger.Warn("Failed to evict order", logging.Fields{"order_id": order.ID, "error": err})
	}
	if err := s.orderCache.InvalidateByUserID(ctx, order.UserID); err != nil {
		s.logger.Warn("Failed to evict user orders", logging.Fields{"user_id": order.UserID, "error": err})
	}
}

func (s *OrderService) recordFailure(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.Failures.WithLabelValues(string(errors.KindOf(err))).Inc()
}
