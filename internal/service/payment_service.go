package service

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/auth"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/payments"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
)

// OrderFetcher reads an order from the order service with the caller's credential.
type OrderFetcher interface {
	FetchOrder(ctx context.Context, orderID, token string) (*models.Order, error)
}

// SignatureVerifier checks a provider's checkout signature.
type SignatureVerifier interface {
	Verify(providerOrderID, providerPaymentID, signature string) bool
}

// IntentResult is a persisted payment plus the provider intent behind it.
type IntentResult struct {
	Payment *models.Payment
	Intent  payments.Intent
}

// VerifyResult is the outcome of a verification. AlreadyProcessed is set when
// the confirmation had been applied before and nothing was re-published.
type VerifyResult struct {
	Payment          *models.Payment
	AlreadyProcessed bool
}

const (
	outcomeVerified         = "verified"
	outcomeAlreadyProcessed = "already_processed"
	outcomeInvalidSignature = "invalid_signature"
	outcomeNotFound         = "not_found"
	outcomeRejected         = "rejected"
	outcomeFailed           = "failed"
)

// PaymentService handles payment intents and their verification.
type PaymentService struct {
	paymentRepo repository.PaymentRepository
	orders      OrderFetcher
	provider    payments.Provider
	verifier    SignatureVerifier
	publisher   events.Publisher
	metrics     *metrics.PaymentMetrics
	logger      *logging.LoggerV2
	tracer      trace.Tracer
	now         func() time.Time
}

// NewPaymentService creates a new payment service. m may be nil.
func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	orders OrderFetcher,
	provider payments.Provider,
	verifier SignatureVerifier,
	publisher events.Publisher,
	m *metrics.PaymentMetrics,
	logger *logging.LoggerV2,
) *PaymentService {
	return &PaymentService{
		paymentRepo: paymentRepo,
		orders:      orders,
		provider:    provider,
		verifier:    verifier,
		publisher:   publisher,
		metrics:     m,
		logger:      logger.Named("payment-service"),
		tracer:      otel.Tracer("service/payments"),
		now:         time.Now,
	}
}

// CreateIntent opens a provider intent for a PENDING order's total and
// records it as a PENDING payment.
func (s *PaymentService) CreateIntent(ctx context.Context, actor *auth.Identity, orderID string) (*IntentResult, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.CreateIntent", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if !actor.Can(auth.CapCreatePayment) {
		return nil, errors.NewForbidden("role cannot create payments")
	}

	order, err := s.orders.FetchOrder(ctx, orderID, actor.Token)
	if err != nil {
		span.RecordError(err)
		s.countIntent("order_error")
		s.logger.Warn("Failed to fetch order for payment", logging.Fields{
			"order_id": orderID,
			"error":    err,
		})
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		s.countIntent("rejected")
		return nil, errors.NewInvalidStateTransition(string(order.Status), "create payment")
	}

	minor := order.TotalPrice.MinorUnits()
	if minor <= 0 {
		s.countIntent("rejected")
		return nil, errors.NewValidationError("totalPrice", "order total must be positive")
	}

	paymentID := "pay_" + ulid.Make().String()
	intent, err := s.provider.CreateIntent(ctx, payments.IntentRequest{
		Amount:   minor,
		Currency: order.TotalPrice.Currency,
		Receipt:  paymentID,
		Metadata: map[string]string{"order_id": orderID, "user_id": actor.UserID},
	})
	if err != nil {
		span.RecordError(err)
		s.countIntent("provider_error")
		s.logger.Error("Provider intent creation failed", logging.Fields{
			"order_id": orderID,
			"provider": s.provider.Name(),
			"error":    err,
		})
		return nil, errors.NewProviderError(err)
	}

	price := &models.PaymentPrice{Amount: intent.Amount, Currency: intent.Currency}
	if price.Amount == 0 {
		price.Amount = minor
	}
	if price.Currency == "" {
		price.Currency = order.TotalPrice.Currency
	}

	now := s.now().UTC()
	payment := &models.Payment{
		ID:              paymentID,
		OrderID:         orderID,
		UserID:          actor.UserID,
		ProviderOrderID: intent.ID,
		Status:          models.PaymentStatusPending,
		Price:           price,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		s.countIntent("storage_error")
		s.logger.Error("Failed to persist payment", logging.Fields{
			"order_id":          orderID,
			"provider_order_id": intent.ID,
			"error":             err,
		})
		return nil, errors.NewInternal(err)
	}

	s.countIntent("created")
	s.logger.Info("Payment initiated", logging.Fields{
		"payment_id":        payment.ID,
		"order_id":          orderID,
		"provider_order_id": intent.ID,
		"amount":            price.Amount,
		"currency":          price.Currency,
	})
	return &IntentResult{Payment: payment, Intent: intent}, nil
}

// Verify checks a signed provider confirmation and settles the matching
// PENDING payment exactly once. After the signature is accepted, any failure
// publishes PAYMENT_FAILED before returning an internal error.
func (s *PaymentService) Verify(ctx context.Context, actor *auth.Identity, req *models.VerifyPaymentRequest) (*VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.Verify")
	defer span.End()

	if !actor.Can(auth.CapVerifyPayment) {
		return nil, errors.NewForbidden("role cannot verify payments")
	}
	if req == nil {
		return nil, errors.NewValidationError("providerOrderId", "request body is required")
	}
	req.Normalize()
	switch {
	case req.ProviderOrderID == "":
		return nil, errors.NewValidationError("providerOrderId", "provider order id is required")
	case req.ProviderPaymentID == "":
		return nil, errors.NewValidationError("providerPaymentId", "provider payment id is required")
	case req.Signature == "":
		return nil, errors.NewValidationError("signature", "signature is required")
	}
	span.SetAttributes(attribute.String("provider.order_id", req.ProviderOrderID))

	if !s.verifier.Verify(req.ProviderOrderID, req.ProviderPaymentID, req.Signature) {
		s.countVerification(outcomeInvalidSignature)
		s.logger.Warn("Invalid payment signature", logging.Fields{
			"provider_order_id": req.ProviderOrderID,
			"user_id":           actor.UserID,
		})
		return nil, errors.NewInvalidSignature()
	}

	pending, err := s.paymentRepo.FindPendingByProviderOrderID(ctx, req.ProviderOrderID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.settled(ctx, actor, req)
	}
	if err != nil {
		return nil, s.fail(ctx, actor, req, nil, "payment lookup failed", err)
	}

	if pending.OrderID == "" || pending.UserID == "" || pending.Price == nil {
		s.logger.Warn("Payment record is missing optional fields", logging.Fields{
			"payment_id": pending.ID,
			"has_order":  pending.OrderID != "",
			"has_user":   pending.UserID != "",
			"has_price":  pending.Price != nil,
		})
	}

	updated, err := s.paymentRepo.MarkSucceeded(ctx, pending.ID, req.ProviderPaymentID, req.Signature)
	if errors.Is(err, repository.ErrConflict) {
		return s.settled(ctx, actor, req)
	}
	if err != nil {
		if _, markErr := s.paymentRepo.MarkFailed(ctx, pending.ID); markErr != nil {
			s.logger.Error("Failed to mark payment failed", logging.Fields{
				"payment_id": pending.ID,
				"error":      markErr,
			})
		}
		return nil, s.fail(ctx, actor, req, pending, "payment update failed", err)
	}

	if err := s.publishCompleted(ctx, actor, updated); err != nil {
		s.markCompletionPending(ctx, updated.ID)
		return nil, s.fail(ctx, actor, req, updated, "completion event not published", err)
	}

	s.countVerification(outcomeVerified)
	s.logger.Info("Payment verified", logging.Fields{
		"payment_id":          updated.ID,
		"order_id":            updated.OrderID,
		"provider_payment_id": req.ProviderPaymentID,
	})
	return &VerifyResult{Payment: updated}, nil
}

// settled resolves a confirmation whose payment is no longer PENDING.
func (s *PaymentService) settled(ctx context.Context, actor *auth.Identity, req *models.VerifyPaymentRequest) (*VerifyResult, error) {
	latest, err := s.paymentRepo.FindLatestByProviderOrderID(ctx, req.ProviderOrderID)
	if errors.Is(err, repository.ErrNotFound) {
		s.countVerification(outcomeNotFound)
		return nil, errors.NewPaymentNotFound(req.ProviderOrderID)
	}
	if err != nil {
		return nil, s.fail(ctx, actor, req, nil, "payment lookup failed", err)
	}

	switch latest.Status {
	case models.PaymentStatusSuccess:
		if latest.CompletionPending {
			if err := s.resumeCompletion(ctx, actor, req, latest); err != nil {
				return nil, err
			}
		}
		s.countVerification(outcomeAlreadyProcessed)
		s.logger.Info("Payment already verified", logging.Fields{
			"payment_id":        latest.ID,
			"provider_order_id": req.ProviderOrderID,
		})
		return &VerifyResult{Payment: latest, AlreadyProcessed: true}, nil
	case models.PaymentStatusFailed:
		s.countVerification(outcomeRejected)
		return nil, errors.NewInvalidStateTransition(string(latest.Status), "verify payment")
	default:
		s.countVerification(outcomeNotFound)
		return nil, errors.NewPaymentNotFound(req.ProviderOrderID)
	}
}

// resumeCompletion re-publishes PAYMENT_COMPLETED for a payment that succeeded
// without its event. Only the caller that claims the flag publishes.
func (s *PaymentService) resumeCompletion(ctx context.Context, actor *auth.Identity, req *models.VerifyPaymentRequest, p *models.Payment) error {
	claimed, err := s.paymentRepo.ClaimCompletionPending(ctx, p.ID)
	if err != nil {
		return s.fail(ctx, actor, req, p, "payment lookup failed", err)
	}
	if !claimed {
		return nil
	}
	if err := s.publishCompleted(ctx, actor, p); err != nil {
		s.markCompletionPending(ctx, p.ID)
		return s.fail(ctx, actor, req, p, "completion event not published", err)
	}
	s.logger.Info("Payment completion re-published", logging.Fields{
		"payment_id": p.ID,
		"order_id":   p.OrderID,
	})
	return nil
}

func (s *PaymentService) publishCompleted(ctx context.Context, actor *auth.Identity, p *models.Payment) error {
	completed := events.PaymentCompleted{
		Email:     actor.Email,
		OrderID:   p.OrderID,
		PaymentID: p.ProviderPaymentID,
		Amount:    majorAmount(p.Price),
		Currency:  currencyOf(p.Price),
	}
	return s.publisher.Publish(ctx, events.TopicPaymentCompleted, p.ProviderOrderID, completed)
}

func (s *PaymentService) markCompletionPending(ctx context.Context, id string) {
	if err := s.paymentRepo.MarkCompletionPending(ctx, id); err != nil {
		s.logger.Error("Failed to flag pending completion", logging.Fields{
			"payment_id": id,
			"error":      err,
		})
	}
}

// fail publishes PAYMENT_FAILED with whatever is known and returns an internal error.
func (s *PaymentService) fail(ctx context.Context, actor *auth.Identity, req *models.VerifyPaymentRequest, p *models.Payment, reason string, cause error) error {
	s.countVerification(outcomeFailed)
	s.logger.Error("Payment verification failed", logging.Fields{
		"provider_order_id": req.ProviderOrderID,
		"reason":            reason,
		"error":             cause,
	})

	failed := events.PaymentFailed{
		Email:           actor.Email,
		PaymentID:       req.ProviderPaymentID,
		ProviderOrderID: req.ProviderOrderID,
		Reason:          reason,
	}
	if p != nil {
		failed.OrderID = p.OrderID
		failed.Amount = majorAmount(p.Price)
		failed.Currency = currencyOf(p.Price)
	}
	if err := s.publisher.Publish(ctx, events.TopicPaymentFailed, req.ProviderOrderID, failed); err != nil {
		s.logger.Error("Failed to publish payment failure", logging.Fields{
			"provider_order_id": req.ProviderOrderID,
			"error":             err,
		})
	}
	return errors.NewInternal(cause)
}

// GetPayment returns one of the caller's payments. Administrators may read any.
func (s *PaymentService) GetPayment(ctx context.Context, actor *auth.Identity, id string) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errors.NewNotFound("payment")
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if payment.UserID != actor.UserID && !actor.HasRole(auth.RoleAdmin) {
		return nil, errors.NewForbidden("you do not have access to this payment")
	}
	return payment, nil
}

func (s *PaymentService) countIntent(result string) {
	if s.metrics != nil {
		s.metrics.Intents.WithLabelValues(result).Inc()
	}
}

func (s *PaymentService) countVerification(outcome string) {
	if s.metrics != nil {
		s.metrics.Verifications.WithLabelValues(outcome).Inc()
	}
}

// majorAmount converts minor units back to major units; a missing price is 0.
func majorAmount(p *models.PaymentPrice) float64 {
	if p == nil {
		return 0
	}
	return models.MajorFromMinor(p.Amount).InexactFloat64()
}

func currencyOf(p *models.PaymentPrice) string {
	if p == nil {
		return ""
	}
	return p.Currency
}
