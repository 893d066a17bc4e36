package repository

import (
	"context"
	"errors"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

var (
	// ErrNotFound means no row matched the id.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict means the row exists but its state did not satisfy the update guard.
	ErrConflict = errors.New("repository: state conflict")
)

// OrderRepository persists orders. Status and address writes are guarded on
// the current status so concurrent writers cannot skip the state machine.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Order, int, error)
	UpdateStatus(ctx context.Context, id string, from []models.OrderStatus, to models.OrderStatus) (*models.Order, error)
	UpdateShippingAddress(ctx context.Context, id string, patch models.AddressPatch) (*models.Order, error)
}

// PaymentRepository persists payments. MarkSucceeded and MarkFailed only
// apply to PENDING payments and return ErrConflict otherwise.
// ClaimCompletionPending clears the completion flag and reports whether this
// caller was the one to clear it.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	FindPendingByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Payment, error)
	FindLatestByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Payment, error)
	MarkSucceeded(ctx context.Context, id, providerPaymentID, signature string) (*models.Payment, error)
	MarkFailed(ctx context.Context, id string) (*models.Payment, error)
	MarkCompletionPending(ctx context.Context, id string) error
	ClaimCompletionPending(ctx context.Context, id string) (bool, error)
}

// OrderCache caches single orders and the first page of a user's orders.
type OrderCache interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	Set(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id string) error
	GetFirstPage(ctx context.Context, userID string, limit int) (*models.OrderList, error)
	SetFirstPage(ctx context.Context, userID string, list *models.OrderList) error
	InvalidateByUserID(ctx context.Context, userID string) error
}
