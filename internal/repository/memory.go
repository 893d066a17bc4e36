package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// MemoryOrderRepository keeps orders in process memory.
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[string]*models.Order)}
}

func (r *MemoryOrderRepository) Create(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return ErrConflict
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *MemoryOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(order), nil
}

func (r *MemoryOrderRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var mine []*models.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			mine = append(mine, o)
		}
	}
	sort.Slice(mine, func(i, j int) bool {
		if mine[i].CreatedAt.Equal(mine[j].CreatedAt) {
			return mine[i].ID > mine[j].ID
		}
		return mine[i].CreatedAt.After(mine[j].CreatedAt)
	})

	total := len(mine)
	out := []*models.Order{}
	for i := offset; i < total && i < offset+limit; i++ {
		out = append(out, cloneOrder(mine[i]))
	}
	return out, total, nil
}

func (r *MemoryOrderRepository) UpdateStatus(ctx context.Context, id string, from []models.OrderStatus, to models.OrderStatus) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	allowed := false
	for _, s := range from {
		if order.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrConflict
	}
	order.Status = to
	order.UpdatedAt = time.Now().UTC()
	return cloneOrder(order), nil
}

func (r *MemoryOrderRepository) UpdateShippingAddress(ctx context.Context, id string, patch models.AddressPatch) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if order.Status != models.OrderStatusPending {
		return nil, ErrConflict
	}
	order.ShippingAddress = patch.Apply(order.ShippingAddress)
	order.UpdatedAt = time.Now().UTC()
	return cloneOrder(order), nil
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	return &c
}

// MemoryPaymentRepository keeps payments in process memory.
type MemoryPaymentRepository struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{payments: make(map[string]*models.Payment)}
}

func (r *MemoryPaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.payments[p.ID]; exists {
		return ErrConflict
	}
	r.payments[p.ID] = clonePayment(p)
	return nil
}

func (r *MemoryPaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePayment(p), nil
}

func (r *MemoryPaymentRepository) FindPendingByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Payment, error) {
	return r.find(providerOrderID, func(p *models.Payment) bool { return p.Status == models.PaymentStatusPending })
}

func (r *MemoryPaymentRepository) FindLatestByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Payment, error) {
	if p, err := r.find(providerOrderID, func(p *models.Payment) bool { return p.Status == models.PaymentStatusSuccess }); err == nil {
		return p, nil
	}
	return r.find(providerOrderID, func(*models.Payment) bool { return true })
}

func (r *MemoryPaymentRepository) MarkSucceeded(ctx context.Context, id, providerPaymentID, signature string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status != models.PaymentStatusPending {
		return nil, ErrConflict
	}
	for _, other := range r.payments {
		if other.ProviderOrderID == p.ProviderOrderID && other.Status == models.PaymentStatusSuccess {
			return nil, ErrConflict
		}
	}
	p.Status = models.PaymentStatusSuccess
	p.ProviderPaymentID = providerPaymentID
	p.Signature = signature
	p.UpdatedAt = time.Now().UTC()
	return clonePayment(p), nil
}

func (r *MemoryPaymentRepository) MarkFailed(ctx context.Context, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status != models.PaymentStatusPending {
		return nil, ErrConflict
	}
	p.Status = models.PaymentStatusFailed
	p.UpdatedAt = time.Now().UTC()
	return clonePayment(p), nil
}

func (r *MemoryPaymentRepository) MarkCompletionPending(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return ErrNotFound
	}
	p.CompletionPending = true
	return nil
}

func (r *MemoryPaymentRepository) ClaimCompletionPending(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return false, ErrNotFound
	}
	if !p.CompletionPending {
		return false, nil
	}
	p.CompletionPending = false
	return true, nil
}

// Put stores a payment as-is, including records with missing optional fields.
func (r *MemoryPaymentRepository) Put(p *models.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = clonePayment(p)
}

func (r *MemoryPaymentRepository) find(providerOrderID string, match func(*models.Payment) bool) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *models.Payment
	for _, p := range r.payments {
		if p.ProviderOrderID != providerOrderID || !match(p) {
			continue
		}
		if best == nil || p.CreatedAt.After(best.CreatedAt) {
			best = p
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return clonePayment(best), nil
}

func clonePayment(p *models.Payment) *models.Payment {
	c := *p
	if p.Price != nil {
		price := *p.Price
		c.Price = &price
	}
	return &c
}
