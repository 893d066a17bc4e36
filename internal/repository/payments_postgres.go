package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

const paymentColumns = `id, order_id, user_id, provider_order_id, provider_payment_id,
	signature, status, amount, currency, completion_pending, created_at, updated_at`

// pgxQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresPaymentRepository implements PaymentRepository on a pgx pool.
type PostgresPaymentRepository struct {
	db     pgxQuerier
	logger *logging.LoggerV2
}

func NewPostgresPaymentRepository(db pgxQuerier, logger *logging.LoggerV2) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db, logger: logger}
}

func (r *PostgresPaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	var amount *int64
	var currency *string
	if p.Price != nil {
		amount, currency = &p.Price.Amount, &p.Price.Currency
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, nullString(p.OrderID), nullString(p.UserID), p.ProviderOrderID,
		nullString(p.ProviderPaymentID), nullString(p.Signature), p.Status,
		amount, currency, p.CompletionPending, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create payment", logging.Fields{"payment_id": p.ID, "error": err.Error()})
		return err
	}
	r.logger.Info("Payment created", logging.Fields{
		"payment_id":        p.ID,
		"provider_order_id": p.ProviderOrderID,
	})
	return nil
}

func (r *PostgresPaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	return r.one(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *PostgresPaymentRepository) FindPendingByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Payment, error) {
	return r.one(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE provider_order_id = $1 AND status = 'PENDING'
		ORDER BY created_at DESC LIMIT 1`, providerOrderID)
}

// FindLatestByProviderOrderID prefers a SUCCESS row, then the newest row.
func (r *PostgresPaymentRepository) FindLatestByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Payment, error) {
	return r.one(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE provider_order_id = $1
		ORDER BY (status = 'SUCCESS') DESC, created_at DESC LIMIT 1`, providerOrderID)
}

// MarkSucceeded is a compare-and-swap on status = PENDING. A unique-index
// violation means another payment for the provider order already succeeded.
func (r *PostgresPaymentRepository) MarkSucceeded(ctx context.Context, id, providerPaymentID, signature string) (*models.Payment, error) {
	p, err := r.one(ctx, `
		UPDATE payments
		SET status = 'SUCCESS', provider_payment_id = $2, signature = $3, updated_at = $4
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+paymentColumns, id, providerPaymentID, signature, time.Now().UTC())
	if errors.Is(err, ErrNotFound) || isUniqueViolation(err) {
		return nil, ErrConflict
	}
	return p, err
}

func (r *PostgresPaymentRepository) MarkFailed(ctx context.Context, id string) (*models.Payment, error) {
	p, err := r.one(ctx, `
		UPDATE payments SET status = 'FAILED', updated_at = $2
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+paymentColumns, id, time.Now().UTC())
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConflict
	}
	return p, err
}

func (r *PostgresPaymentRepository) MarkCompletionPending(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments SET completion_pending = true, updated_at = $2
		WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to flag payment completion", logging.Fields{"payment_id": id, "error": err.Error()})
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimCompletionPending is a compare-and-swap on completion_pending = true.
func (r *PostgresPaymentRepository) ClaimCompletionPending(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments SET completion_pending = false, updated_at = $2
		WHERE id = $1 AND completion_pending`, id, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to claim payment completion", logging.Fields{"payment_id": id, "error": err.Error()})
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresPaymentRepository) one(ctx context.Context, query string, args ...any) (*models.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil && !isUniqueViolation(err) {
		r.logger.Error("Payment query failed", logging.Fields{"error": err.Error()})
	}
	return p, err
}

// scanPayment tolerates NULL order, user, provider payment id, signature and price.
func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	var orderID, userID, providerPaymentID, signature, currency *string
	var amount *int64

	err := row.Scan(
		&p.ID, &orderID, &userID, &p.ProviderOrderID, &providerPaymentID,
		&signature, &p.Status, &amount, &currency, &p.CompletionPending, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.OrderID = deref(orderID)
	p.UserID = deref(userID)
	p.ProviderPaymentID = deref(providerPaymentID)
	p.Signature = deref(signature)
	if amount != nil || currency != nil {
		p.Price = &models.PaymentPrice{Currency: deref(currency)}
		if amount != nil {
			p.Price.Amount = *amount
		}
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
