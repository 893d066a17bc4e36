package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

const orderColumns = `id, user_id, status, items, total_amount, total_currency,
	shipping_address, created_at, updated_at`

// PostgresOrderRepository implements OrderRepository on database/sql + lib/pq.
type PostgresOrderRepository struct {
	db     *sql.DB
	logger *logging.LoggerV2
}

func NewPostgresOrderRepository(db *sql.DB, logger *logging.LoggerV2) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an order with its items and address as JSONB.
func (r *PostgresOrderRepository) Create(ctx context.Context, order *models.Order) error {
	r.logger.Debug("Creating order", logging.Fields{"order_id": order.ID, "user_id": order.UserID})

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.Status,
		itemsJSON,
		order.TotalPrice.Amount,
		order.TotalPrice.Currency,
		addressJSON,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create order", logging.Fields{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		return err
	}

	r.logger.Info("Order created", logging.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"total":    order.TotalPrice.Amount.String(),
	})
	return nil
}

// GetByID retrieves an order by id.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to fetch order", logging.Fields{"order_id": id, "error": err.Error()})
		return nil, err
	}
	return order, nil
}

// ListByUser returns one page of the user's orders, newest first, and the total count.
func (r *PostgresOrderRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Order, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list orders", logging.Fields{"user_id": userID, "error": err.Error()})
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]*models.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

// UpdateStatus moves the order to `to` only if its status is one of `from`.
func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, id string, from []models.OrderStatus, to models.OrderStatus) (*models.Order, error) {
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}

	query := `
		UPDATE orders SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4)
		RETURNING ` + orderColumns

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id, to, time.Now().UTC(), pq.Array(sources)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.missOrConflict(ctx, id)
	}
	if err != nil {
		r.logger.Error("Failed to update order status", logging.Fields{"order_id": id, "error": err.Error()})
		return nil, err
	}

	r.logger.Info("Order status updated", logging.Fields{"order_id": id, "status": to})
	return order, nil
}

// UpdateShippingAddress merges the patch into a PENDING order's address.
// JSONB concatenation overwrites only the keys present in the patch.
func (r *PostgresOrderRepository) UpdateShippingAddress(ctx context.Context, id string, patch models.AddressPatch) (*models.Order, error) {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE orders
		SET shipping_address = shipping_address || $2::jsonb, updated_at = $3
		WHERE id = $1 AND status = $4
		RETURNING ` + orderColumns

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id, patchJSON, time.Now().UTC(), models.OrderStatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.missOrConflict(ctx, id)
	}
	if err != nil {
		r.logger.Error("Failed to update shipping address", logging.Fields{"order_id": id, "error": err.Error()})
		return nil, err
	}
	return order, nil
}

func (r *PostgresOrderRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var itemsJSON, addressJSON []byte

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.Status,
		&itemsJSON,
		&order.TotalPrice.Amount,
		&order.TotalPrice.Currency,
		&addressJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, err
	}
	return &order, nil
}
