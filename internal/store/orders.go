package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, user_id, subtotal, discount_code, discount_amount, total_price, status,
	COALESCE(idempotency_key, '') AS idempotency_key, created_at, updated_at`

// CreateOrder persists an order and its items in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO orders (user_id, subtotal, discount_code, discount_amount, total_price, status, idempotency_key)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
			RETURNING id, created_at, updated_at`

		err := tx.GetContext(ctx, order, query,
			order.UserID, order.Subtotal, order.DiscountCode, order.DiscountAmount,
			order.TotalPrice, order.Status, order.IdempotencyKey)
		if isUniqueViolation(err) {
			return fmt.Errorf("order with idempotency key %s: %w", order.IdempotencyKey, ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for i := range items {
			items[i].OrderID = order.ID
			if err := createOrderItem(ctx, tx, &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func createOrderItem(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, variant_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	if err := tx.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.VariantID, item.Quantity, item.UnitPrice); err != nil {
		return fmt.Errorf("failed to insert order item for product %d: %w", item.ProductID, err)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// HasPriorOrder reports whether the user placed a non-failed order before orderID
func (s *Store) HasPriorOrder(ctx context.Context, userID, orderID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM orders
			WHERE user_id = $1 AND id < $2 AND status <> $3
		)`, userID, orderID, models.OrderStatusFailed)
	return exists, err
}
