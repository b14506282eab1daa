package store

import (
	"context"
	"fmt"
	"time"

	"storefront-service/internal/models"
)

// ListCustomerOrderStats summarizes completed orders for every active customer.
// recentSince and longTermSince bound the short and long activity windows.
func (s *Store) ListCustomerOrderStats(ctx context.Context, recentSince, longTermSince time.Time) ([]models.UserOrderStats, error) {
	var stats []models.UserOrderStats
	err := s.db.SelectContext(ctx, &stats, `
		SELECT c.id AS user_id,
			COUNT(o.id) AS order_count,
			COUNT(o.id) FILTER (WHERE o.created_at >= $1) AS recent_orders,
			COUNT(o.id) FILTER (WHERE o.created_at >= $2) AS long_term_orders,
			COALESCE(ROUND(AVG(o.total_price), 2), 0) AS average_order_value,
			MAX(o.created_at) AS last_order_at
		FROM customers c
		LEFT JOIN orders o ON o.user_id = c.id AND o.status = $3
		WHERE c.is_active
		GROUP BY c.id
		ORDER BY c.id`,
		recentSince, longTermSince, models.OrderStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list customer order stats: %w", err)
	}
	return stats, nil
}

// UpsertUserSegment stores the segment assigned to a customer
func (s *Store) UpsertUserSegment(ctx context.Context, seg models.UserSegment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_segments (user_id, segment_type, purchase_frequency, average_order_value, last_activity, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			segment_type = EXCLUDED.segment_type,
			purchase_frequency = EXCLUDED.purchase_frequency,
			average_order_value = EXCLUDED.average_order_value,
			last_activity = EXCLUDED.last_activity,
			updated_at = NOW()`,
		seg.UserID, seg.SegmentType, seg.PurchaseFrequency, seg.AverageOrderValue, seg.LastActivity)
	if err != nil {
		return fmt.Errorf("failed to upsert segment for user %d: %w", seg.UserID, err)
	}
	return nil
}
