package store

import (
	"context"
	"fmt"
	"time"

	"storefront-service/internal/models"
)

// Each increment is a single upsert. The insert branch carries the values a
// fresh row would hold after the delta; the conflict branch adds the delta to
// the stored counters and recomputes derived columns from the summed values.

// IncrementSales applies a sales delta to the row for day
func (s *Store) IncrementSales(ctx context.Context, day time.Time, d models.SalesDelta) error {
	var fresh models.SalesAggregate
	fresh.Add(d)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales_aggregates AS t
			(date, total_revenue, total_orders, average_order_value, discount_usage_count, discount_total_amount, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (date) DO UPDATE SET
			total_revenue = t.total_revenue + EXCLUDED.total_revenue,
			total_orders = t.total_orders + EXCLUDED.total_orders,
			average_order_value = CASE
				WHEN t.total_orders + EXCLUDED.total_orders > 0
				THEN ROUND((t.total_revenue + EXCLUDED.total_revenue) / (t.total_orders + EXCLUDED.total_orders), 2)
				ELSE 0 END,
			discount_usage_count = t.discount_usage_count + EXCLUDED.discount_usage_count,
			discount_total_amount = t.discount_total_amount + EXCLUDED.discount_total_amount,
			updated_at = NOW()`,
		models.DayKey(day), fresh.TotalRevenue, fresh.TotalOrders, fresh.AverageOrderValue,
		fresh.DiscountUsageCount, fresh.DiscountTotalAmount)
	if err != nil {
		return fmt.Errorf("failed to increment sales aggregate: %w", err)
	}
	return nil
}

// IncrementCustomers applies a customer delta to the row for day
func (s *Store) IncrementCustomers(ctx context.Context, day time.Time, d models.CustomerDelta) error {
	var fresh models.CustomerAggregate
	fresh.Add(d)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customer_aggregates AS t
			(date, new_customers, returning_customers, total_customers, retention_rate, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (date) DO UPDATE SET
			new_customers = t.new_customers + EXCLUDED.new_customers,
			returning_customers = t.returning_customers + EXCLUDED.returning_customers,
			total_customers = t.new_customers + EXCLUDED.new_customers
				+ t.returning_customers + EXCLUDED.returning_customers,
			retention_rate = CASE
				WHEN t.new_customers + EXCLUDED.new_customers + t.returning_customers + EXCLUDED.returning_customers > 0
				THEN (t.returning_customers + EXCLUDED.returning_customers)::float8
					/ (t.new_customers + EXCLUDED.new_customers + t.returning_customers + EXCLUDED.returning_customers) * 100
				ELSE 0 END,
			updated_at = NOW()`,
		models.DayKey(day), fresh.NewCustomers, fresh.ReturningCustomers, fresh.TotalCustomers, fresh.RetentionRate)
	if err != nil {
		return fmt.Errorf("failed to increment customer aggregate: %w", err)
	}
	return nil
}

// IncrementProduct applies a product delta to the (product, day) row
func (s *Store) IncrementProduct(ctx context.Context, productID int64, day time.Time, d models.ProductDelta) error {
	var fresh models.ProductAggregate
	fresh.Add(d)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_aggregates AS t
			(product_id, date, views, add_to_cart_count, purchase_count, conversion_rate, abandonment_rate, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (product_id, date) DO UPDATE SET
			views = t.views + EXCLUDED.views,
			add_to_cart_count = t.add_to_cart_count + EXCLUDED.add_to_cart_count,
			purchase_count = t.purchase_count + EXCLUDED.purchase_count,
			conversion_rate = CASE
				WHEN t.views + EXCLUDED.views > 0
				THEN (t.purchase_count + EXCLUDED.purchase_count)::float8 / (t.views + EXCLUDED.views) * 100
				ELSE 0 END,
			abandonment_rate = CASE
				WHEN t.add_to_cart_count + EXCLUDED.add_to_cart_count > 0
				THEN GREATEST(0, (t.add_to_cart_count + EXCLUDED.add_to_cart_count) - (t.purchase_count + EXCLUDED.purchase_count))::float8
					/ (t.add_to_cart_count + EXCLUDED.add_to_cart_count) * 100
				ELSE 0 END,
			updated_at = NOW()`,
		productID, models.DayKey(day), fresh.Views, fresh.AddToCartCount, fresh.PurchaseCount,
		fresh.ConversionRate, fresh.AbandonmentRate)
	if err != nil {
		return fmt.Errorf("failed to increment product aggregate: %w", err)
	}
	return nil
}

// IncrementMarketing applies a marketing delta to the (code, day) row
func (s *Store) IncrementMarketing(ctx context.Context, code string, day time.Time, d models.MarketingDelta) error {
	var fresh models.MarketingAggregate
	fresh.Add(d)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO marketing_aggregates AS t
			(discount_code, date, clicks, conversions, conversion_rate, revenue_generated, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (discount_code, date) DO UPDATE SET
			clicks = t.clicks + EXCLUDED.clicks,
			conversions = t.conversions + EXCLUDED.conversions,
			conversion_rate = CASE
				WHEN t.clicks + EXCLUDED.clicks > 0
				THEN (t.conversions + EXCLUDED.conversions)::float8 / (t.clicks + EXCLUDED.clicks) * 100
				ELSE 0 END,
			revenue_generated = t.revenue_generated + EXCLUDED.revenue_generated,
			updated_at = NOW()`,
		code, models.DayKey(day), fresh.Clicks, fresh.Conversions, fresh.ConversionRate, fresh.RevenueGenerated)
	if err != nil {
		return fmt.Errorf("failed to increment marketing aggregate: %w", err)
	}
	return nil
}
