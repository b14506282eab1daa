package store

import (
	"context"
	"time"

	"storefront-service/internal/models"
)

func (s *Store) ListSales(ctx context.Context, since time.Time) ([]models.SalesAggregate, error) {
	var rows []models.SalesAggregate
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM sales_aggregates WHERE date >= $1 ORDER BY date", models.DayKey(since))
	return rows, err
}

func (s *Store) ListMonthlySales(ctx context.Context, since time.Time, months int) ([]models.MonthlySales, error) {
	var rows []models.MonthlySales
	err := s.db.SelectContext(ctx, &rows, `
		SELECT date_trunc('month', date)::date AS month,
			SUM(total_revenue) AS revenue,
			SUM(total_orders) AS orders
		FROM sales_aggregates
		WHERE date >= $1
		GROUP BY 1
		ORDER BY 1 DESC
		LIMIT $2`, models.DayKey(since), months)
	return rows, err
}

func (s *Store) ListCustomerAggregates(ctx context.Context, since time.Time) ([]models.CustomerAggregate, error) {
	var rows []models.CustomerAggregate
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM customer_aggregates WHERE date >= $1 ORDER BY date", models.DayKey(since))
	return rows, err
}

// ListProductPerformance sums product counters since the given day, best sellers first.
// A limit of zero returns every product.
func (s *Store) ListProductPerformance(ctx context.Context, since time.Time, limit int) ([]models.ProductPerformance, error) {
	var rows []models.ProductPerformance
	query := `
		SELECT p.id AS product_id, p.name,
			SUM(a.views) AS total_views,
			SUM(a.add_to_cart_count) AS total_add_to_cart,
			SUM(a.purchase_count) AS total_purchases
		FROM product_aggregates a
		JOIN products p ON p.id = a.product_id
		WHERE a.date >= $1
		GROUP BY p.id, p.name
		ORDER BY total_purchases DESC, p.id`
	args := []interface{}{models.DayKey(since)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	err := s.db.SelectContext(ctx, &rows, query, args...)
	return rows, err
}

func (s *Store) ListMarketing(ctx context.Context, since time.Time) ([]models.MarketingAggregate, error) {
	var rows []models.MarketingAggregate
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM marketing_aggregates WHERE date >= $1 ORDER BY date, discount_code", models.DayKey(since))
	return rows, err
}

func (s *Store) ListDiscountSummary(ctx context.Context, since time.Time) ([]models.DiscountSummary, error) {
	var rows []models.DiscountSummary
	err := s.db.SelectContext(ctx, &rows, `
		SELECT discount_code,
			SUM(clicks) AS total_clicks,
			SUM(conversions) AS total_conversions,
			SUM(revenue_generated) AS total_revenue
		FROM marketing_aggregates
		WHERE date >= $1
		GROUP BY discount_code
		ORDER BY total_revenue DESC, discount_code`, models.DayKey(since))
	return rows, err
}

func (s *Store) ListTraffic(ctx context.Context, since time.Time) ([]models.TrafficAggregate, error) {
	var rows []models.TrafficAggregate
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM website_traffic WHERE date >= $1 ORDER BY date", models.DayKey(since))
	return rows, err
}
