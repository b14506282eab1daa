package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MonthlySales struct {
	Month   time.Time       `db:"month" json:"month"`
	Revenue decimal.Decimal `db:"revenue" json:"revenue"`
	Orders  int64           `db:"orders" json:"orders"`
}

type ProductPerformance struct {
	ProductID      int64  `db:"product_id" json:"product_id"`
	Name           string `db:"name" json:"name"`
	TotalViews     int64  `db:"total_views" json:"total_views"`
	TotalAddToCart int64  `db:"total_add_to_cart" json:"total_add_to_cart"`
	TotalPurchases int64  `db:"total_purchases" json:"total_purchases"`
}

type DiscountSummary struct {
	DiscountCode     string          `db:"discount_code" json:"discount_code"`
	TotalClicks      int64           `db:"total_clicks" json:"total_clicks"`
	TotalConversions int64           `db:"total_conversions" json:"total_conversions"`
	TotalRevenue     decimal.Decimal `db:"total_revenue" json:"total_revenue"`
}

// OverviewReport is the 30 day dashboard summary
type OverviewReport struct {
	Since              time.Time            `json:"since"`
	TotalRevenue       decimal.Decimal      `json:"total_revenue"`
	TotalOrders        int64                `json:"total_orders"`
	NewCustomers       int64                `json:"new_customers"`
	ReturningCustomers int64                `json:"returning_customers"`
	TopProducts        []ProductPerformance `json:"top_products"`
	Sales              []SalesAggregate     `json:"sales"`
	Customers          []CustomerAggregate  `json:"customers"`
}

type SalesReport struct {
	Since   time.Time        `json:"since"`
	Daily   []SalesAggregate `json:"daily"`
	Monthly []MonthlySales   `json:"monthly"`
}

type CustomerReport struct {
	Since                   time.Time           `json:"since"`
	Daily                   []CustomerAggregate `json:"daily"`
	TotalNewCustomers       int64               `json:"total_new_customers"`
	TotalReturningCustomers int64               `json:"total_returning_customers"`
	AverageRetentionRate    float64             `json:"average_retention_rate"`
}

type ProductReport struct {
	Since    time.Time            `json:"since"`
	Products []ProductPerformance `json:"products"`
}

type MarketingReport struct {
	Since     time.Time            `json:"since"`
	Daily     []MarketingAggregate `json:"daily"`
	Discounts []DiscountSummary    `json:"discounts"`
}

type TrafficReport struct {
	Since time.Time          `json:"since"`
	Daily []TrafficAggregate `json:"daily"`
}
