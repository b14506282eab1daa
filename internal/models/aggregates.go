package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayLayout is the calendar-day format used for counter keys
const DayLayout = "2006-01-02"

// Day truncates t to its UTC calendar day
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey formats the UTC calendar day of t
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDayKey is the inverse of DayKey
func ParseDayKey(key string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, key, time.UTC)
}

// Percentage returns part/whole*100, or 0 when whole is not positive
func Percentage(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// SalesAggregate is the daily sales row
type SalesAggregate struct {
	Date                time.Time       `db:"date" json:"date"`
	TotalRevenue        decimal.Decimal `db:"total_revenue" json:"total_revenue"`
	TotalOrders         int64           `db:"total_orders" json:"total_orders"`
	AverageOrderValue   decimal.Decimal `db:"average_order_value" json:"average_order_value"`
	DiscountUsageCount  int64           `db:"discount_usage_count" json:"discount_usage_count"`
	DiscountTotalAmount decimal.Decimal `db:"discount_total_amount" json:"discount_total_amount"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// SalesDelta is one additive update to a SalesAggregate
type SalesDelta struct {
	Orders         int64
	Revenue        decimal.Decimal
	DiscountUses   int64
	DiscountAmount decimal.Decimal
}

// Add applies d and recomputes the average from the post-increment totals
func (a *SalesAggregate) Add(d SalesDelta) {
	a.TotalOrders += d.Orders
	a.TotalRevenue = a.TotalRevenue.Add(d.Revenue)
	a.DiscountUsageCount += d.DiscountUses
	a.DiscountTotalAmount = a.DiscountTotalAmount.Add(d.DiscountAmount)
	a.AverageOrderValue = decimal.Zero
	if a.TotalOrders > 0 {
		a.AverageOrderValue = a.TotalRevenue.Div(decimal.NewFromInt(a.TotalOrders)).Round(2)
	}
}

// CustomerAggregate is the daily customer row
type CustomerAggregate struct {
	Date               time.Time `db:"date" json:"date"`
	NewCustomers       int64     `db:"new_customers" json:"new_customers"`
	ReturningCustomers int64     `db:"returning_customers" json:"returning_customers"`
	TotalCustomers     int64     `db:"total_customers" json:"total_customers"`
	RetentionRate      float64   `db:"retention_rate" json:"retention_rate"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

type CustomerDelta struct {
	New       int64
	Returning int64
}

func (a *CustomerAggregate) Add(d CustomerDelta) {
	a.NewCustomers += d.New
	a.ReturningCustomers += d.Returning
	a.TotalCustomers = a.NewCustomers + a.ReturningCustomers
	a.RetentionRate = Percentage(a.ReturningCustomers, a.TotalCustomers)
}

// ProductAggregate is the daily per-product row
type ProductAggregate struct {
	ProductID       int64     `db:"product_id" json:"product_id"`
	Date            time.Time `db:"date" json:"date"`
	Views           int64     `db:"views" json:"views"`
	AddToCartCount  int64     `db:"add_to_cart_count" json:"add_to_cart_count"`
	PurchaseCount   int64     `db:"purchase_count" json:"purchase_count"`
	ConversionRate  float64   `db:"conversion_rate" json:"conversion_rate"`
	AbandonmentRate float64   `db:"abandonment_rate" json:"abandonment_rate"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

type ProductDelta struct {
	Views     int64
	AddToCart int64
	Purchases int64
}

func (a *ProductAggregate) Add(d ProductDelta) {
	a.Views += d.Views
	a.AddToCartCount += d.AddToCart
	a.PurchaseCount += d.Purchases
	a.ConversionRate = Percentage(a.PurchaseCount, a.Views)
	abandoned := a.AddToCartCount - a.PurchaseCount
	if abandoned < 0 {
		abandoned = 0
	}
	a.AbandonmentRate = Percentage(abandoned, a.AddToCartCount)
}

// MarketingAggregate is the daily per-discount-code row
type MarketingAggregate struct {
	DiscountCode     string          `db:"discount_code" json:"discount_code"`
	Date             time.Time       `db:"date" json:"date"`
	Clicks           int64           `db:"clicks" json:"clicks"`
	Conversions      int64           `db:"conversions" json:"conversions"`
	ConversionRate   float64         `db:"conversion_rate" json:"conversion_rate"`
	RevenueGenerated decimal.Decimal `db:"revenue_generated" json:"revenue_generated"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

type MarketingDelta struct {
	Clicks      int64
	Conversions int64
	Revenue     decimal.Decimal
}

func (a *MarketingAggregate) Add(d MarketingDelta) {
	a.Clicks += d.Clicks
	a.Conversions += d.Conversions
	a.RevenueGenerated = a.RevenueGenerated.Add(d.Revenue)
	a.ConversionRate = Percentage(a.Conversions, a.Clicks)
}

// TrafficAggregate is the daily site traffic row. BounceCount holds the
// tentative (first page) bounces net of reversals; ConfirmedBounces holds
// the sessions finalized by the inactivity sweep.
type TrafficAggregate struct {
	Date              time.Time `db:"date" json:"date"`
	TotalVisits       int64     `db:"total_visits" json:"total_visits"`
	UniqueVisitors    int64     `db:"unique_visitors" json:"unique_visitors"`
	BounceCount       int64     `db:"bounce_count" json:"bounce_count"`
	ConfirmedBounces  int64     `db:"confirmed_bounces" json:"confirmed_bounces"`
	BounceRate        float64   `db:"bounce_rate" json:"bounce_rate"`
	TopReferralSource *string   `db:"top_referral_source" json:"top_referral_source,omitempty"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// TrafficDelta is one drained snapshot of the fast traffic counters for a day.
// Token identifies the snapshot so a durable apply happens at most once.
type TrafficDelta struct {
	Token           string           `json:"token"`
	Day             string           `json:"day"`
	Visits          int64            `json:"visits"`
	UniqueVisitors  int64            `json:"unique_visitors"`
	Bounces         int64            `json:"bounces"`
	BounceReversals int64            `json:"bounce_reversals"`
	Referrals       map[string]int64 `json:"referrals"`
}

// IsZero reports whether the snapshot carries no counts
func (d *TrafficDelta) IsZero() bool {
	if d == nil {
		return true
	}
	if d.Visits != 0 || d.UniqueVisitors != 0 || d.Bounces != 0 || d.BounceReversals != 0 {
		return false
	}
	for _, n := range d.Referrals {
		if n != 0 {
			return false
		}
	}
	return true
}

// Add applies a drained snapshot. Bounce count is floored at zero.
func (a *TrafficAggregate) Add(d TrafficDelta) {
	a.TotalVisits += d.Visits
	a.UniqueVisitors += d.UniqueVisitors
	a.BounceCount += d.Bounces - d.BounceReversals
	if a.BounceCount < 0 {
		a.BounceCount = 0
	}
	a.BounceRate = Percentage(a.BounceCount, a.TotalVisits)
}

// ReferralTally is the accumulated visit count for one referral source
type ReferralTally struct {
	Source string `db:"source" json:"source"`
	Visits int64  `db:"visits" json:"visits"`
}
