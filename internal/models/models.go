package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountKind selects how a discount code's value is interpreted
type DiscountKind string

const (
	DiscountPercentage  DiscountKind = "percentage"
	DiscountFixedAmount DiscountKind = "fixed_amount"
)

// Valid reports whether the kind is one the engine can compute
func (k DiscountKind) Valid() bool {
	return k == DiscountPercentage || k == DiscountFixedAmount
}

// DiscountCode is an administrator-managed promotional code.
// TimesUsed never exceeds UsageLimit and is never decremented.
type DiscountCode struct {
	ID              int64           `db:"id" json:"id"`
	Code            string          `db:"code" json:"code"`
	Description     string          `db:"description" json:"description"`
	Kind            DiscountKind    `db:"discount_type" json:"discount_type"`
	Value           decimal.Decimal `db:"discount_value" json:"discount_value"`
	StartDate       time.Time       `db:"start_date" json:"start_date"`
	EndDate         time.Time       `db:"end_date" json:"end_date"`
	UsageLimit      int             `db:"usage_limit" json:"usage_limit"`
	TimesUsed       int             `db:"times_used" json:"times_used"`
	MinimumPurchase decimal.Decimal `db:"minimum_purchase" json:"minimum_purchase"`
	IsActive        bool            `db:"is_active" json:"is_active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Product represents a product in the catalog
type Product struct {
	ID        int64           `db:"id" json:"id"`
	SKU       string          `db:"sku" json:"sku"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Variant adjusts the base product price for a selected option
type Variant struct {
	ID              int64           `db:"id" json:"id"`
	ProductID       int64           `db:"product_id" json:"product_id"`
	Name            string          `db:"name" json:"name"`
	SKU             string          `db:"sku" json:"sku"`
	PriceAdjustment decimal.Decimal `db:"price_adjustment" json:"price_adjustment"`
}

// Customer is a registered storefront user
type Customer struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order represents a completed checkout
type Order struct {
	ID             int64           `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	DiscountCode   *string         `db:"discount_code" json:"discount_code,omitempty"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	TotalPrice     decimal.Decimal `db:"total_price" json:"total_price"`
	Status         string          `db:"status" json:"status"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem represents items in an order
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	VariantID *int64          `db:"variant_id" json:"variant_id,omitempty"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusFailed    = "FAILED"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// VisitorSession is the per-visitor browsing state used for bounce attribution.
// It is written only by its own visitor's request sequence.
type VisitorSession struct {
	SessionID       string    `json:"session_id"`
	VisitorID       string    `json:"visitor_id"`
	Date            time.Time `json:"date"`
	SessionStart    time.Time `json:"session_start"`
	LastActivity    time.Time `json:"last_activity"`
	ReferralSource  string    `json:"referral_source,omitempty"`
	PagesVisited    []string  `json:"pages_visited"`
	BounceReverted  bool      `json:"bounce_reverted"`
	ProcessedBounce bool      `json:"processed_bounce"`
}

// HasVisited reports whether path is already in the session's page list
func (s *VisitorSession) HasVisited(path string) bool {
	for _, p := range s.PagesVisited {
		if p == path {
			return true
		}
	}
	return false
}

// UserSegment is the behavioural bucket assigned by the segment job
type UserSegment struct {
	UserID            int64           `db:"user_id" json:"user_id"`
	SegmentType       string          `db:"segment_type" json:"segment_type"`
	PurchaseFrequency float64         `db:"purchase_frequency" json:"purchase_frequency"`
	AverageOrderValue decimal.Decimal `db:"average_order_value" json:"average_order_value"`
	LastActivity      *time.Time      `db:"last_activity" json:"last_activity,omitempty"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// Segment types
const (
	SegmentNew             = "new"
	SegmentInactive        = "inactive"
	SegmentFrequentBuyer   = "frequent_buyer"
	SegmentHighSpender     = "high_spender"
	SegmentBudgetConscious = "budget_conscious"
)

// UserOrderStats summarizes one customer's order history for segmentation
type UserOrderStats struct {
	UserID            int64           `db:"user_id"`
	OrderCount        int             `db:"order_count"`
	RecentOrders      int             `db:"recent_orders"`
	LongTermOrders    int             `db:"long_term_orders"`
	AverageOrderValue decimal.Decimal `db:"average_order_value"`
	LastOrderAt       *time.Time      `db:"last_order_at"`
}
