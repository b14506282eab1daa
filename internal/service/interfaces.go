package service

import (
	"context"
	"errors"
	"time"

	"storefront-service/internal/models"
)

var (
	ErrDiscountNotFound        = errors.New("discount code not found")
	ErrDiscountExpired         = errors.New("discount code is not currently valid")
	ErrDiscountLimitReached    = errors.New("discount code has reached its usage limit")
	ErrDiscountBelowMinimum    = errors.New("cart total is below the discount minimum purchase")
	ErrDiscountAlreadyRedeemed = errors.New("order already redeemed a discount code")
	ErrInvalidDiscount         = errors.New("invalid discount code definition")
	ErrEmptyCart               = errors.New("cart is empty")
	ErrProductNotFound         = errors.New("product not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrCustomerExists          = errors.New("customer already exists")
	ErrProductExists           = errors.New("product already exists")
	ErrInvalidProduct          = errors.New("invalid product")
	ErrInvalidEmail            = errors.New("invalid email")
	ErrInvalidCartItem         = errors.New("invalid cart item")
)

// The store interfaces below are satisfied by *store.Store.

type DiscountStore interface {
	CreateDiscountCode(ctx context.Context, dc *models.DiscountCode) error
	GetDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error)
	ConsumeDiscountCode(ctx context.Context, code string, orderID int64, check func(*models.DiscountCode) error) error
}

type CatalogStore interface {
	CreateProduct(ctx context.Context, product *models.Product, variants []models.Variant) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetVariant(ctx context.Context, productID, variantID int64) (*models.Variant, error)
	CreateCustomer(ctx context.Context, customer *models.Customer) error
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
}

type AggregateStore interface {
	IncrementSales(ctx context.Context, day time.Time, d models.SalesDelta) error
	IncrementCustomers(ctx context.Context, day time.Time, d models.CustomerDelta) error
	IncrementProduct(ctx context.Context, productID int64, day time.Time, d models.ProductDelta) error
	IncrementMarketing(ctx context.Context, code string, day time.Time, d models.MarketingDelta) error
	HasPriorOrder(ctx context.Context, userID, orderID int64) (bool, error)
}

type SessionStore interface {
	GetLatestSession(ctx context.Context, visitorID string) (*models.VisitorSession, error)
	CreateSession(ctx context.Context, session *models.VisitorSession) error
	TouchSession(ctx context.Context, sessionID, path string, at time.Time) (bool, error)
}

type BounceStore interface {
	ListBounceCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.VisitorSession, error)
	FinalizeBounce(ctx context.Context, sessionID string) (bool, error)
}

type TrafficStore interface {
	ApplyTrafficFlush(ctx context.Context, d models.TrafficDelta) (bool, error)
}

type SegmentStore interface {
	ListCustomerOrderStats(ctx context.Context, recentSince, longTermSince time.Time) ([]models.UserOrderStats, error)
	UpsertUserSegment(ctx context.Context, seg models.UserSegment) error
}

type ReportStore interface {
	ListSales(ctx context.Context, since time.Time) ([]models.SalesAggregate, error)
	ListMonthlySales(ctx context.Context, since time.Time, months int) ([]models.MonthlySales, error)
	ListCustomerAggregates(ctx context.Context, since time.Time) ([]models.CustomerAggregate, error)
	ListProductPerformance(ctx context.Context, since time.Time, limit int) ([]models.ProductPerformance, error)
	ListMarketing(ctx context.Context, since time.Time) ([]models.MarketingAggregate, error)
	ListDiscountSummary(ctx context.Context, since time.Time) ([]models.DiscountSummary, error)
	ListTraffic(ctx context.Context, since time.Time) ([]models.TrafficAggregate, error)
}

// TrafficCounters is the fast per-day counter store fed by page visits and
// drained by the flush job. Days are models.DayKey strings.
type TrafficCounters interface {
	IncrVisits(ctx context.Context, day string) error
	AddVisitor(ctx context.Context, day, visitorID string) (bool, error)
	IncrBounce(ctx context.Context, day string) error
	IncrBounceReversal(ctx context.Context, day string) error
	IncrReferral(ctx context.Context, day, source string) error
	Days(ctx context.Context) ([]string, error)
	Drain(ctx context.Context, day string) (*models.TrafficDelta, error)
	AckDrain(ctx context.Context, day, token string) error
	Forget(ctx context.Context, day string) error
}

// EventSink receives storefront events for analytics. Implementations never
// fail the caller.
type EventSink interface {
	Record(ctx context.Context, event models.Event)
}

type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

type ReportCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}
