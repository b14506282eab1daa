package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RecorderOptions controls how customers are counted as new. With both
// enabled a customer who signs up and orders on the same day is counted as
// new twice, once per event.
type RecorderOptions struct {
	CountSignupAsNew     bool
	CountFirstOrderAsNew bool
}

// AnalyticsRecorder applies storefront events to the daily aggregates.
// Every write is an atomic increment in the store, so concurrent events for
// the same day never lose updates.
type AnalyticsRecorder struct {
	aggregates AggregateStore
	traffic    *TrafficTracker
	opts       RecorderOptions
	now        func() time.Time
	logger     *zap.Logger
}

// NewAnalyticsRecorder creates a recorder. traffic may be nil, in which case
// page visits are dropped.
func NewAnalyticsRecorder(aggregates AggregateStore, traffic *TrafficTracker, opts RecorderOptions) *AnalyticsRecorder {
	return &AnalyticsRecorder{
		aggregates: aggregates,
		traffic:    traffic,
		opts:       opts,
		now:        time.Now,
		logger:     util.GetLogger(),
	}
}

// Record applies the event and logs any failure. Analytics never fail the caller.
func (r *AnalyticsRecorder) Record(ctx context.Context, event models.Event) {
	if err := r.Apply(ctx, event); err != nil {
		kind := "unknown"
		if event != nil {
			kind = event.Type()
		}
		r.logger.Warn("Failed to record analytics event", zap.String("kind", kind), zap.Error(err))
	}
}

// Apply dispatches the event to its aggregate updates and returns what failed
func (r *AnalyticsRecorder) Apply(ctx context.Context, event models.Event) error {
	if event == nil {
		return fmt.Errorf("%w: nil event", models.ErrMalformedEvent)
	}
	kind := event.Type()

	ctx, span := util.StartSpan(ctx, "AnalyticsRecorder.Apply", attribute.String("event.kind", kind))
	defer span.End()

	if err := event.Validate(); err != nil {
		util.AnalyticsEventFailuresTotal.WithLabelValues(kind, "malformed").Inc()
		return err
	}

	day := models.Day(event.OccurredAt())
	if event.OccurredAt().IsZero() {
		day = models.Day(r.now())
	}

	var err error
	switch e := event.(type) {
	case models.OrderPlaced:
		err = r.orderPlaced(ctx, day, e)
	case models.UserSignedUp:
		if r.opts.CountSignupAsNew {
			err = r.aggregates.IncrementCustomers(ctx, day, models.CustomerDelta{New: 1})
		}
	case models.ProductViewed:
		err = r.aggregates.IncrementProduct(ctx, e.ProductID, day, models.ProductDelta{Views: 1})
	case models.ProductAddedToCart:
		// counted in units, like purchases
		units := int64(e.Quantity)
		if units <= 0 {
			units = 1
		}
		err = r.aggregates.IncrementProduct(ctx, e.ProductID, day, models.ProductDelta{AddToCart: units})
	case models.DiscountApplied:
		err = r.aggregates.IncrementMarketing(ctx, e.Code, day, models.MarketingDelta{Clicks: 1})
	case models.PageVisited:
		if r.traffic == nil {
			util.AnalyticsEventFailuresTotal.WithLabelValues(kind, "no_tracker").Inc()
			return nil
		}
		err = r.traffic.Track(ctx, e)
	default:
		err = fmt.Errorf("%w: %T", models.ErrUnknownEventType, event)
	}

	if err != nil {
		util.AnalyticsEventFailuresTotal.WithLabelValues(kind, "apply").Inc()
		util.SpanError(span, err)
		return err
	}
	util.AnalyticsEventsTotal.WithLabelValues(kind).Inc()
	return nil
}

func (r *AnalyticsRecorder) orderPlaced(ctx context.Context, day time.Time, e models.OrderPlaced) error {
	var errs []error

	sales := models.SalesDelta{Orders: 1, Revenue: e.Total}
	if e.DiscountCode != "" {
		sales.DiscountUses = 1
		sales.DiscountAmount = e.DiscountAmount
	}
	errs = append(errs, r.aggregates.IncrementSales(ctx, day, sales))

	prior, err := r.aggregates.HasPriorOrder(ctx, e.UserID, e.OrderID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to check prior orders: %w", err))
	} else if prior {
		errs = append(errs, r.aggregates.IncrementCustomers(ctx, day, models.CustomerDelta{Returning: 1}))
	} else if r.opts.CountFirstOrderAsNew {
		errs = append(errs, r.aggregates.IncrementCustomers(ctx, day, models.CustomerDelta{New: 1}))
	}

	purchases := make(map[int64]int64, len(e.Items))
	order := make([]int64, 0, len(e.Items))
	for _, item := range e.Items {
		if _, ok := purchases[item.ProductID]; !ok {
			order = append(order, item.ProductID)
		}
		purchases[item.ProductID] += int64(item.Quantity)
	}
	for _, productID := range order {
		errs = append(errs, r.aggregates.IncrementProduct(ctx, productID, day,
			models.ProductDelta{Purchases: purchases[productID]}))
	}

	if e.DiscountCode != "" {
		errs = append(errs, r.aggregates.IncrementMarketing(ctx, e.DiscountCode, day,
			models.MarketingDelta{Conversions: 1, Revenue: e.Total}))
	}

	return errors.Join(errs...)
}
