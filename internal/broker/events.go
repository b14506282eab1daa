package broker

import (
	"context"
	"errors"
	"fmt"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessagePublisher writes one encoded message under a partition key
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// AnalyticsPublisher encodes storefront events and hands them to the broker.
// It satisfies the services' event sink: publish failures are logged, never
// returned to the request that produced the event.
type AnalyticsPublisher struct {
	publisher MessagePublisher
	logger    *zap.Logger
}

// NewAnalyticsPublisher creates a new analytics publisher
func NewAnalyticsPublisher(publisher MessagePublisher) *AnalyticsPublisher {
	return &AnalyticsPublisher{publisher: publisher, logger: util.GetLogger()}
}

// Record publishes the event
func (ep *AnalyticsPublisher) Record(ctx context.Context, event models.Event) {
	if err := ep.Publish(ctx, event); err != nil {
		ep.logger.Error("Failed to publish analytics event", zap.Error(err))
	}
}

// Publish encodes the event into its envelope and publishes it keyed by the
// entity it is about.
func (ep *AnalyticsPublisher) Publish(ctx context.Context, event models.Event) error {
	base, data, err := models.EncodeEvent(event)
	if err != nil {
		return err
	}

	if err := ep.publisher.Publish(ctx, PartitionKey(event), data); err != nil {
		util.AnalyticsEventFailuresTotal.WithLabelValues(base.EventType, "publish").Inc()
		return fmt.Errorf("failed to publish %s %s: %w", base.EventType, base.EventID, err)
	}
	return nil
}

// PartitionKey keeps the events of one order, user, product, visitor or
// code in publish order.
func PartitionKey(event models.Event) string {
	switch e := event.(type) {
	case models.OrderPlaced:
		return fmt.Sprintf("order-%d", e.OrderID)
	case models.UserSignedUp:
		return fmt.Sprintf("user-%d", e.UserID)
	case models.ProductViewed:
		return fmt.Sprintf("product-%d", e.ProductID)
	case models.ProductAddedToCart:
		return fmt.Sprintf("product-%d", e.ProductID)
	case models.PageVisited:
		return "visitor-" + e.VisitorID
	case models.DiscountApplied:
		return "discount-" + e.Code
	default:
		return event.Type()
	}
}

// EventHandlerFunc receives one decoded event
type EventHandlerFunc func(ctx context.Context, base models.BaseEvent, event models.Event) error

// EventHandler decodes incoming messages and passes them on
type EventHandler struct {
	handle EventHandlerFunc
	logger *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(handle EventHandlerFunc) *EventHandler {
	return &EventHandler{handle: handle, logger: util.GetLogger()}
}

// HandleMessage decodes msg. Messages that can never be decoded are logged
// and dropped so they do not block the partition.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	base, event, err := models.DecodeEvent(msg.Value)
	if err != nil {
		if errors.Is(err, models.ErrMalformedEvent) || errors.Is(err, models.ErrUnknownEventType) {
			util.AnalyticsEventFailuresTotal.WithLabelValues(base.EventType, "undecodable").Inc()
			eh.logger.Warn("Dropping undecodable event",
				zap.String("key", string(msg.Key)),
				zap.String("event_id", base.EventID),
				zap.Error(err))
			return nil
		}
		return err
	}

	eh.logger.Debug("Handling event",
		zap.String("type", base.EventType),
		zap.String("event_id", base.EventID))

	return eh.handle(ctx, base, event)
}
