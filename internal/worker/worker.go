package worker

import (
	"context"
	"errors"
	"fmt"

	"storefront-service/internal/broker"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// EventApplier updates the aggregates for one event
type EventApplier interface {
	Apply(ctx context.Context, event models.Event) error
}

// ProcessedEvents remembers which envelopes were already applied
type ProcessedEvents interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// AnalyticsWorker applies events consumed from the broker to the aggregates
type AnalyticsWorker struct {
	consumer  *broker.Consumer
	handler   *broker.EventHandler
	recorder  EventApplier
	processed ProcessedEvents
	logger    *zap.Logger
}

// NewAnalyticsWorker creates a new analytics worker
func NewAnalyticsWorker(consumer *broker.Consumer, recorder EventApplier, processed ProcessedEvents) *AnalyticsWorker {
	w := &AnalyticsWorker{
		consumer:  consumer,
		recorder:  recorder,
		processed: processed,
		logger:    util.GetLogger(),
	}
	w.handler = broker.NewEventHandler(w.HandleEvent)
	return w
}

// Start starts the worker
func (w *AnalyticsWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting analytics worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *AnalyticsWorker) Stop() error {
	w.logger.Info("Stopping analytics worker")
	return w.consumer.Close()
}

// HandleEvent applies one envelope at most once per event id. Events that
// fail validation are dropped. A store failure is returned and the event
// stays unmarked.
func (w *AnalyticsWorker) HandleEvent(ctx context.Context, base models.BaseEvent, event models.Event) error {
	if base.EventID != "" {
		done, err := w.processed.IsEventProcessed(ctx, base.EventID)
		if err != nil {
			return fmt.Errorf("failed to check processed event: %w", err)
		}
		if done {
			w.logger.Debug("Event already processed", zap.String("event_id", base.EventID))
			return nil
		}
	}

	err := w.recorder.Apply(ctx, event)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrMalformedEvent), errors.Is(err, models.ErrUnknownEventType):
		w.logger.Warn("Dropping invalid event",
			zap.String("event_id", base.EventID),
			zap.String("type", base.EventType),
			zap.Error(err))
	default:
		return err
	}

	if base.EventID == "" {
		return nil
	}
	if err := w.processed.MarkEventProcessed(ctx, base.EventID, base.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
