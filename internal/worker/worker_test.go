package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingApplier struct {
	applied int
	err     error
}

func (a *countingApplier) Apply(_ context.Context, event models.Event) error {
	if a.err != nil {
		return a.err
	}
	if err := event.Validate(); err != nil {
		return err
	}
	a.applied++
	return nil
}

type memoryProcessed struct {
	ids map[string]string
}

func (m *memoryProcessed) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	_, ok := m.ids[eventID]
	return ok, nil
}

func (m *memoryProcessed) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	if m.ids == nil {
		m.ids = make(map[string]string)
	}
	m.ids[eventID] = eventType
	return nil
}

func newTestWorker(applier *countingApplier) (*AnalyticsWorker, *memoryProcessed) {
	processed := &memoryProcessed{}
	return NewAnalyticsWorker(nil, applier, processed), processed
}

func TestHandleEventOncePerID(t *testing.T) {
	applier := &countingApplier{}
	w, processed := newTestWorker(applier)
	base := models.BaseEvent{EventID: "e1", EventType: models.EventTypeProductViewed}
	event := models.ProductViewed{ProductID: 3}

	require.NoError(t, w.HandleEvent(context.Background(), base, event))
	require.NoError(t, w.HandleEvent(context.Background(), base, event))

	assert.Equal(t, 1, applier.applied)
	assert.Equal(t, models.EventTypeProductViewed, processed.ids["e1"])
}

func TestHandleEventDropsInvalid(t *testing.T) {
	applier := &countingApplier{}
	w, processed := newTestWorker(applier)

	err := w.HandleEvent(context.Background(),
		models.BaseEvent{EventID: "bad", EventType: models.EventTypeProductViewed},
		models.ProductViewed{})
	require.NoError(t, err)
	assert.Equal(t, 0, applier.applied)
	assert.Contains(t, processed.ids, "bad")
}

func TestHandleEventStoreFailureIsNotMarked(t *testing.T) {
	applier := &countingApplier{err: fmt.Errorf("increment sales: %w", errors.New("connection refused"))}
	w, processed := newTestWorker(applier)

	err := w.HandleEvent(context.Background(),
		models.BaseEvent{EventID: "e2", EventType: models.EventTypeOrderPlaced},
		models.OrderPlaced{OrderID: 1, UserID: 1})
	assert.Error(t, err)
	assert.NotContains(t, processed.ids, "e2")
}
