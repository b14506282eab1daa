package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-service/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlushAppliesAndForgetsPastDays(t *testing.T) {
	counters := cache.NewTrafficCounters()
	store := newFakeTrafficStore()
	flusher := NewTrafficFlusher(counters, store, &fakeLocker{})
	ctx := context.Background()

	yesterday := testNow.AddDate(0, 0, -1)
	tracker := NewTrafficTracker(newFakeSessions(), counters, 30*time.Minute)
	require.NoError(t, tracker.Track(ctx, visit("v1", "/", yesterday)))
	require.NoError(t, tracker.Track(ctx, visit("v1", "/shop", yesterday.Add(time.Minute))))
	require.NoError(t, tracker.Track(ctx, visit("v2", "/", testNow)))

	result, err := flusher.Flush(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Days)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, int64(3), result.Visits)
	assert.Equal(t, 1, result.Forgotten)

	past := store.day("2024-03-14")
	assert.Equal(t, int64(2), past.TotalVisits)
	assert.Equal(t, int64(1), past.UniqueVisitors)
	assert.Equal(t, int64(0), past.BounceCount)

	today := store.day(testDay)
	assert.Equal(t, int64(1), today.BounceCount)
	assert.Equal(t, 100.0, today.BounceRate)

	days, err := counters.Days(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{testDay}, days)

	// nothing new, nothing applied
	result, err = flusher.Flush(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, int64(1), store.day(testDay).TotalVisits)
}

func TestFlushRetriesPendingSnapshotOnce(t *testing.T) {
	counters := cache.NewTrafficCounters()
	store := newFakeTrafficStore()
	flusher := NewTrafficFlusher(counters, store, nil)
	ctx := context.Background()

	require.NoError(t, counters.IncrVisits(ctx, testDay))
	require.NoError(t, counters.IncrVisits(ctx, testDay))

	store.fail = errors.New("db down")
	_, err := flusher.Flush(ctx, testNow)
	require.Error(t, err)

	// increments after the failed drain land in the next snapshot
	require.NoError(t, counters.IncrVisits(ctx, testDay))

	store.fail = nil
	result, err := flusher.Flush(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, int64(2), store.day(testDay).TotalVisits)

	result, err = flusher.Flush(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, int64(3), store.day(testDay).TotalVisits)
}

func TestFlushReplayedTokenIsAcked(t *testing.T) {
	counters := cache.NewTrafficCounters()
	store := newFakeTrafficStore()
	flusher := NewTrafficFlusher(counters, store, nil)
	ctx := context.Background()

	require.NoError(t, counters.IncrVisits(ctx, testDay))
	delta, err := counters.Drain(ctx, testDay)
	require.NoError(t, err)

	// applied durably but the ack was lost
	_, err = store.ApplyTrafficFlush(ctx, *delta)
	require.NoError(t, err)

	result, err := flusher.Flush(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, 1, result.Replayed)
	assert.Equal(t, int64(1), store.day(testDay).TotalVisits)

	again, err := counters.Drain(ctx, testDay)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestFlushSkipsWhenLocked(t *testing.T) {
	locker := &fakeLocker{}
	_, err := locker.AcquireLock(context.Background(), flushLockKey, time.Minute)
	require.NoError(t, err)

	flusher := NewTrafficFlusher(cache.NewTrafficCounters(), newFakeTrafficStore(), locker)
	result, err := flusher.Flush(context.Background(), testNow)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}
