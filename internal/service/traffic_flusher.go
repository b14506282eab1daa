package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

const flushLockKey = "flush-traffic-cache"

// FlushResult summarizes one flush run
type FlushResult struct {
	Days      int   `json:"days"`
	Applied   int   `json:"applied"`
	Replayed  int   `json:"replayed"`
	Visits    int64 `json:"visits"`
	Forgotten int   `json:"forgotten"`
	Skipped   bool  `json:"skipped,omitempty"`
}

// TrafficFlusher moves drained traffic counters into the durable daily rows
type TrafficFlusher struct {
	counters TrafficCounters
	store    TrafficStore
	locker   Locker
	lockTTL  time.Duration
	logger   *zap.Logger
}

// NewTrafficFlusher creates a flusher. locker may be nil when only one
// process drains the counters.
func NewTrafficFlusher(counters TrafficCounters, store TrafficStore, locker Locker) *TrafficFlusher {
	return &TrafficFlusher{
		counters: counters,
		store:    store,
		locker:   locker,
		lockTTL:  5 * time.Minute,
		logger:   util.GetLogger(),
	}
}

// Flush drains every indexed day. Each snapshot is applied under its token
// before it is acknowledged, so a crash between the two re-applies nothing.
// Days before today are forgotten once fully flushed.
func (f *TrafficFlusher) Flush(ctx context.Context, now time.Time) (*FlushResult, error) {
	ctx, span := util.StartSpan(ctx, "TrafficFlusher.Flush")
	defer span.End()

	start := time.Now()
	defer func() {
		util.TrafficFlushLatency.Observe(time.Since(start).Seconds())
	}()

	result := &FlushResult{}

	if f.locker != nil {
		ok, err := f.locker.AcquireLock(ctx, flushLockKey, f.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire flush lock: %w", err)
		}
		if !ok {
			f.logger.Info("Traffic flush already running, skipping")
			util.TrafficFlushTotal.WithLabelValues("skipped").Inc()
			result.Skipped = true
			return result, nil
		}
		defer func() {
			if err := f.locker.ReleaseLock(context.Background(), flushLockKey); err != nil {
				f.logger.Warn("Failed to release flush lock", zap.Error(err))
			}
		}()
	}

	days, err := f.counters.Days(ctx)
	if err != nil {
		util.SpanError(span, err)
		return nil, fmt.Errorf("failed to list counter days: %w", err)
	}

	today := models.DayKey(now)
	var errs []error
	for _, day := range days {
		result.Days++
		if err := f.flushDay(ctx, day, result); err != nil {
			util.TrafficFlushTotal.WithLabelValues("error").Inc()
			f.logger.Error("Failed to flush traffic day", zap.String("day", day), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if day < today {
			if err := f.counters.Forget(ctx, day); err != nil {
				errs = append(errs, fmt.Errorf("failed to forget %s: %w", day, err))
				continue
			}
			result.Forgotten++
		}
	}

	f.logger.Info("Traffic flush completed",
		zap.Int("days", result.Days),
		zap.Int("applied", result.Applied),
		zap.Int("replayed", result.Replayed),
		zap.Int64("visits", result.Visits))

	if err := errors.Join(errs...); err != nil {
		util.SpanError(span, err)
		return result, err
	}
	return result, nil
}

func (f *TrafficFlusher) flushDay(ctx context.Context, day string, result *FlushResult) error {
	delta, err := f.counters.Drain(ctx, day)
	if err != nil {
		return fmt.Errorf("failed to drain %s: %w", day, err)
	}
	if delta == nil {
		return nil
	}

	applied, err := f.store.ApplyTrafficFlush(ctx, *delta)
	if err != nil {
		return err
	}
	if applied {
		result.Applied++
		result.Visits += delta.Visits
		util.TrafficFlushTotal.WithLabelValues("applied").Inc()
	} else {
		result.Replayed++
		util.TrafficFlushTotal.WithLabelValues("replayed").Inc()
	}

	if err := f.counters.AckDrain(ctx, day, delta.Token); err != nil {
		return fmt.Errorf("failed to ack %s: %w", day, err)
	}
	return nil
}
