package service

import (
	"context"
	"fmt"
	"time"

	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// SweepResult summarizes one bounce sweep
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Finalized int `json:"finalized"`
	Failed    int `json:"failed"`
}

// BounceSweeper finalizes single-page sessions that went idle
type BounceSweeper struct {
	store   BounceStore
	timeout time.Duration
	batch   int
	logger  *zap.Logger
}

func NewBounceSweeper(store BounceStore, sessionTimeout time.Duration, batch int) *BounceSweeper {
	if batch <= 0 {
		batch = 500
	}
	return &BounceSweeper{
		store:   store,
		timeout: sessionTimeout,
		batch:   batch,
		logger:  util.GetLogger(),
	}
}

// Sweep finalizes every session idle since before now minus the session
// timeout. Each session is its own transaction and is processed at most once,
// so overlapping or repeated sweeps never double count.
func (b *BounceSweeper) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	ctx, span := util.StartSpan(ctx, "BounceSweeper.Sweep")
	defer span.End()

	cutoff := now.Add(-b.timeout)
	result := &SweepResult{}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		sessions, err := b.store.ListBounceCandidates(ctx, cutoff, b.batch)
		if err != nil {
			util.SpanError(span, err)
			return result, fmt.Errorf("failed to list bounce candidates: %w", err)
		}

		progressed := 0
		for _, session := range sessions {
			result.Scanned++
			ok, err := b.store.FinalizeBounce(ctx, session.SessionID)
			if err != nil {
				result.Failed++
				b.logger.Error("Failed to finalize bounce",
					zap.String("session_id", session.SessionID), zap.Error(err))
				continue
			}
			progressed++
			if ok {
				result.Finalized++
				util.BouncesFinalizedTotal.Inc()
			}
		}

		// a short page is the last one; a page where nothing could be
		// finalized would come back unchanged
		if len(sessions) < b.batch || progressed == 0 {
			break
		}
	}

	b.logger.Info("Bounce sweep completed",
		zap.Int("scanned", result.Scanned),
		zap.Int("finalized", result.Finalized),
		zap.Int("failed", result.Failed))
	return result, nil
}
