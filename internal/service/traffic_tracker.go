package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DirectReferral is the referral source of sessions without a referrer
const DirectReferral = "direct"

// TrafficTracker maintains visitor sessions and feeds the fast traffic
// counters. A session's first page counts as a tentative bounce; reaching a
// second distinct page counts a reversal of it.
type TrafficTracker struct {
	sessions SessionStore
	counters TrafficCounters
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewTrafficTracker(sessions SessionStore, counters TrafficCounters, sessionTimeout time.Duration) *TrafficTracker {
	return &TrafficTracker{
		sessions: sessions,
		counters: counters,
		timeout:  sessionTimeout,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// Track records one page visit
func (t *TrafficTracker) Track(ctx context.Context, visit models.PageVisited) error {
	ctx, span := util.StartSpan(ctx, "TrafficTracker.Track")
	defer span.End()

	at := visit.VisitedAt.UTC()
	if visit.VisitedAt.IsZero() {
		at = t.now().UTC()
	}
	day := models.DayKey(at)

	latest, err := t.sessions.GetLatestSession(ctx, visit.VisitorID)
	if err != nil {
		util.SpanError(span, err)
		return fmt.Errorf("failed to load session: %w", err)
	}

	var errs []error
	if t.startsNewSession(latest, at) {
		source := ReferralSource(visit.Referrer)
		session := &models.VisitorSession{
			SessionID:      uuid.New().String(),
			VisitorID:      visit.VisitorID,
			Date:           models.Day(at),
			SessionStart:   at,
			LastActivity:   at,
			ReferralSource: source,
			PagesVisited:   []string{visit.Path},
		}
		if err := t.sessions.CreateSession(ctx, session); err != nil {
			util.SpanError(span, err)
			return err
		}

		errs = append(errs,
			t.counters.IncrVisits(ctx, day),
			t.counters.IncrBounce(ctx, day),
			t.counters.IncrReferral(ctx, day, source),
		)
	} else {
		errs = append(errs, t.counters.IncrVisits(ctx, day))

		reverted, err := t.sessions.TouchSession(ctx, latest.SessionID, visit.Path, at)
		if err != nil {
			errs = append(errs, err)
		} else if reverted {
			errs = append(errs, t.counters.IncrBounceReversal(ctx, day))
		}
	}

	if _, err := t.counters.AddVisitor(ctx, day, visit.VisitorID); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		util.SpanError(span, err)
		return fmt.Errorf("failed to update traffic counters: %w", err)
	}
	return nil
}

func (t *TrafficTracker) startsNewSession(latest *models.VisitorSession, at time.Time) bool {
	if latest == nil {
		return true
	}
	if models.DayKey(latest.Date) != models.DayKey(at) {
		return true
	}
	return at.Sub(latest.LastActivity) > t.timeout
}

// ReferralSource reduces a Referer header to the referring host
func ReferralSource(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return DirectReferral
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Host == "" {
		return DirectReferral
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
