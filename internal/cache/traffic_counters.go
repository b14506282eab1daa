package cache

import (
	"context"
	"sort"
	"sync"

	"storefront-service/internal/models"

	"github.com/google/uuid"
)

type dayCounters struct {
	visits          int64
	uniqueVisitors  int64
	bounces         int64
	bounceReversals int64
	referrals       map[string]int64
}

func (d *dayCounters) empty() bool {
	return d == nil || (d.visits == 0 && d.uniqueVisitors == 0 && d.bounces == 0 &&
		d.bounceReversals == 0 && len(d.referrals) == 0)
}

// TrafficCounters keeps the per-day traffic counters in process memory.
// It mirrors the Redis counter store: Drain swaps live counters into a pending
// snapshot that survives until AckDrain is called with its token.
type TrafficCounters struct {
	mu       sync.Mutex
	live     map[string]*dayCounters
	pending  map[string]*models.TrafficDelta
	visitors map[string]map[string]struct{}
}

func NewTrafficCounters() *TrafficCounters {
	return &TrafficCounters{
		live:     make(map[string]*dayCounters),
		pending:  make(map[string]*models.TrafficDelta),
		visitors: make(map[string]map[string]struct{}),
	}
}

func (c *TrafficCounters) day(day string) *dayCounters {
	d, ok := c.live[day]
	if !ok {
		d = &dayCounters{referrals: make(map[string]int64)}
		c.live[day] = d
	}
	return d
}

func (c *TrafficCounters) IncrVisits(_ context.Context, day string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.day(day).visits++
	return nil
}

func (c *TrafficCounters) IncrBounce(_ context.Context, day string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.day(day).bounces++
	return nil
}

func (c *TrafficCounters) IncrBounceReversal(_ context.Context, day string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.day(day).bounceReversals++
	return nil
}

func (c *TrafficCounters) IncrReferral(_ context.Context, day, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.day(day).referrals[source]++
	return nil
}

func (c *TrafficCounters) AddVisitor(_ context.Context, day, visitorID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.visitors[day]
	if !ok {
		set = make(map[string]struct{})
		c.visitors[day] = set
	}
	if _, seen := set[visitorID]; seen {
		return false, nil
	}
	set[visitorID] = struct{}{}
	c.day(day).uniqueVisitors++
	return true, nil
}

func (c *TrafficCounters) Days(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]struct{})
	for day := range c.live {
		seen[day] = struct{}{}
	}
	for day := range c.pending {
		seen[day] = struct{}{}
	}
	for day := range c.visitors {
		seen[day] = struct{}{}
	}

	days := make([]string, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Strings(days)
	return days, nil
}

func (c *TrafficCounters) Drain(_ context.Context, day string) (*models.TrafficDelta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pending[day]; ok {
		return copyDelta(p), nil
	}

	d := c.live[day]
	delete(c.live, day)
	if d.empty() {
		return nil, nil
	}

	p := &models.TrafficDelta{
		Token:           uuid.NewString(),
		Day:             day,
		Visits:          d.visits,
		UniqueVisitors:  d.uniqueVisitors,
		Bounces:         d.bounces,
		BounceReversals: d.bounceReversals,
		Referrals:       d.referrals,
	}
	c.pending[day] = p
	return copyDelta(p), nil
}

func (c *TrafficCounters) AckDrain(_ context.Context, day, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pending[day]; ok && p.Token == token {
		delete(c.pending, day)
	}
	return nil
}

func (c *TrafficCounters) Forget(_ context.Context, day string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[day]; ok {
		return nil
	}
	if !c.live[day].empty() {
		return nil
	}
	delete(c.live, day)
	delete(c.visitors, day)
	return nil
}

func copyDelta(p *models.TrafficDelta) *models.TrafficDelta {
	cp := *p
	cp.Referrals = make(map[string]int64, len(p.Referrals))
	for k, v := range p.Referrals {
		cp.Referrals[k] = v
	}
	return &cp
}
