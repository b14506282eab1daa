package redisclient

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"storefront-service/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Counter hash fields
const (
	fieldVisits          = "visits"
	fieldUniqueVisitors  = "unique_visitors"
	fieldBounces         = "bounces"
	fieldBounceReversals = "bounce_reversals"
	fieldToken           = "token"
)

const daysKey = "traffic:days"

// Keys share the {day} hash tag so every script touches a single slot.
func countersKey(day string) string        { return fmt.Sprintf("traffic:{%s}", day) }
func referralsKey(day string) string       { return fmt.Sprintf("traffic:{%s}:referrals", day) }
func visitorsKey(day string) string        { return fmt.Sprintf("traffic:{%s}:visitors", day) }
func pendingKey(day string) string         { return fmt.Sprintf("traffic:{%s}:pending", day) }
func pendingReferralsKey(day string) string { return fmt.Sprintf("traffic:{%s}:pending:referrals", day) }

func (c *Client) incr(ctx context.Context, day, field string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, countersKey(day), field, 1)
		pipe.SAdd(ctx, daysKey, day)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment %s for %s: %w", field, day, err)
	}
	return nil
}

func (c *Client) IncrVisits(ctx context.Context, day string) error {
	return c.incr(ctx, day, fieldVisits)
}

func (c *Client) IncrBounce(ctx context.Context, day string) error {
	return c.incr(ctx, day, fieldBounces)
}

func (c *Client) IncrBounceReversal(ctx context.Context, day string) error {
	return c.incr(ctx, day, fieldBounceReversals)
}

func (c *Client) IncrReferral(ctx context.Context, day, source string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, referralsKey(day), source, 1)
		pipe.SAdd(ctx, daysKey, day)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment referral %s for %s: %w", source, day, err)
	}
	return nil
}

// AddVisitor adds the visitor to the day's set and reports whether it was new.
// A new visitor also bumps the unique visitor counter in the same script.
func (c *Client) AddVisitor(ctx context.Context, day, visitorID string) (bool, error) {
	keys := []string{visitorsKey(day), countersKey(day), daysKey}
	added, err := c.addVisitor.Run(ctx, c.rdb, keys, visitorID, day).Int64()
	if err != nil {
		return false, fmt.Errorf("add visitor script failed: %w", err)
	}
	return added == 1, nil
}

// Days lists the days that have live or pending counters, oldest first
func (c *Client) Days(ctx context.Context) ([]string, error) {
	days, err := c.rdb.SMembers(ctx, daysKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(days)
	return days, nil
}

// Drain moves the day's live counters into a pending snapshot and returns it.
// An unacknowledged snapshot from an earlier drain is returned as is, so a
// crashed flush is retried with its original token. Nil means nothing to flush.
func (c *Client) Drain(ctx context.Context, day string) (*models.TrafficDelta, error) {
	keys := []string{countersKey(day), referralsKey(day), pendingKey(day), pendingReferralsKey(day)}
	res, err := c.drainScript.Run(ctx, c.rdb, keys, uuid.NewString()).Slice()
	if err != nil {
		return nil, fmt.Errorf("drain script failed: %w", err)
	}
	if len(res) < 2 {
		return nil, nil
	}

	counters, err := pairs(res[0])
	if err != nil {
		return nil, err
	}
	referrals, err := pairs(res[1])
	if err != nil {
		return nil, err
	}

	delta := &models.TrafficDelta{
		Token:     counters[fieldToken],
		Day:       day,
		Referrals: make(map[string]int64, len(referrals)),
	}
	for field, target := range map[string]*int64{
		fieldVisits:          &delta.Visits,
		fieldUniqueVisitors:  &delta.UniqueVisitors,
		fieldBounces:         &delta.Bounces,
		fieldBounceReversals: &delta.BounceReversals,
	} {
		if *target, err = parseCount(counters[field]); err != nil {
			return nil, fmt.Errorf("bad %s counter for %s: %w", field, day, err)
		}
	}
	for source, raw := range referrals {
		n, err := parseCount(raw)
		if err != nil {
			return nil, fmt.Errorf("bad referral counter %s for %s: %w", source, day, err)
		}
		delta.Referrals[source] = n
	}
	return delta, nil
}

// AckDrain discards the pending snapshot if it still carries token
func (c *Client) AckDrain(ctx context.Context, day, token string) error {
	keys := []string{pendingKey(day), pendingReferralsKey(day)}
	if err := c.ackScript.Run(ctx, c.rdb, keys, token).Err(); err != nil {
		return fmt.Errorf("ack script failed: %w", err)
	}
	return nil
}

// Forget drops a fully flushed day's visitor set and index entry. It does
// nothing while live or pending counters remain for the day.
func (c *Client) Forget(ctx context.Context, day string) error {
	keys := []string{
		countersKey(day), referralsKey(day), pendingKey(day), pendingReferralsKey(day),
		visitorsKey(day), daysKey,
	}
	if err := c.forgetScript.Run(ctx, c.rdb, keys, day).Err(); err != nil {
		return fmt.Errorf("forget script failed: %w", err)
	}
	return nil
}

func pairs(v interface{}) (map[string]string, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected script result type %T", v)
	}
	out := make(map[string]string, len(items)/2)
	for i := 0; i+1 < len(items); i += 2 {
		k, _ := items[i].(string)
		val, _ := items[i+1].(string)
		out[k] = val
	}
	return out, nil
}

func parseCount(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
