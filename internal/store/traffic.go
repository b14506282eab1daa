package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// ApplyTrafficFlush adds a drained counter snapshot to the durable daily row.
// The snapshot token is recorded in the same transaction, so re-applying a
// snapshot after a failed acknowledgement is a no-op that returns false.
func (s *Store) ApplyTrafficFlush(ctx context.Context, d models.TrafficDelta) (bool, error) {
	day, err := models.ParseDayKey(d.Day)
	if err != nil {
		return false, fmt.Errorf("invalid flush day %q: %w", d.Day, err)
	}

	var applied bool
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO traffic_flushes (token, day) VALUES ($1, $2)
			ON CONFLICT (token) DO NOTHING`, d.Token, d.Day)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		var fresh models.TrafficAggregate
		fresh.Add(d)

		_, err = tx.ExecContext(ctx, `
			INSERT INTO website_traffic AS t
				(date, total_visits, unique_visitors, bounce_count, bounce_rate, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (date) DO UPDATE SET
				total_visits = t.total_visits + EXCLUDED.total_visits,
				unique_visitors = t.unique_visitors + EXCLUDED.unique_visitors,
				bounce_count = GREATEST(0, t.bounce_count + $6::bigint),
				bounce_rate = CASE
					WHEN t.total_visits + EXCLUDED.total_visits > 0
					THEN GREATEST(0, t.bounce_count + $6::bigint)::float8 / (t.total_visits + EXCLUDED.total_visits) * 100
					ELSE 0 END,
				updated_at = NOW()`,
			d.Day, fresh.TotalVisits, fresh.UniqueVisitors, fresh.BounceCount, fresh.BounceRate,
			d.Bounces-d.BounceReversals)
		if err != nil {
			return fmt.Errorf("failed to upsert website traffic: %w", err)
		}

		if len(d.Referrals) > 0 {
			if err := addReferrals(ctx, tx, d.Day, d.Referrals); err != nil {
				return err
			}
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply traffic flush for %s: %w", day.Format(models.DayLayout), err)
	}
	return applied, nil
}

func addReferrals(ctx context.Context, tx *sqlx.Tx, day string, referrals map[string]int64) error {
	sources := make([]string, 0, len(referrals))
	for source := range referrals {
		sources = append(sources, source)
	}
	// fixed order keeps concurrent flushes from deadlocking on row locks
	sort.Strings(sources)

	for _, source := range sources {
		if referrals[source] == 0 {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO traffic_referrals AS t (date, source, visits)
			VALUES ($1, $2, $3)
			ON CONFLICT (date, source) DO UPDATE SET visits = t.visits + EXCLUDED.visits`,
			day, source, referrals[source])
		if err != nil {
			return fmt.Errorf("failed to add referral tally: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE website_traffic SET top_referral_source = (
			SELECT source FROM traffic_referrals
			WHERE date = $1
			ORDER BY visits DESC, source
			LIMIT 1
		)
		WHERE date = $1`, day)
	if err != nil {
		return fmt.Errorf("failed to update top referral source: %w", err)
	}
	return nil
}

// GetTraffic returns the durable traffic row for a day
func (s *Store) GetTraffic(ctx context.Context, day string) (*models.TrafficAggregate, error) {
	var agg models.TrafficAggregate
	err := s.db.GetContext(ctx, &agg, "SELECT * FROM website_traffic WHERE date = $1", day)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("traffic for %s: %w", day, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &agg, nil
}
