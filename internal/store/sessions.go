package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type sessionRow struct {
	SessionID       string         `db:"session_id"`
	VisitorID       string         `db:"visitor_id"`
	Date            time.Time      `db:"date"`
	SessionStart    time.Time      `db:"session_start"`
	LastActivity    time.Time      `db:"last_activity"`
	ReferralSource  string         `db:"referral_source"`
	PagesVisited    pq.StringArray `db:"pages_visited"`
	BounceReverted  bool           `db:"bounce_reverted"`
	ProcessedBounce bool           `db:"processed_bounce"`
}

func (r sessionRow) toModel() models.VisitorSession {
	return models.VisitorSession{
		SessionID:       r.SessionID,
		VisitorID:       r.VisitorID,
		Date:            r.Date,
		SessionStart:    r.SessionStart,
		LastActivity:    r.LastActivity,
		ReferralSource:  r.ReferralSource,
		PagesVisited:    []string(r.PagesVisited),
		BounceReverted:  r.BounceReverted,
		ProcessedBounce: r.ProcessedBounce,
	}
}

// GetLatestSession returns the visitor's most recent session, or nil
func (s *Store) GetLatestSession(ctx context.Context, visitorID string) (*models.VisitorSession, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM visitor_sessions
		WHERE visitor_id = $1
		ORDER BY session_start DESC
		LIMIT 1`, visitorID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	session := row.toModel()
	return &session, nil
}

// CreateSession inserts a new visitor session
func (s *Store) CreateSession(ctx context.Context, session *models.VisitorSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visitor_sessions
			(session_id, visitor_id, date, session_start, last_activity, referral_source, pages_visited)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.SessionID, session.VisitorID, models.DayKey(session.Date), session.SessionStart,
		session.LastActivity, session.ReferralSource, pq.StringArray(session.PagesVisited))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// TouchSession records a page request on an existing session. The path is
// appended when new, last_activity only moves forward, and reverted reports
// whether this request took a still-open single-page session to two pages.
func (s *Store) TouchSession(ctx context.Context, sessionID, path string, at time.Time) (bool, error) {
	var reverted bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row sessionRow
		err := tx.GetContext(ctx, &row,
			"SELECT * FROM visitor_sessions WHERE session_id = $1 FOR UPDATE", sessionID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		session := row.toModel()
		if !session.HasVisited(path) {
			reverted = len(session.PagesVisited) == 1 && !session.BounceReverted && !session.ProcessedBounce
			session.PagesVisited = append(session.PagesVisited, path)
		}
		if at.After(session.LastActivity) {
			session.LastActivity = at
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE visitor_sessions
			SET pages_visited = $2, last_activity = $3, bounce_reverted = bounce_reverted OR $4
			WHERE session_id = $1`,
			sessionID, pq.StringArray(session.PagesVisited), session.LastActivity, reverted)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to touch session: %w", err)
	}
	return reverted, nil
}

// ListBounceCandidates returns open single-page sessions idle since before cutoff
func (s *Store) ListBounceCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.VisitorSession, error) {
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM visitor_sessions
		WHERE cardinality(pages_visited) <= 1
			AND last_activity < $1
			AND NOT processed_bounce
			AND NOT bounce_reverted
		ORDER BY last_activity
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}

	sessions := make([]models.VisitorSession, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.toModel())
	}
	return sessions, nil
}

// FinalizeBounce marks a session's bounce processed and counts it on the
// session's day. It returns false when the session was already processed or
// has since gone past one page.
func (s *Store) FinalizeBounce(ctx context.Context, sessionID string) (bool, error) {
	var finalized bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var day time.Time
		err := tx.GetContext(ctx, &day, `
			UPDATE visitor_sessions SET processed_bounce = TRUE
			WHERE session_id = $1
				AND NOT processed_bounce
				AND NOT bounce_reverted
				AND cardinality(pages_visited) <= 1
			RETURNING date`, sessionID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO website_traffic AS t (date, confirmed_bounces, updated_at)
			VALUES ($1, 1, NOW())
			ON CONFLICT (date) DO UPDATE SET
				confirmed_bounces = t.confirmed_bounces + 1,
				updated_at = NOW()`, models.DayKey(day))
		if err != nil {
			return err
		}
		finalized = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to finalize bounce: %w", err)
	}
	return finalized, nil
}
