package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
)

var ErrAlreadyRedeemed = fmt.Errorf("order already redeemed a discount: %w", ErrDuplicate)

// CreateDiscountCode inserts a new discount code
func (s *Store) CreateDiscountCode(ctx context.Context, dc *models.DiscountCode) error {
	query := `
		INSERT INTO discount_codes (code, description, discount_type, discount_value, start_date, end_date,
			usage_limit, minimum_purchase, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, times_used, created_at, updated_at`

	err := s.db.GetContext(ctx, dc, query,
		dc.Code, dc.Description, dc.Kind, dc.Value, dc.StartDate, dc.EndDate,
		dc.UsageLimit, dc.MinimumPurchase, dc.IsActive)
	if isUniqueViolation(err) {
		return fmt.Errorf("discount code %s: %w", dc.Code, ErrDuplicate)
	}
	return err
}

// GetDiscountCode retrieves a discount code by its code string
func (s *Store) GetDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	err := s.db.GetContext(ctx, &dc, "SELECT * FROM discount_codes WHERE code = $1", code)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("discount code %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

// ConsumeDiscountCode redeems a code for one order inside a short transaction.
// The order is recorded first so a repeat for the same order fails with
// ErrAlreadyRedeemed; the code row is then locked and check decides whether
// it is still usable before times_used is incremented.
func (s *Store) ConsumeDiscountCode(ctx context.Context, code string, orderID int64, check func(*models.DiscountCode) error) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var dc models.DiscountCode
		err := tx.GetContext(ctx, &dc, "SELECT * FROM discount_codes WHERE code = $1 FOR UPDATE", code)
		if err == sql.ErrNoRows {
			if err := check(nil); err != nil {
				return err
			}
			return fmt.Errorf("discount code %s: %w", code, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock discount code: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO discount_redemptions (order_id, discount_code_id)
			VALUES ($1, $2)
			ON CONFLICT (order_id) DO NOTHING`, orderID, dc.ID)
		if err != nil {
			return fmt.Errorf("failed to record redemption: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrAlreadyRedeemed
		}

		if err := check(&dc); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE discount_codes
			SET times_used = times_used + 1, updated_at = NOW()
			WHERE id = $1 AND times_used < usage_limit`, dc.ID)
		if err != nil {
			return fmt.Errorf("failed to increment usage: %w", err)
		}
		return nil
	})
}
