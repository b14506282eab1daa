package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// DiscountEngine validates, prices and redeems discount codes
type DiscountEngine struct {
	store           DiscountStore
	sink            EventSink
	clampPercentage bool
	logger          *zap.Logger
}

// NewDiscountEngine creates a discount engine. sink may be nil.
func NewDiscountEngine(store DiscountStore, sink EventSink, clampPercentage bool) *DiscountEngine {
	return &DiscountEngine{
		store:           store,
		sink:            sink,
		clampPercentage: clampPercentage,
		logger:          util.GetLogger(),
	}
}

// DiscountResult is a successful evaluation
type DiscountResult struct {
	Code      string              `json:"code"`
	Kind      models.DiscountKind `json:"discount_type"`
	AmountOff decimal.Decimal     `json:"amount_off"`
	NewTotal  decimal.Decimal     `json:"new_total"`
}

// DiscountPreview is the cart-side view of a code. A code that cannot be
// applied yields no discount and a message instead of an error.
type DiscountPreview struct {
	Code      string          `json:"code"`
	Applied   bool            `json:"applied"`
	AmountOff decimal.Decimal `json:"amount_off"`
	NewTotal  decimal.Decimal `json:"new_total"`
	Message   string          `json:"message"`
}

// CreateDiscountRequest represents a request to create a discount code
type CreateDiscountRequest struct {
	Code            string              `json:"code" binding:"required"`
	Description     string              `json:"description"`
	Kind            models.DiscountKind `json:"discount_type" binding:"required"`
	Value           decimal.Decimal     `json:"discount_value" binding:"required"`
	StartDate       time.Time           `json:"start_date" binding:"required"`
	EndDate         time.Time           `json:"end_date" binding:"required"`
	UsageLimit      int                 `json:"usage_limit"`
	MinimumPurchase decimal.Decimal     `json:"minimum_purchase"`
	IsActive        *bool               `json:"is_active"`
}

// MinimumPurchaseError reports the minimum a cart fell short of. It matches
// ErrDiscountBelowMinimum.
type MinimumPurchaseError struct {
	Minimum decimal.Decimal
}

func (e *MinimumPurchaseError) Error() string {
	return fmt.Sprintf("%s: minimum purchase of %s", ErrDiscountBelowMinimum, e.Minimum.StringFixed(2))
}

func (e *MinimumPurchaseError) Is(target error) bool {
	return target == ErrDiscountBelowMinimum
}

// CheckUsable is the usability predicate shared by evaluation and redemption.
// Checks run in order: existence and active flag, validity window (inclusive
// at both ends), then remaining usage.
func CheckUsable(dc *models.DiscountCode, now time.Time) error {
	if dc == nil || !dc.IsActive {
		return ErrDiscountNotFound
	}
	if now.Before(dc.StartDate) || now.After(dc.EndDate) {
		return ErrDiscountExpired
	}
	if dc.TimesUsed >= dc.UsageLimit {
		return ErrDiscountLimitReached
	}
	return nil
}

// ComputeDiscount returns the amount a usable code takes off total
func ComputeDiscount(dc *models.DiscountCode, total decimal.Decimal, clampPercentage bool) decimal.Decimal {
	switch dc.Kind {
	case models.DiscountPercentage:
		amount := total.Mul(dc.Value).Div(hundred).Round(2)
		if clampPercentage && amount.GreaterThan(total) {
			return total
		}
		return amount
	case models.DiscountFixedAmount:
		return decimal.Min(dc.Value, total)
	default:
		return decimal.Zero
	}
}

func (e *DiscountEngine) lookup(ctx context.Context, code string) (*models.DiscountCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	dc, err := e.store.GetDiscountCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load discount code: %w", err)
	}
	return dc, nil
}

// Evaluate validates code against the cart total and computes the discount
func (e *DiscountEngine) Evaluate(ctx context.Context, code string, cartTotal decimal.Decimal, now time.Time) (*DiscountResult, error) {
	ctx, span := util.StartSpan(ctx, "DiscountEngine.Evaluate", attribute.String("discount.code", code))
	defer span.End()

	dc, err := e.lookup(ctx, code)
	if err != nil {
		util.SpanError(span, err)
		return nil, err
	}

	if err := CheckUsable(dc, now); err != nil {
		util.DiscountEvaluationsTotal.WithLabelValues(reasonOf(err)).Inc()
		return nil, err
	}
	if cartTotal.LessThan(dc.MinimumPurchase) {
		util.DiscountEvaluationsTotal.WithLabelValues(reasonOf(ErrDiscountBelowMinimum)).Inc()
		return nil, &MinimumPurchaseError{Minimum: dc.MinimumPurchase}
	}

	amount := ComputeDiscount(dc, cartTotal, e.clampPercentage)
	util.DiscountEvaluationsTotal.WithLabelValues("applied").Inc()

	return &DiscountResult{
		Code:      dc.Code,
		Kind:      dc.Kind,
		AmountOff: amount,
		NewTotal:  cartTotal.Sub(amount),
	}, nil
}

// Preview evaluates code for display and never fails. A successful preview
// is reported to the event sink as a discount click.
func (e *DiscountEngine) Preview(ctx context.Context, code string, cartTotal decimal.Decimal, now time.Time) DiscountPreview {
	code = strings.TrimSpace(code)
	preview := DiscountPreview{
		Code:      code,
		AmountOff: decimal.Zero,
		NewTotal:  cartTotal,
	}
	if code == "" {
		preview.Message = "Please enter a discount code."
		return preview
	}

	res, err := e.Evaluate(ctx, code, cartTotal, now)
	if err != nil {
		preview.Message = previewMessage(err)
		if !isBusinessRejection(err) {
			e.logger.Warn("Discount preview degraded", zap.String("code", code), zap.Error(err))
		}
		return preview
	}

	preview.Applied = true
	preview.AmountOff = res.AmountOff
	preview.NewTotal = res.NewTotal
	preview.Message = fmt.Sprintf("Discount code %s applied successfully!", res.Code)

	if e.sink != nil {
		e.sink.Record(ctx, models.DiscountApplied{
			Code:           res.Code,
			OrderTotal:     cartTotal,
			DiscountAmount: res.AmountOff,
			AppliedAt:      now,
		})
	}
	return preview
}

// Consume redeems code for orderID. It re-checks usability under the row lock,
// so concurrent redemptions never push times_used past usage_limit.
func (e *DiscountEngine) Consume(ctx context.Context, code string, orderID int64, now time.Time) error {
	ctx, span := util.StartSpan(ctx, "DiscountEngine.Consume",
		attribute.String("discount.code", code), attribute.Int64("order.id", orderID))
	defer span.End()

	err := e.store.ConsumeDiscountCode(ctx, strings.TrimSpace(code), orderID, func(dc *models.DiscountCode) error {
		return CheckUsable(dc, now)
	})
	switch {
	case err == nil:
		util.DiscountConsumedTotal.Inc()
		e.logger.Info("Discount code consumed", zap.String("code", code), zap.Int64("order_id", orderID))
		return nil
	case errors.Is(err, store.ErrAlreadyRedeemed):
		err = ErrDiscountAlreadyRedeemed
	case errors.Is(err, store.ErrNotFound):
		err = ErrDiscountNotFound
	}

	util.DiscountConsumeRejectedTotal.WithLabelValues(reasonOf(err)).Inc()
	util.SpanError(span, err)
	if isBusinessRejection(err) {
		return err
	}
	return fmt.Errorf("failed to consume discount code: %w", err)
}

// CreateCode validates and stores a new discount code
func (e *DiscountEngine) CreateCode(ctx context.Context, req *CreateDiscountRequest) (*models.DiscountCode, error) {
	dc := &models.DiscountCode{
		Code:            strings.TrimSpace(req.Code),
		Description:     req.Description,
		Kind:            req.Kind,
		Value:           req.Value,
		StartDate:       req.StartDate.UTC(),
		EndDate:         req.EndDate.UTC(),
		UsageLimit:      req.UsageLimit,
		MinimumPurchase: req.MinimumPurchase,
		IsActive:        true,
	}
	if dc.UsageLimit == 0 {
		dc.UsageLimit = 1
	}
	if req.IsActive != nil {
		dc.IsActive = *req.IsActive
	}

	if err := validateCode(dc); err != nil {
		return nil, err
	}

	if err := e.store.CreateDiscountCode(ctx, dc); err != nil {
		return nil, err
	}

	e.logger.Info("Discount code created", zap.String("code", dc.Code), zap.String("type", string(dc.Kind)))
	return dc, nil
}

// GetCode returns the stored code
func (e *DiscountEngine) GetCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	dc, err := e.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, ErrDiscountNotFound
	}
	return dc, nil
}

func validateCode(dc *models.DiscountCode) error {
	switch {
	case dc.Code == "":
		return fmt.Errorf("%w: code is required", ErrInvalidDiscount)
	case !dc.Kind.Valid():
		return fmt.Errorf("%w: unknown discount type %q", ErrInvalidDiscount, dc.Kind)
	case !dc.Value.IsPositive():
		return fmt.Errorf("%w: discount value must be positive", ErrInvalidDiscount)
	case dc.Kind == models.DiscountPercentage && dc.Value.GreaterThan(hundred):
		return fmt.Errorf("%w: percentage cannot exceed 100", ErrInvalidDiscount)
	case dc.UsageLimit < 1:
		return fmt.Errorf("%w: usage limit must be at least 1", ErrInvalidDiscount)
	case dc.MinimumPurchase.IsNegative():
		return fmt.Errorf("%w: minimum purchase cannot be negative", ErrInvalidDiscount)
	case !dc.EndDate.After(dc.StartDate):
		return fmt.Errorf("%w: end date must be after start date", ErrInvalidDiscount)
	}
	return nil
}

func isBusinessRejection(err error) bool {
	return errors.Is(err, ErrDiscountNotFound) ||
		errors.Is(err, ErrDiscountExpired) ||
		errors.Is(err, ErrDiscountLimitReached) ||
		errors.Is(err, ErrDiscountBelowMinimum) ||
		errors.Is(err, ErrDiscountAlreadyRedeemed)
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, ErrDiscountNotFound):
		return "not_found"
	case errors.Is(err, ErrDiscountExpired):
		return "expired"
	case errors.Is(err, ErrDiscountLimitReached):
		return "limit_reached"
	case errors.Is(err, ErrDiscountBelowMinimum):
		return "below_minimum"
	case errors.Is(err, ErrDiscountAlreadyRedeemed):
		return "already_redeemed"
	default:
		return "error"
	}
}

func previewMessage(err error) string {
	switch {
	case errors.Is(err, ErrDiscountNotFound):
		return "Invalid discount code."
	case errors.Is(err, ErrDiscountExpired):
		return "This discount code is not currently valid."
	case errors.Is(err, ErrDiscountLimitReached):
		return "This discount code has reached its usage limit."
	case errors.Is(err, ErrDiscountBelowMinimum):
		var minErr *MinimumPurchaseError
		if errors.As(err, &minErr) {
			return fmt.Sprintf("Minimum purchase of %s required for this discount.", minErr.Minimum.StringFixed(2))
		}
		return "Minimum purchase not met for this discount."
	default:
		return "Discount code could not be applied right now."
	}
}
