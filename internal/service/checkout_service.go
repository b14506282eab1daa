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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CheckoutService turns a cart into an order and redeems its discount code
type CheckoutService struct {
	catalog   CatalogStore
	orders    OrderStore
	discounts *DiscountEngine
	sink      EventSink
	now       func() time.Time
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(catalog CatalogStore, orders OrderStore, discounts *DiscountEngine, sink EventSink) *CheckoutService {
	return &CheckoutService{
		catalog:   catalog,
		orders:    orders,
		discounts: discounts,
		sink:      sink,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// CheckoutRequest represents a request to place an order
type CheckoutRequest struct {
	UserID         int64             `json:"user_id" binding:"required"`
	Items          []CartItemRequest `json:"items" binding:"dive"`
	DiscountCode   string            `json:"discount_code,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// CartItemRequest represents a cart line
type CartItemRequest struct {
	ProductID int64  `json:"product_id" binding:"required"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// CheckoutResponse represents the response after placing an order
type CheckoutResponse struct {
	OrderID        int64           `json:"order_id"`
	Status         string          `json:"status"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountCode   string          `json:"discount_code,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
	Duplicate      bool            `json:"duplicate,omitempty"`
}

// PlaceOrder prices the cart, applies the discount authoritatively, persists
// the order and redeems the code. The OrderPlaced event is sent only after the
// redemption succeeded.
func (s *CheckoutService) PlaceOrder(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.PlaceOrder", attribute.Int64("user.id", req.UserID))
	defer span.End()

	if len(req.Items) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, ErrEmptyCart
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	existing, err := s.orders.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		s.logger.Info("Duplicate checkout request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", existing.ID))
		return responseFor(existing, true), nil
	}

	items, subtotal, err := s.priceItems(ctx, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		util.SpanError(span, err)
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		UserID:         req.UserID,
		Subtotal:       subtotal,
		DiscountAmount: decimal.Zero,
		TotalPrice:     subtotal,
		Status:         models.OrderStatusPending,
		IdempotencyKey: req.IdempotencyKey,
	}

	code := strings.TrimSpace(req.DiscountCode)
	if code != "" {
		res, err := s.discounts.Evaluate(ctx, code, subtotal, now)
		if err != nil {
			util.OrdersFailedTotal.WithLabelValues("discount_rejected").Inc()
			return nil, err
		}
		order.DiscountCode = &res.Code
		order.DiscountAmount = res.AmountOff
		order.TotalPrice = res.NewTotal
		code = res.Code
	}

	if err := s.orders.CreateOrder(ctx, order, items); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// a concurrent request with the same key won the insert
			existing, gerr := s.orders.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
			if gerr == nil && existing != nil {
				s.logger.Info("Duplicate checkout request detected",
					zap.String("idempotency_key", req.IdempotencyKey),
					zap.Int64("order_id", existing.ID))
				return responseFor(existing, true), nil
			}
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		util.SpanError(span, err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if code != "" {
		if err := s.discounts.Consume(ctx, code, order.ID, now); err != nil {
			if uerr := s.orders.UpdateOrderStatus(ctx, order.ID, models.OrderStatusFailed); uerr != nil {
				s.logger.Error("Failed to mark order failed",
					zap.Int64("order_id", order.ID), zap.Error(uerr))
			}
			util.OrdersFailedTotal.WithLabelValues("discount_consume").Inc()
			return nil, err
		}
	}

	if err := s.orders.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCompleted); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = models.OrderStatusCompleted

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("total", order.TotalPrice.StringFixed(2)))

	if s.sink != nil {
		s.sink.Record(ctx, orderPlacedEvent(order, items, now))
	}

	return responseFor(order, false), nil
}

// priceItems resolves unit prices as product price plus variant adjustment
func (s *CheckoutService) priceItems(ctx context.Context, lines []CartItemRequest) ([]models.OrderItem, decimal.Decimal, error) {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, decimal.Zero, fmt.Errorf("%w: quantity %d for product %d", ErrInvalidCartItem, line.Quantity, line.ProductID)
		}
		ids = append(ids, line.ProductID)
	}

	products, err := s.catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to load products: %w", err)
	}
	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	items := make([]models.OrderItem, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		product, ok := byID[line.ProductID]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("%w: %d", ErrProductNotFound, line.ProductID)
		}

		unit := product.Price
		if line.VariantID != nil {
			variant, err := s.catalog.GetVariant(ctx, line.ProductID, *line.VariantID)
			if errors.Is(err, store.ErrNotFound) {
				return nil, decimal.Zero, fmt.Errorf("%w: variant %d of product %d", ErrProductNotFound, *line.VariantID, line.ProductID)
			}
			if err != nil {
				return nil, decimal.Zero, fmt.Errorf("failed to load variant: %w", err)
			}
			unit = unit.Add(variant.PriceAdjustment)
		}

		items = append(items, models.OrderItem{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: unit,
		})
		subtotal = subtotal.Add(unit.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	return items, subtotal, nil
}

// GetOrder retrieves an order by ID
func (s *CheckoutService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	items, err := s.orders.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

func responseFor(order *models.Order, duplicate bool) *CheckoutResponse {
	resp := &CheckoutResponse{
		OrderID:        order.ID,
		Status:         order.Status,
		Subtotal:       order.Subtotal,
		DiscountAmount: order.DiscountAmount,
		Total:          order.TotalPrice,
		Duplicate:      duplicate,
	}
	if order.DiscountCode != nil {
		resp.DiscountCode = *order.DiscountCode
	}
	return resp
}

func orderPlacedEvent(order *models.Order, items []models.OrderItem, at time.Time) models.OrderPlaced {
	lines := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		lines = append(lines, models.OrderItemData{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	event := models.OrderPlaced{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Total:          order.TotalPrice,
		DiscountAmount: order.DiscountAmount,
		Items:          lines,
		PlacedAt:       at,
	}
	if order.DiscountCode != nil {
		event.DiscountCode = *order.DiscountCode
	}
	return event
}
