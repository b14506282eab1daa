package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeUserSignedUp       = "USER_SIGNED_UP"
	EventTypeProductViewed      = "PRODUCT_VIEWED"
	EventTypeProductAddedToCart = "PRODUCT_ADDED_TO_CART"
	EventTypePageVisited        = "PAGE_VISITED"
	EventTypeDiscountApplied    = "DISCOUNT_APPLIED"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMalformedEvent   = errors.New("malformed event")
)

// Event is the closed set of storefront facts the analytics recorder consumes.
// Only types in this package implement it.
type Event interface {
	Type() string
	OccurredAt() time.Time
	Validate() error
	isEvent()
}

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

type envelope struct {
	BaseEvent
	Payload json.RawMessage `json:"payload"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	VariantID *int64          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderPlaced is emitted once a checkout has committed its order and
// consumed its discount code.
type OrderPlaced struct {
	OrderID        int64           `json:"order_id"`
	UserID         int64           `json:"user_id"`
	Total          decimal.Decimal `json:"total"`
	DiscountCode   string          `json:"discount_code,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Items          []OrderItemData `json:"items"`
	PlacedAt       time.Time       `json:"placed_at"`
}

type UserSignedUp struct {
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email"`
	SignedUpAt time.Time `json:"signed_up_at"`
}

type ProductViewed struct {
	ProductID int64     `json:"product_id"`
	VisitorID string    `json:"visitor_id,omitempty"`
	UserID    *int64    `json:"user_id,omitempty"`
	ViewedAt  time.Time `json:"viewed_at"`
}

type ProductAddedToCart struct {
	ProductID int64     `json:"product_id"`
	VariantID *int64    `json:"variant_id,omitempty"`
	Quantity  int       `json:"quantity"`
	UserID    *int64    `json:"user_id,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}

// PageVisited is one tracked storefront page request
type PageVisited struct {
	VisitorID string    `json:"visitor_id"`
	Path      string    `json:"path"`
	Referrer  string    `json:"referrer,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	VisitedAt time.Time `json:"visited_at"`
}

// DiscountApplied is emitted when a code is successfully previewed against a cart
type DiscountApplied struct {
	Code           string          `json:"code"`
	OrderTotal     decimal.Decimal `json:"order_total"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	AppliedAt      time.Time       `json:"applied_at"`
}

func (OrderPlaced) Type() string        { return EventTypeOrderPlaced }
func (UserSignedUp) Type() string       { return EventTypeUserSignedUp }
func (ProductViewed) Type() string      { return EventTypeProductViewed }
func (ProductAddedToCart) Type() string { return EventTypeProductAddedToCart }
func (PageVisited) Type() string        { return EventTypePageVisited }
func (DiscountApplied) Type() string    { return EventTypeDiscountApplied }

func (e OrderPlaced) OccurredAt() time.Time        { return e.PlacedAt }
func (e UserSignedUp) OccurredAt() time.Time       { return e.SignedUpAt }
func (e ProductViewed) OccurredAt() time.Time      { return e.ViewedAt }
func (e ProductAddedToCart) OccurredAt() time.Time { return e.AddedAt }
func (e PageVisited) OccurredAt() time.Time        { return e.VisitedAt }
func (e DiscountApplied) OccurredAt() time.Time    { return e.AppliedAt }

func (OrderPlaced) isEvent()        {}
func (UserSignedUp) isEvent()       {}
func (ProductViewed) isEvent()      {}
func (ProductAddedToCart) isEvent() {}
func (PageVisited) isEvent()        {}
func (DiscountApplied) isEvent()    {}

func (e OrderPlaced) Validate() error {
	if e.OrderID <= 0 || e.UserID <= 0 {
		return fmt.Errorf("%w: order placed without order or user id", ErrMalformedEvent)
	}
	if e.Total.IsNegative() || e.DiscountAmount.IsNegative() {
		return fmt.Errorf("%w: negative order amounts", ErrMalformedEvent)
	}
	for _, item := range e.Items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			return fmt.Errorf("%w: invalid order line for product %d", ErrMalformedEvent, item.ProductID)
		}
	}
	return nil
}

func (e UserSignedUp) Validate() error {
	if e.UserID <= 0 {
		return fmt.Errorf("%w: signup without user id", ErrMalformedEvent)
	}
	return nil
}

func (e ProductViewed) Validate() error {
	if e.ProductID <= 0 {
		return fmt.Errorf("%w: view without product id", ErrMalformedEvent)
	}
	return nil
}

func (e ProductAddedToCart) Validate() error {
	if e.ProductID <= 0 {
		return fmt.Errorf("%w: add to cart without product id", ErrMalformedEvent)
	}
	return nil
}

func (e PageVisited) Validate() error {
	if e.VisitorID == "" || e.Path == "" {
		return fmt.Errorf("%w: page visit without visitor or path", ErrMalformedEvent)
	}
	return nil
}

func (e DiscountApplied) Validate() error {
	if e.Code == "" {
		return fmt.Errorf("%w: discount applied without code", ErrMalformedEvent)
	}
	return nil
}

// EncodeEvent wraps the event in the {event_id, event_type, timestamp, payload}
// envelope under a fresh event id.
func EncodeEvent(e Event) (BaseEvent, []byte, error) {
	base := BaseEvent{
		EventID:   uuid.New().String(),
		EventType: e.Type(),
		Timestamp: time.Now().UTC(),
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return base, nil, fmt.Errorf("failed to marshal %s payload: %w", e.Type(), err)
	}

	data, err := json.Marshal(envelope{BaseEvent: base, Payload: payload})
	if err != nil {
		return base, nil, fmt.Errorf("failed to marshal event envelope: %w", err)
	}
	return base, data, nil
}

// DecodeEvent parses an envelope and its typed payload
func DecodeEvent(data []byte) (BaseEvent, Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return BaseEvent{}, nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var event Event
	switch env.EventType {
	case EventTypeOrderPlaced:
		var e OrderPlaced
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return env.BaseEvent, nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		event = e
	case EventTypeUserSignedUp:
		var e UserSignedUp
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return env.BaseEvent, nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		event = e
	case EventTypeProductViewed:
		var e ProductViewed
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return env.BaseEvent, nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		event = e
	case EventTypeProductAddedToCart:
		var e ProductAddedToCart
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return env.BaseEvent, nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		event = e
	case EventTypePageVisited:
		var e PageVisited
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return env.BaseEvent, nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		event = e
	case EventTypeDiscountApplied:
		var e DiscountApplied
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return env.BaseEvent, nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		event = e
	default:
		return env.BaseEvent, nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}

	return env.BaseEvent, event, nil
}
