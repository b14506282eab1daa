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
	"go.uber.org/zap"
)

// CatalogService owns products and customer signup, and reports shopper
// interactions with them to the event sink.
type CatalogService struct {
	store  CatalogStore
	sink   EventSink
	now    func() time.Time
	logger *zap.Logger
}

func NewCatalogService(store CatalogStore, sink EventSink) *CatalogService {
	return &CatalogService{
		store:  store,
		sink:   sink,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

type CreateProductRequest struct {
	SKU      string                 `json:"sku" binding:"required"`
	Name     string                 `json:"name" binding:"required"`
	Price    decimal.Decimal        `json:"price" binding:"required"`
	Variants []CreateVariantRequest `json:"variants"`
}

type CreateVariantRequest struct {
	SKU             string          `json:"sku" binding:"required"`
	Name            string          `json:"name" binding:"required"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
}

func (s *CatalogService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, []models.Variant, error) {
	if req.Price.IsNegative() {
		return nil, nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidProduct)
	}

	product := &models.Product{SKU: req.SKU, Name: req.Name, Price: req.Price}
	variants := make([]models.Variant, 0, len(req.Variants))
	for _, v := range req.Variants {
		if req.Price.Add(v.PriceAdjustment).IsNegative() {
			return nil, nil, fmt.Errorf("%w: variant %s would have a negative price", ErrInvalidProduct, v.SKU)
		}
		variants = append(variants, models.Variant{
			Name:            v.Name,
			SKU:             v.SKU,
			PriceAdjustment: v.PriceAdjustment,
		})
	}

	if err := s.store.CreateProduct(ctx, product, variants); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, nil, fmt.Errorf("%w: %v", ErrProductExists, err)
		}
		return nil, nil, err
	}

	s.logger.Info("Product created", zap.Int64("product_id", product.ID), zap.String("sku", product.SKU))
	return product, variants, nil
}

// RegisterCustomer creates the account and reports the signup
func (s *CatalogService) RegisterCustomer(ctx context.Context, email string) (*models.Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	customer := &models.Customer{Email: email}
	if err := s.store.CreateCustomer(ctx, customer); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrCustomerExists
		}
		return nil, err
	}

	s.record(ctx, models.UserSignedUp{
		UserID:     customer.ID,
		Email:      customer.Email,
		SignedUpAt: customer.CreatedAt,
	})
	return customer, nil
}

// GetProduct returns a product for its detail page and reports the view
func (s *CatalogService) GetProduct(ctx context.Context, productID int64, visitorID string, userID *int64) (*models.Product, error) {
	product, err := s.store.GetProductByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, err
	}
	s.record(ctx, models.ProductViewed{
		ProductID: productID,
		VisitorID: visitorID,
		UserID:    userID,
		ViewedAt:  s.now().UTC(),
	})
	return product, nil
}

// RecordProductView reports a product detail view
func (s *CatalogService) RecordProductView(ctx context.Context, productID int64, visitorID string, userID *int64) error {
	if err := s.ensureProduct(ctx, productID); err != nil {
		return err
	}
	s.record(ctx, models.ProductViewed{
		ProductID: productID,
		VisitorID: visitorID,
		UserID:    userID,
		ViewedAt:  s.now().UTC(),
	})
	return nil
}

// RecordAddToCart reports a product being added to a cart
func (s *CatalogService) RecordAddToCart(ctx context.Context, productID int64, variantID *int64, quantity int, userID *int64) error {
	if err := s.ensureProduct(ctx, productID); err != nil {
		return err
	}
	if quantity <= 0 {
		quantity = 1
	}
	s.record(ctx, models.ProductAddedToCart{
		ProductID: productID,
		VariantID: variantID,
		Quantity:  quantity,
		UserID:    userID,
		AddedAt:   s.now().UTC(),
	})
	return nil
}

func (s *CatalogService) ensureProduct(ctx context.Context, productID int64) error {
	_, err := s.store.GetProductByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrProductNotFound, productID)
	}
	return err
}

func (s *CatalogService) record(ctx context.Context, event models.Event) {
	if s.sink != nil {
		s.sink.Record(ctx, event)
	}
}
