package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutFixture struct {
	svc       *CheckoutService
	catalog   *fakeCatalog
	orders    *fakeOrders
	discounts *fakeDiscountStore
	sink      *recordingSink
}

func newCheckoutFixture(codes ...*models.DiscountCode) *checkoutFixture {
	f := &checkoutFixture{
		catalog: newFakeCatalog(
			models.Product{ID: 1, SKU: "MUG", Name: "Mug", Price: dec("25.00")},
			models.Product{ID: 2, SKU: "TEE", Name: "T-Shirt", Price: dec("50.00")},
		),
		orders:    newFakeOrders(),
		discounts: newFakeDiscountStore(codes...),
		sink:      &recordingSink{},
	}
	f.catalog.variants[10] = models.Variant{ID: 10, ProductID: 2, Name: "XL", PriceAdjustment: dec("5.00")}

	engine := NewDiscountEngine(f.discounts, f.sink, true)
	f.svc = NewCheckoutService(f.catalog, f.orders, engine, f.sink)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func TestPlaceOrderWithDiscount(t *testing.T) {
	f := newCheckoutFixture(saveTen())

	resp, err := f.svc.PlaceOrder(context.Background(), &CheckoutRequest{
		UserID:       3,
		Items:        []CartItemRequest{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}},
		DiscountCode: "SAVE10",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCompleted, resp.Status)
	assert.True(t, resp.Subtotal.Equal(dec("100.00")))
	assert.True(t, resp.DiscountAmount.Equal(dec("10.00")))
	assert.True(t, resp.Total.Equal(dec("90.00")))
	assert.Equal(t, "SAVE10", resp.DiscountCode)
	assert.Equal(t, 1, f.discounts.timesUsed("SAVE10"))
	assert.Equal(t, models.OrderStatusCompleted, f.orders.status(resp.OrderID))

	events := f.sink.all()
	require.Len(t, events, 1)
	placed, ok := events[0].(models.OrderPlaced)
	require.True(t, ok)
	assert.Equal(t, resp.OrderID, placed.OrderID)
	assert.Equal(t, "SAVE10", placed.DiscountCode)
	assert.True(t, placed.Total.Equal(dec("90.00")))
	assert.Len(t, placed.Items, 2)
}

func TestPlaceOrderVariantPricing(t *testing.T) {
	f := newCheckoutFixture()
	variant := int64(10)

	resp, err := f.svc.PlaceOrder(context.Background(), &CheckoutRequest{
		UserID: 3,
		Items:  []CartItemRequest{{ProductID: 2, VariantID: &variant, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.True(t, resp.Total.Equal(dec("110.00")), resp.Total.String())
	assert.True(t, resp.DiscountAmount.IsZero())
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.PlaceOrder(context.Background(), &CheckoutRequest{UserID: 1})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrderUnknownProduct(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.PlaceOrder(context.Background(), &CheckoutRequest{
		UserID: 1,
		Items:  []CartItemRequest{{ProductID: 99, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Empty(t, f.sink.all())
}

func TestPlaceOrderRejectedDiscountCreatesNothing(t *testing.T) {
	f := newCheckoutFixture(saveTen())

	_, err := f.svc.PlaceOrder(context.Background(), &CheckoutRequest{
		UserID:       1,
		Items:        []CartItemRequest{{ProductID: 1, Quantity: 1}},
		DiscountCode: "SAVE10",
	})
	assert.ErrorIs(t, err, ErrDiscountBelowMinimum)
	assert.Empty(t, f.orders.orders)
	assert.Equal(t, 0, f.discounts.timesUsed("SAVE10"))
}

func TestPlaceOrderConsumeFailureMarksOrderFailed(t *testing.T) {
	dc := saveTen()
	f := newCheckoutFixture(dc)

	// the code runs out between evaluation and redemption
	f.discounts.redemptions[1] = true

	_, err := f.svc.PlaceOrder(context.Background(), &CheckoutRequest{
		UserID:       1,
		Items:        []CartItemRequest{{ProductID: 2, Quantity: 2}},
		DiscountCode: "SAVE10",
	})
	assert.ErrorIs(t, err, ErrDiscountAlreadyRedeemed)
	assert.Equal(t, models.OrderStatusFailed, f.orders.status(1))
	assert.Empty(t, f.sink.all())
}

func TestPlaceOrderIdempotencyKey(t *testing.T) {
	f := newCheckoutFixture()
	req := func() *CheckoutRequest {
		return &CheckoutRequest{
			UserID:         1,
			Items:          []CartItemRequest{{ProductID: 1, Quantity: 1}},
			IdempotencyKey: "cart-42",
		}
	}

	first, err := f.svc.PlaceOrder(context.Background(), req())
	require.NoError(t, err)
	second, err := f.svc.PlaceOrder(context.Background(), req())
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.True(t, second.Duplicate)
	assert.Len(t, f.orders.orders, 1)
	assert.Len(t, f.sink.all(), 1)
}

func TestPlaceOrderConcurrentRetrySameKey(t *testing.T) {
	f := newCheckoutFixture()
	// both requests pass the key lookup before either order is inserted
	f.catalog.gate = &sync.WaitGroup{}
	f.catalog.gate.Add(2)

	var wg sync.WaitGroup
	responses := make([]*CheckoutResponse, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i], errs[i] = f.svc.PlaceOrder(context.Background(), &CheckoutRequest{
				UserID:         1,
				Items:          []CartItemRequest{{ProductID: 1, Quantity: 1}},
				IdempotencyKey: "retry-7",
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, responses[0].OrderID, responses[1].OrderID)
	assert.True(t, responses[0].Duplicate != responses[1].Duplicate)
	assert.Len(t, f.orders.orders, 1)
	assert.Len(t, f.sink.all(), 1)
}

func TestPlaceOrderRejectsZeroQuantity(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.PlaceOrder(context.Background(), &CheckoutRequest{
		UserID: 1,
		Items:  []CartItemRequest{{ProductID: 1, Quantity: 0}},
	})
	assert.ErrorIs(t, err, ErrInvalidCartItem)
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewCatalogService(newFakeCatalog(), &recordingSink{})
	ctx := context.Background()

	_, _, err := svc.CreateProduct(ctx, &CreateProductRequest{SKU: "NEG", Name: "Neg", Price: dec("-1")})
	assert.ErrorIs(t, err, ErrInvalidProduct)

	_, _, err = svc.CreateProduct(ctx, &CreateProductRequest{
		SKU:      "CAP",
		Name:     "Cap",
		Price:    dec("5.00"),
		Variants: []CreateVariantRequest{{SKU: "CAP-S", Name: "S", PriceAdjustment: dec("-6.00")}},
	})
	assert.ErrorIs(t, err, ErrInvalidProduct)

	product, variants, err := svc.CreateProduct(ctx, &CreateProductRequest{
		SKU:      "CAP",
		Name:     "Cap",
		Price:    dec("5.00"),
		Variants: []CreateVariantRequest{{SKU: "CAP-L", Name: "L", PriceAdjustment: dec("1.00")}},
	})
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, product.ID, variants[0].ProductID)

	_, _, err = svc.CreateProduct(ctx, &CreateProductRequest{SKU: "CAP", Name: "Cap again", Price: dec("5.00")})
	assert.ErrorIs(t, err, ErrProductExists)
}

func TestRegisterCustomerRejectsBadEmail(t *testing.T) {
	svc := NewCatalogService(newFakeCatalog(), &recordingSink{})

	_, err := svc.RegisterCustomer(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = svc.RegisterCustomer(context.Background(), "no-at-sign")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestGetOrderNotFound(t *testing.T) {
	f := newCheckoutFixture()

	_, _, err := f.svc.GetOrder(context.Background(), 404)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestRegisterCustomer(t *testing.T) {
	catalog := newFakeCatalog()
	sink := &recordingSink{}
	svc := NewCatalogService(catalog, sink)

	customer, err := svc.RegisterCustomer(context.Background(), " Ada@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", customer.Email)

	_, err = svc.RegisterCustomer(context.Background(), "ada@example.com")
	assert.ErrorIs(t, err, ErrCustomerExists)

	events := sink.all()
	require.Len(t, events, 1)
	signup, ok := events[0].(models.UserSignedUp)
	require.True(t, ok)
	assert.Equal(t, customer.ID, signup.UserID)
}

func TestRecordProductViewUnknownProduct(t *testing.T) {
	sink := &recordingSink{}
	svc := NewCatalogService(newFakeCatalog(models.Product{ID: 1, Price: dec("5")}), sink)

	assert.ErrorIs(t, svc.RecordProductView(context.Background(), 2, "v1", nil), ErrProductNotFound)
	require.NoError(t, svc.RecordAddToCart(context.Background(), 1, nil, 0, nil))

	events := sink.all()
	require.Len(t, events, 1)
	added := events[0].(models.ProductAddedToCart)
	assert.Equal(t, 1, added.Quantity)
}
