package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/service"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const visitorCookie = "visitor_id"

type DiscountService interface {
	CreateCode(ctx context.Context, req *service.CreateDiscountRequest) (*models.DiscountCode, error)
	GetCode(ctx context.Context, code string) (*models.DiscountCode, error)
	Preview(ctx context.Context, code string, cartTotal decimal.Decimal, now time.Time) service.DiscountPreview
}

type CheckoutService interface {
	PlaceOrder(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResponse, error)
	GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error)
}

type CatalogService interface {
	CreateProduct(ctx context.Context, req *service.CreateProductRequest) (*models.Product, []models.Variant, error)
	GetProduct(ctx context.Context, productID int64, visitorID string, userID *int64) (*models.Product, error)
	RegisterCustomer(ctx context.Context, email string) (*models.Customer, error)
	RecordProductView(ctx context.Context, productID int64, visitorID string, userID *int64) error
	RecordAddToCart(ctx context.Context, productID int64, variantID *int64, quantity int, userID *int64) error
}

type ReportService interface {
	Overview(ctx context.Context, now time.Time) (*models.OverviewReport, error)
	Sales(ctx context.Context, now time.Time) (*models.SalesReport, error)
	Customers(ctx context.Context, now time.Time) (*models.CustomerReport, error)
	Products(ctx context.Context, now time.Time) (*models.ProductReport, error)
	Marketing(ctx context.Context, now time.Time) (*models.MarketingReport, error)
	Traffic(ctx context.Context, now time.Time) (*models.TrafficReport, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	discounts  DiscountService
	checkout   CheckoutService
	catalog    CatalogService
	reports    ReportService
	sink       service.EventSink
	readiness  map[string]Pinger
	skipPrefix []string
	timeout    time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// Options wires the handler's collaborators. Sink receives page visits;
// Readiness lists the dependencies /ready pings.
type Options struct {
	Discounts         DiscountService
	Checkout          CheckoutService
	Catalog           CatalogService
	Reports           ReportService
	Sink              service.EventSink
	Readiness         map[string]Pinger
	UntrackedPrefixes []string
	CheckoutTimeout   time.Duration
}

// NewHandler creates a new HTTP handler
func NewHandler(opts Options) *Handler {
	return &Handler{
		discounts:  opts.Discounts,
		checkout:   opts.Checkout,
		catalog:    opts.Catalog,
		reports:    opts.Reports,
		sink:       opts.Sink,
		readiness:  opts.Readiness,
		skipPrefix: opts.UntrackedPrefixes,
		timeout:    opts.CheckoutTimeout,
		now:        time.Now,
		logger:     util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/discounts", h.createDiscount)
		v1.GET("/discounts/:code", h.getDiscount)
		v1.POST("/discounts/preview", h.previewDiscount)

		v1.POST("/checkout", h.placeOrder)
		v1.POST("/customers", h.registerCustomer)
		v1.POST("/products", h.createProduct)
		v1.POST("/products/:id/view", h.recordView)
		v1.POST("/products/:id/cart", h.recordAddToCart)
		v1.POST("/track/page", h.trackPage)

		reports := v1.Group("/reports")
		reports.GET("/overview", h.overviewReport)
		reports.GET("/sales", h.salesReport)
		reports.GET("/customers", h.customerReport)
		reports.GET("/products", h.productReport)
		reports.GET("/marketing", h.marketingReport)
		reports.GET("/traffic", h.trafficReport)
	}

	storefront := v1.Group("")
	storefront.Use(h.pageVisitMiddleware())
	{
		storefront.GET("/products/:id", h.getProduct)
		storefront.GET("/orders/:id", h.getOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings the database and counter store
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) createDiscount(c *gin.Context) {
	var req service.CreateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	dc, err := h.discounts.CreateCode(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, "Failed to create discount code", err)
		return
	}
	c.JSON(http.StatusCreated, dc)
}

func (h *Handler) getDiscount(c *gin.Context) {
	dc, err := h.discounts.GetCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, "Failed to get discount code", err)
		return
	}
	c.JSON(http.StatusOK, dc)
}

type previewRequest struct {
	Code      string          `json:"code"`
	CartTotal decimal.Decimal `json:"cart_total"`
}

// previewDiscount always answers 200; a code that cannot apply comes back
// with applied=false and a message.
func (h *Handler) previewDiscount(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.CartTotal.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": "cart_total cannot be negative"})
		return
	}

	c.JSON(http.StatusOK, h.discounts.Preview(c.Request.Context(), req.Code, req.CartTotal, h.now()))
}

// placeOrder handles checkout
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	resp, err := h.checkout.PlaceOrder(ctx, &req)
	if err != nil {
		h.writeError(c, "Failed to place order", err)
		return
	}

	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := idParam(c, "Invalid order ID")
	if !ok {
		return
	}

	order, items, err := h.checkout.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, "Order not found", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

type registerRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h *Handler) registerCustomer(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	customer, err := h.catalog.RegisterCustomer(c.Request.Context(), req.Email)
	if err != nil {
		h.writeError(c, "Failed to register customer", err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, variants, err := h.catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, "Failed to create product", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"product":  product,
		"variants": variants,
	})
}

func (h *Handler) getProduct(c *gin.Context) {
	productID, ok := idParam(c, "Invalid product ID")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), productID, visitorID(c), userIDHeader(c))
	if err != nil {
		h.writeError(c, "Product not found", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) recordView(c *gin.Context) {
	productID, ok := idParam(c, "Invalid product ID")
	if !ok {
		return
	}

	if err := h.catalog.RecordProductView(c.Request.Context(), productID, visitorID(c), userIDHeader(c)); err != nil {
		h.writeError(c, "Failed to record product view", err)
		return
	}
	c.Status(http.StatusAccepted)
}

type addToCartRequest struct {
	VariantID *int64 `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) recordAddToCart(c *gin.Context) {
	productID, ok := idParam(c, "Invalid product ID")
	if !ok {
		return
	}

	var req addToCartRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	err := h.catalog.RecordAddToCart(c.Request.Context(), productID, req.VariantID, req.Quantity, userIDHeader(c))
	if err != nil {
		h.writeError(c, "Failed to record add to cart", err)
		return
	}
	c.Status(http.StatusAccepted)
}

type trackPageRequest struct {
	Path     string `json:"path" binding:"required"`
	Referrer string `json:"referrer"`
}

// trackPage records a page rendered outside this service, such as a
// client-side route change.
func (h *Handler) trackPage(c *gin.Context) {
	var req trackPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	h.recordVisit(c, req.Path, req.Referrer)
	c.Status(http.StatusAccepted)
}

func (h *Handler) overviewReport(c *gin.Context) {
	report, err := h.reports.Overview(c.Request.Context(), h.now())
	h.writeReport(c, report, err)
}

func (h *Handler) salesReport(c *gin.Context) {
	report, err := h.reports.Sales(c.Request.Context(), h.now())
	h.writeReport(c, report, err)
}

func (h *Handler) customerReport(c *gin.Context) {
	report, err := h.reports.Customers(c.Request.Context(), h.now())
	h.writeReport(c, report, err)
}

func (h *Handler) productReport(c *gin.Context) {
	report, err := h.reports.Products(c.Request.Context(), h.now())
	h.writeReport(c, report, err)
}

func (h *Handler) marketingReport(c *gin.Context) {
	report, err := h.reports.Marketing(c.Request.Context(), h.now())
	h.writeReport(c, report, err)
}

func (h *Handler) trafficReport(c *gin.Context) {
	report, err := h.reports.Traffic(c.Request.Context(), h.now())
	h.writeReport(c, report, err)
}

func (h *Handler) writeReport(c *gin.Context, report interface{}, err error) {
	if err != nil {
		h.writeError(c, "Failed to build report", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// pageVisitMiddleware reports every successful storefront GET as a page visit
func (h *Handler) pageVisitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodGet || c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		path := c.Request.URL.Path
		for _, prefix := range h.skipPrefix {
			if strings.HasPrefix(path, prefix) {
				return
			}
		}
		h.recordVisit(c, path, c.Request.Referer())
	}
}

func (h *Handler) recordVisit(c *gin.Context, path, referrer string) {
	if h.sink == nil {
		return
	}
	h.sink.Record(c.Request.Context(), models.PageVisited{
		VisitorID: visitorID(c),
		Path:      path,
		Referrer:  referrer,
		UserAgent: c.Request.UserAgent(),
		VisitedAt: h.now().UTC(),
	})
}

// writeError maps service errors to HTTP statuses
func (h *Handler) writeError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrDiscountNotFound),
		errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrDiscountExpired),
		errors.Is(err, service.ErrDiscountLimitReached),
		errors.Is(err, service.ErrDiscountBelowMinimum),
		errors.Is(err, service.ErrDiscountAlreadyRedeemed),
		errors.Is(err, service.ErrCustomerExists),
		errors.Is(err, service.ErrProductExists):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidDiscount),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidProduct),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidCartItem):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

func idParam(c *gin.Context, msg string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": msg,
		})
		return 0, false
	}
	return id, true
}

// visitorID prefers the visitor cookie and falls back to a hash of the
// client address and user agent.
func visitorID(c *gin.Context) string {
	if v, err := c.Cookie(visitorCookie); err == nil && v != "" {
		return v
	}
	return util.HashVisitor(c.ClientIP(), c.Request.UserAgent())
}

func userIDHeader(c *gin.Context) *int64 {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
