package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
)

// fakeDiscountStore serializes redemptions behind one mutex the way the
// row lock does in Postgres.
type fakeDiscountStore struct {
	mu          sync.Mutex
	codes       map[string]*models.DiscountCode
	redemptions map[int64]bool
}

func newFakeDiscountStore(codes ...*models.DiscountCode) *fakeDiscountStore {
	s := &fakeDiscountStore{
		codes:       make(map[string]*models.DiscountCode),
		redemptions: make(map[int64]bool),
	}
	for _, dc := range codes {
		s.codes[dc.Code] = dc
	}
	return s
}

func (s *fakeDiscountStore) CreateDiscountCode(_ context.Context, dc *models.DiscountCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[dc.Code]; ok {
		return fmt.Errorf("discount code %s: %w", dc.Code, store.ErrDuplicate)
	}
	dc.ID = int64(len(s.codes) + 1)
	cp := *dc
	s.codes[dc.Code] = &cp
	return nil
}

func (s *fakeDiscountStore) GetDiscountCode(_ context.Context, code string) (*models.DiscountCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dc, ok := s.codes[code]
	if !ok {
		return nil, fmt.Errorf("discount code %s: %w", code, store.ErrNotFound)
	}
	cp := *dc
	return &cp, nil
}

func (s *fakeDiscountStore) ConsumeDiscountCode(_ context.Context, code string, orderID int64, check func(*models.DiscountCode) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dc, ok := s.codes[code]
	if !ok {
		if err := check(nil); err != nil {
			return err
		}
		return store.ErrNotFound
	}
	if s.redemptions[orderID] {
		return store.ErrAlreadyRedeemed
	}
	cp := *dc
	if err := check(&cp); err != nil {
		return err
	}
	s.redemptions[orderID] = true
	dc.TimesUsed++
	return nil
}

func (s *fakeDiscountStore) timesUsed(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[code].TimesUsed
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *recordingSink) Record(_ context.Context, event models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) all() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.events...)
}

type fakeCatalog struct {
	mu        sync.Mutex
	products  map[int64]models.Product
	variants  map[int64]models.Variant
	customers map[string]models.Customer

	// gate, when set, holds every pricing read until all callers arrive
	gate *sync.WaitGroup
}

func newFakeCatalog(products ...models.Product) *fakeCatalog {
	c := &fakeCatalog{
		products:  make(map[int64]models.Product),
		variants:  make(map[int64]models.Variant),
		customers: make(map[string]models.Customer),
	}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) CreateProduct(_ context.Context, product *models.Product, variants []models.Variant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.products {
		if p.SKU == product.SKU {
			return fmt.Errorf("product %s: %w", product.SKU, store.ErrDuplicate)
		}
	}
	product.ID = int64(len(c.products) + 1)
	c.products[product.ID] = *product
	for i := range variants {
		variants[i].ProductID = product.ID
		variants[i].ID = int64(len(c.variants) + 1)
		c.variants[variants[i].ID] = variants[i]
	}
	return nil
}

func (c *fakeCatalog) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (c *fakeCatalog) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	if c.gate != nil {
		c.gate.Done()
		c.gate.Wait()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Product
	seen := make(map[int64]bool)
	for _, id := range ids {
		if p, ok := c.products[id]; ok && !seen[id] {
			out = append(out, p)
			seen[id] = true
		}
	}
	return out, nil
}

func (c *fakeCatalog) GetVariant(_ context.Context, productID, variantID int64) (*models.Variant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.variants[variantID]
	if !ok || v.ProductID != productID {
		return nil, fmt.Errorf("variant %d: %w", variantID, store.ErrNotFound)
	}
	return &v, nil
}

func (c *fakeCatalog) CreateCustomer(_ context.Context, customer *models.Customer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.customers[customer.Email]; ok {
		return fmt.Errorf("customer %s: %w", customer.Email, store.ErrDuplicate)
	}
	customer.ID = int64(len(c.customers) + 1)
	customer.IsActive = true
	customer.CreatedAt = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c.customers[customer.Email] = *customer
	return nil
}

type fakeOrders struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*models.Order
	items  map[int64][]models.OrderItem
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{
		orders: make(map[int64]*models.Order),
		items:  make(map[int64][]models.OrderItem),
	}
}

func (o *fakeOrders) CreateOrder(_ context.Context, order *models.Order, items []models.OrderItem) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, existing := range o.orders {
		if order.IdempotencyKey != "" && existing.IdempotencyKey == order.IdempotencyKey {
			return store.ErrDuplicate
		}
	}
	o.nextID++
	order.ID = o.nextID
	cp := *order
	o.orders[order.ID] = &cp
	for i := range items {
		items[i].OrderID = order.ID
		items[i].ID = int64(i + 1)
	}
	o.items[order.ID] = append([]models.OrderItem(nil), items...)
	return nil
}

func (o *fakeOrders) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	order, ok := o.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	cp := *order
	return &cp, nil
}

func (o *fakeOrders) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, order := range o.orders {
		if order.IdempotencyKey == key {
			cp := *order
			return &cp, nil
		}
	}
	return nil, nil
}

func (o *fakeOrders) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.items[orderID], nil
}

func (o *fakeOrders) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if order, ok := o.orders[orderID]; ok {
		order.Status = status
	}
	return nil
}

func (o *fakeOrders) status(orderID int64) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.orders[orderID].Status
}

// fakeAggregates applies deltas through the models' Add methods under one
// mutex, standing in for the single-statement upserts.
type fakeAggregates struct {
	mu        sync.Mutex
	sales     map[string]*models.SalesAggregate
	customers map[string]*models.CustomerAggregate
	products  map[string]*models.ProductAggregate
	marketing map[string]*models.MarketingAggregate
	orders    map[int64][]int64
	failSales error
}

func newFakeAggregates() *fakeAggregates {
	return &fakeAggregates{
		sales:     make(map[string]*models.SalesAggregate),
		customers: make(map[string]*models.CustomerAggregate),
		products:  make(map[string]*models.ProductAggregate),
		marketing: make(map[string]*models.MarketingAggregate),
		orders:    make(map[int64][]int64),
	}
}

func (a *fakeAggregates) IncrementSales(_ context.Context, day time.Time, d models.SalesDelta) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failSales != nil {
		return a.failSales
	}
	key := models.DayKey(day)
	if a.sales[key] == nil {
		a.sales[key] = &models.SalesAggregate{Date: models.Day(day)}
	}
	a.sales[key].Add(d)
	return nil
}

func (a *fakeAggregates) IncrementCustomers(_ context.Context, day time.Time, d models.CustomerDelta) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := models.DayKey(day)
	if a.customers[key] == nil {
		a.customers[key] = &models.CustomerAggregate{Date: models.Day(day)}
	}
	a.customers[key].Add(d)
	return nil
}

func (a *fakeAggregates) IncrementProduct(_ context.Context, productID int64, day time.Time, d models.ProductDelta) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := fmt.Sprintf("%d/%s", productID, models.DayKey(day))
	if a.products[key] == nil {
		a.products[key] = &models.ProductAggregate{ProductID: productID, Date: models.Day(day)}
	}
	a.products[key].Add(d)
	return nil
}

func (a *fakeAggregates) IncrementMarketing(_ context.Context, code string, day time.Time, d models.MarketingDelta) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := code + "/" + models.DayKey(day)
	if a.marketing[key] == nil {
		a.marketing[key] = &models.MarketingAggregate{DiscountCode: code, Date: models.Day(day)}
	}
	a.marketing[key].Add(d)
	return nil
}

func (a *fakeAggregates) HasPriorOrder(_ context.Context, userID, orderID int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range a.orders[userID] {
		if id < orderID {
			return true, nil
		}
	}
	return false, nil
}

func (a *fakeAggregates) addOrder(userID, orderID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orders[userID] = append(a.orders[userID], orderID)
}

func (a *fakeAggregates) salesFor(day string) models.SalesAggregate {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sales[day] == nil {
		return models.SalesAggregate{}
	}
	return *a.sales[day]
}

func (a *fakeAggregates) customersFor(day string) models.CustomerAggregate {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.customers[day] == nil {
		return models.CustomerAggregate{}
	}
	return *a.customers[day]
}

func (a *fakeAggregates) productFor(productID int64, day string) models.ProductAggregate {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.products[fmt.Sprintf("%d/%s", productID, day)]
	if p == nil {
		return models.ProductAggregate{}
	}
	return *p
}

func (a *fakeAggregates) marketingFor(code, day string) models.MarketingAggregate {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := a.marketing[code+"/"+day]
	if m == nil {
		return models.MarketingAggregate{}
	}
	return *m
}

// fakeSessions holds visitor sessions and implements both the tracker and
// the sweep side of the session store.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*models.VisitorSession
	order    []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]*models.VisitorSession)}
}

func copySession(s *models.VisitorSession) *models.VisitorSession {
	cp := *s
	cp.PagesVisited = append([]string(nil), s.PagesVisited...)
	return &cp
}

func (f *fakeSessions) GetLatestSession(_ context.Context, visitorID string) (*models.VisitorSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.VisitorSession
	for _, id := range f.order {
		s := f.sessions[id]
		if s.VisitorID == visitorID && (latest == nil || !s.SessionStart.Before(latest.SessionStart)) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copySession(latest), nil
}

func (f *fakeSessions) CreateSession(_ context.Context, session *models.VisitorSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.SessionID] = copySession(session)
	f.order = append(f.order, session.SessionID)
	return nil
}

func (f *fakeSessions) TouchSession(_ context.Context, sessionID, path string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return false, store.ErrNotFound
	}
	var reverted bool
	if !s.HasVisited(path) {
		reverted = len(s.PagesVisited) == 1 && !s.BounceReverted && !s.ProcessedBounce
		s.PagesVisited = append(s.PagesVisited, path)
	}
	if reverted {
		s.BounceReverted = true
	}
	if at.After(s.LastActivity) {
		s.LastActivity = at
	}
	return reverted, nil
}

func (f *fakeSessions) ListBounceCandidates(_ context.Context, cutoff time.Time, limit int) ([]models.VisitorSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.VisitorSession
	for _, id := range f.order {
		s := f.sessions[id]
		if len(s.PagesVisited) <= 1 && s.LastActivity.Before(cutoff) && !s.ProcessedBounce && !s.BounceReverted {
			out = append(out, *copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.Before(out[j].LastActivity) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSessions) FinalizeBounce(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.ProcessedBounce || s.BounceReverted || len(s.PagesVisited) > 1 {
		return false, nil
	}
	s.ProcessedBounce = true
	return true, nil
}

func (f *fakeSessions) get(sessionID string) models.VisitorSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *copySession(f.sessions[sessionID])
}

type fakeTrafficStore struct {
	mu        sync.Mutex
	tokens    map[string]bool
	days      map[string]*models.TrafficAggregate
	referrals map[string]map[string]int64
	fail      error
}

func newFakeTrafficStore() *fakeTrafficStore {
	return &fakeTrafficStore{
		tokens:    make(map[string]bool),
		days:      make(map[string]*models.TrafficAggregate),
		referrals: make(map[string]map[string]int64),
	}
}

func (f *fakeTrafficStore) ApplyTrafficFlush(_ context.Context, d models.TrafficDelta) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return false, f.fail
	}
	if f.tokens[d.Token] {
		return false, nil
	}
	f.tokens[d.Token] = true
	if f.days[d.Day] == nil {
		f.days[d.Day] = &models.TrafficAggregate{}
		f.referrals[d.Day] = make(map[string]int64)
	}
	f.days[d.Day].Add(d)
	for source, n := range d.Referrals {
		f.referrals[d.Day][source] += n
	}
	return true, nil
}

func (f *fakeTrafficStore) day(day string) models.TrafficAggregate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.days[day] == nil {
		return models.TrafficAggregate{}
	}
	return *f.days[day]
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

type fakeSegmentStore struct {
	stats    []models.UserOrderStats
	segments map[int64]models.UserSegment
	failFor  int64
}

func (f *fakeSegmentStore) ListCustomerOrderStats(context.Context, time.Time, time.Time) ([]models.UserOrderStats, error) {
	return f.stats, nil
}

func (f *fakeSegmentStore) UpsertUserSegment(_ context.Context, seg models.UserSegment) error {
	if seg.UserID == f.failFor {
		return fmt.Errorf("boom")
	}
	if f.segments == nil {
		f.segments = make(map[int64]models.UserSegment)
	}
	f.segments[seg.UserID] = seg
	return nil
}

type fakeReportStore struct {
	calls int
	sales []models.SalesAggregate
}

func (f *fakeReportStore) ListSales(context.Context, time.Time) ([]models.SalesAggregate, error) {
	f.calls++
	return f.sales, nil
}

func (f *fakeReportStore) ListMonthlySales(context.Context, time.Time, int) ([]models.MonthlySales, error) {
	return nil, nil
}

func (f *fakeReportStore) ListCustomerAggregates(context.Context, time.Time) ([]models.CustomerAggregate, error) {
	return []models.CustomerAggregate{
		{NewCustomers: 2, ReturningCustomers: 2, RetentionRate: 50},
		{NewCustomers: 1, ReturningCustomers: 3, RetentionRate: 75},
	}, nil
}

func (f *fakeReportStore) ListProductPerformance(_ context.Context, _ time.Time, limit int) ([]models.ProductPerformance, error) {
	return []models.ProductPerformance{{ProductID: 1, Name: "Mug", TotalPurchases: 4}}, nil
}

func (f *fakeReportStore) ListMarketing(context.Context, time.Time) ([]models.MarketingAggregate, error) {
	return nil, nil
}

func (f *fakeReportStore) ListDiscountSummary(context.Context, time.Time) ([]models.DiscountSummary, error) {
	return nil, nil
}

func (f *fakeReportStore) ListTraffic(context.Context, time.Time) ([]models.TrafficAggregate, error) {
	return nil, nil
}

// memoryReportCache stores values as-is keyed by name
type memoryReportCache struct {
	mu     sync.Mutex
	values map[string]interface{}
}

func (c *memoryReportCache) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	switch d := dest.(type) {
	case *models.OverviewReport:
		*d = *(v.(*models.OverviewReport))
	case *models.CustomerReport:
		*d = *(v.(*models.CustomerReport))
	default:
		return false, nil
	}
	return true, nil
}

func (c *memoryReportCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]interface{})
	}
	c.values[key] = value
	return nil
}
