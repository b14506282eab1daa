package service

import (
	"context"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Report windows
const (
	OverviewDays  = 30
	SalesDays     = 365
	CustomerDays  = 365
	ProductDays   = 30
	MarketingDays = 90
	TrafficDays   = 90

	overviewTopProducts = 5
	salesReportMonths   = 12
)

// ReportService builds the analytics dashboards from the daily aggregates
type ReportService struct {
	store  ReportStore
	cache  ReportCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewReportService creates a report service. cache may be nil.
func NewReportService(store ReportStore, cache ReportCache, ttl time.Duration) *ReportService {
	return &ReportService{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

func since(now time.Time, days int) time.Time {
	return models.Day(now).AddDate(0, 0, -days)
}

// cached serves dest from the report cache or fills it with build
func (s *ReportService) cached(ctx context.Context, name string, from time.Time, dest interface{}, build func() error) error {
	key := fmt.Sprintf("report:%s:%s", name, models.DayKey(from))

	if s.cache != nil && s.ttl > 0 {
		hit, err := s.cache.GetJSON(ctx, key, dest)
		if err != nil {
			s.logger.Warn("Report cache read failed", zap.String("key", key), zap.Error(err))
		} else if hit {
			return nil
		}
	}

	if err := build(); err != nil {
		return fmt.Errorf("failed to build %s report: %w", name, err)
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.SetJSON(ctx, key, dest, s.ttl); err != nil {
			s.logger.Warn("Report cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

func (s *ReportService) Overview(ctx context.Context, now time.Time) (*models.OverviewReport, error) {
	from := since(now, OverviewDays)
	report := &models.OverviewReport{Since: from}

	err := s.cached(ctx, "overview", from, report, func() error {
		sales, err := s.store.ListSales(ctx, from)
		if err != nil {
			return err
		}
		customers, err := s.store.ListCustomerAggregates(ctx, from)
		if err != nil {
			return err
		}
		top, err := s.store.ListProductPerformance(ctx, from, overviewTopProducts)
		if err != nil {
			return err
		}

		report.TotalRevenue = decimal.Zero
		for _, row := range sales {
			report.TotalRevenue = report.TotalRevenue.Add(row.TotalRevenue)
			report.TotalOrders += row.TotalOrders
		}
		for _, row := range customers {
			report.NewCustomers += row.NewCustomers
			report.ReturningCustomers += row.ReturningCustomers
		}
		report.Sales = sales
		report.Customers = customers
		report.TopProducts = top
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *ReportService) Sales(ctx context.Context, now time.Time) (*models.SalesReport, error) {
	from := since(now, SalesDays)
	report := &models.SalesReport{Since: from}

	err := s.cached(ctx, "sales", from, report, func() error {
		daily, err := s.store.ListSales(ctx, from)
		if err != nil {
			return err
		}
		monthly, err := s.store.ListMonthlySales(ctx, from, salesReportMonths)
		if err != nil {
			return err
		}
		report.Daily = daily
		report.Monthly = monthly
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *ReportService) Customers(ctx context.Context, now time.Time) (*models.CustomerReport, error) {
	from := since(now, CustomerDays)
	report := &models.CustomerReport{Since: from}

	err := s.cached(ctx, "customers", from, report, func() error {
		daily, err := s.store.ListCustomerAggregates(ctx, from)
		if err != nil {
			return err
		}
		var retention float64
		for _, row := range daily {
			report.TotalNewCustomers += row.NewCustomers
			report.TotalReturningCustomers += row.ReturningCustomers
			retention += row.RetentionRate
		}
		if len(daily) > 0 {
			report.AverageRetentionRate = retention / float64(len(daily))
		}
		report.Daily = daily
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *ReportService) Products(ctx context.Context, now time.Time) (*models.ProductReport, error) {
	from := since(now, ProductDays)
	report := &models.ProductReport{Since: from}

	err := s.cached(ctx, "products", from, report, func() error {
		products, err := s.store.ListProductPerformance(ctx, from, 0)
		if err != nil {
			return err
		}
		report.Products = products
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *ReportService) Marketing(ctx context.Context, now time.Time) (*models.MarketingReport, error) {
	from := since(now, MarketingDays)
	report := &models.MarketingReport{Since: from}

	err := s.cached(ctx, "marketing", from, report, func() error {
		daily, err := s.store.ListMarketing(ctx, from)
		if err != nil {
			return err
		}
		discounts, err := s.store.ListDiscountSummary(ctx, from)
		if err != nil {
			return err
		}
		report.Daily = daily
		report.Discounts = discounts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *ReportService) Traffic(ctx context.Context, now time.Time) (*models.TrafficReport, error) {
	from := since(now, TrafficDays)
	report := &models.TrafficReport{Since: from}

	err := s.cached(ctx, "traffic", from, report, func() error {
		daily, err := s.store.ListTraffic(ctx, from)
		if err != nil {
			return err
		}
		report.Daily = daily
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
