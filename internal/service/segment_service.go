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

const (
	recentWindow          = 30 * 24 * time.Hour
	longTermWindow        = 180 * 24 * time.Hour
	longTermMonths        = 6
	frequentBuyerPerMonth = 2.0
)

var highSpenderThreshold = decimal.NewFromInt(100)

// SegmentResult summarizes one segmentation run
type SegmentResult struct {
	Users     int            `json:"users"`
	Updated   int            `json:"updated"`
	Failed    int            `json:"failed"`
	BySegment map[string]int `json:"by_segment"`
}

// SegmentService buckets active customers by purchase behaviour
type SegmentService struct {
	store  SegmentStore
	logger *zap.Logger
}

func NewSegmentService(store SegmentStore) *SegmentService {
	return &SegmentService{store: store, logger: util.GetLogger()}
}

// Classify picks the segment for one customer's order history
func Classify(stats models.UserOrderStats) models.UserSegment {
	seg := models.UserSegment{
		UserID:            stats.UserID,
		PurchaseFrequency: float64(stats.LongTermOrders) / longTermMonths,
		AverageOrderValue: stats.AverageOrderValue.Round(2),
		LastActivity:      stats.LastOrderAt,
	}

	switch {
	case stats.OrderCount == 0:
		seg.SegmentType = models.SegmentNew
	case stats.RecentOrders == 0:
		seg.SegmentType = models.SegmentInactive
	case seg.PurchaseFrequency >= frequentBuyerPerMonth:
		seg.SegmentType = models.SegmentFrequentBuyer
	case stats.AverageOrderValue.GreaterThanOrEqual(highSpenderThreshold):
		seg.SegmentType = models.SegmentHighSpender
	default:
		seg.SegmentType = models.SegmentBudgetConscious
	}
	return seg
}

// UpdateSegments reclassifies every active customer. A failure for one
// customer is logged and does not stop the run.
func (s *SegmentService) UpdateSegments(ctx context.Context, now time.Time) (*SegmentResult, error) {
	ctx, span := util.StartSpan(ctx, "SegmentService.UpdateSegments")
	defer span.End()

	stats, err := s.store.ListCustomerOrderStats(ctx, now.Add(-recentWindow), now.Add(-longTermWindow))
	if err != nil {
		util.SpanError(span, err)
		return nil, fmt.Errorf("failed to load customer stats: %w", err)
	}

	result := &SegmentResult{Users: len(stats), BySegment: make(map[string]int)}
	for _, st := range stats {
		seg := Classify(st)
		if err := s.store.UpsertUserSegment(ctx, seg); err != nil {
			result.Failed++
			s.logger.Error("Failed to update user segment", zap.Int64("user_id", st.UserID), zap.Error(err))
			continue
		}
		result.Updated++
		result.BySegment[seg.SegmentType]++
		util.SegmentsUpdatedTotal.WithLabelValues(seg.SegmentType).Inc()
	}

	s.logger.Info("User segments updated",
		zap.Int("users", result.Users),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed))
	return result, nil
}
