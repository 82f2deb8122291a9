package biz

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/peerrank/peerrank/pkg/metrics"
)

// AggregateMaintainer owns the user_rating_aggregate table. It recomputes a
// target's full aggregate from the current rating set after every mutation;
// no incremental deltas, so floating-point drift cannot accumulate.
type AggregateMaintainer struct {
	ratings    RatingRepo
	aggregates AggregateRepo
	log        *log.Helper
}

// NewAggregateMaintainer creates a new AggregateMaintainer instance.
func NewAggregateMaintainer(ratings RatingRepo, aggregates AggregateRepo, logger log.Logger) *AggregateMaintainer {
	return &AggregateMaintainer{
		ratings:    ratings,
		aggregates: aggregates,
		log:        log.NewHelper(logger),
	}
}

// Recompute rebuilds the aggregate row for targetID from all its current
// ratings. An empty rating set deletes the row. Idempotent: two calls with
// no intervening rating change produce the same row.
func (m *AggregateMaintainer) Recompute(ctx context.Context, targetID int64) error {
	list, err := m.ratings.ListForTarget(ctx, targetID)
	if err != nil {
		return fmt.Errorf("failed to load ratings for recompute: %w", err)
	}

	metrics.AggregateRecomputes.Inc()

	if len(list) == 0 {
		if err := m.aggregates.Delete(ctx, targetID); err != nil {
			return fmt.Errorf("failed to delete empty aggregate: %w", err)
		}
		m.log.Debugf("aggregate removed for target %d (no ratings left)", targetID)
		return nil
	}

	agg := ComputeAggregate(targetID, list, time.Now().UTC())
	if err := m.aggregates.Replace(ctx, agg); err != nil {
		return fmt.Errorf("failed to replace aggregate: %w", err)
	}
	return nil
}

// ComputeAggregate derives the full aggregate for one target from its
// rating list. Means and medians are rounded to 2 decimals; min/max totals
// are taken unrounded from the stored rows. The list must be non-empty.
func ComputeAggregate(targetID int64, list []*Rating, now time.Time) *Aggregate {
	n := len(list)
	trust := make([]float64, 0, n)
	engagement := make([]float64, 0, n)
	experience := make([]float64, 0, n)
	total := make([]float64, 0, n)

	minTotal := list[0].TotalScore
	maxTotal := list[0].TotalScore
	for _, r := range list {
		trust = append(trust, r.TrustScore)
		engagement = append(engagement, r.EngagementScore)
		experience = append(experience, r.ExperienceScore)
		total = append(total, r.TotalScore)
		if r.TotalScore < minTotal {
			minTotal = r.TotalScore
		}
		if r.TotalScore > maxTotal {
			maxTotal = r.TotalScore
		}
	}

	return &Aggregate{
		TargetUserID:           targetID,
		AverageTrustScore:      mean(trust),
		AverageEngagementScore: mean(engagement),
		AverageExperienceScore: mean(experience),
		AverageTotalScore:      mean(total),
		MedianTrustScore:       median(trust),
		MedianEngagementScore:  median(engagement),
		MedianExperienceScore:  median(experience),
		MedianTotalScore:       median(total),
		MinTotalScore:          minTotal,
		MaxTotalScore:          maxTotal,
		TotalRatings:           int64(n),
		LastUpdated:            now,
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return round2(sum / float64(len(values)))
}

// median sorts a copy ascending; odd count takes the middle element, even
// count averages the two middle elements.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return round2(sorted[mid])
	}
	return round2((sorted[mid-1] + sorted[mid]) / 2)
}
