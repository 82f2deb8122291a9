package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/peerrank/peerrank/internal/biz"
)

const aggregateCacheTTL = 15 * time.Minute

type aggregateRepo struct {
	data *Data
	log  *log.Helper
}

// NewAggregateRepo creates a new aggregate repository
func NewAggregateRepo(data *Data, logger log.Logger) biz.AggregateRepo {
	return &aggregateRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func (r *aggregateRepo) Get(ctx context.Context, targetID int64) (*biz.Aggregate, error) {
	// Try cache first if Redis is available
	if r.data.rdb != nil {
		cached, err := r.data.rdb.Get(ctx, cacheKey(targetID)).Result()
		if err == nil {
			var agg biz.Aggregate
			if err := json.Unmarshal([]byte(cached), &agg); err == nil {
				r.log.Debugf("cache hit for aggregate: %d", targetID)
				return &agg, nil
			}
		}
	}

	var row UserRatingAggregate
	err := r.data.db.WithContext(ctx).Where("target_user_id = ?", targetID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, biz.ErrAggregateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate: %w", err)
	}

	agg := aggregateToBiz(&row)

	// Cache result if Redis is available
	if r.data.rdb != nil {
		if payload, err := json.Marshal(agg); err == nil {
			r.data.rdb.Set(ctx, cacheKey(targetID), payload, aggregateCacheTTL)
		}
	}

	return agg, nil
}

func (r *aggregateRepo) Replace(ctx context.Context, agg *biz.Aggregate) error {
	row := &UserRatingAggregate{
		TargetUserID:           agg.TargetUserID,
		AverageTrustScore:      agg.AverageTrustScore,
		AverageEngagementScore: agg.AverageEngagementScore,
		AverageExperienceScore: agg.AverageExperienceScore,
		AverageTotalScore:      agg.AverageTotalScore,
		MedianTrustScore:       agg.MedianTrustScore,
		MedianEngagementScore:  agg.MedianEngagementScore,
		MedianExperienceScore:  agg.MedianExperienceScore,
		MedianTotalScore:       agg.MedianTotalScore,
		MinTotalScore:          agg.MinTotalScore,
		MaxTotalScore:          agg.MaxTotalScore,
		TotalRatings:           agg.TotalRatings,
		LastUpdated:            agg.LastUpdated,
	}

	// Full-row replace keyed on the primary key; fields are never updated
	// individually.
	err := r.data.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target_user_id"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to replace aggregate: %w", err)
	}

	r.invalidate(ctx, agg.TargetUserID)
	return nil
}

func (r *aggregateRepo) Delete(ctx context.Context, targetID int64) error {
	err := r.data.db.WithContext(ctx).
		Where("target_user_id = ?", targetID).
		Delete(&UserRatingAggregate{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete aggregate: %w", err)
	}

	r.invalidate(ctx, targetID)
	return nil
}

func (r *aggregateRepo) TopByAverageTotal(ctx context.Context, limit int) ([]*biz.Aggregate, error) {
	var rows []UserRatingAggregate
	err := r.data.db.WithContext(ctx).
		Order("average_total_score DESC, target_user_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}

	out := make([]*biz.Aggregate, 0, len(rows))
	for i := range rows {
		out = append(out, aggregateToBiz(&rows[i]))
	}
	return out, nil
}

func (r *aggregateRepo) invalidate(ctx context.Context, targetID int64) {
	if r.data.rdb != nil {
		r.data.rdb.Del(ctx, cacheKey(targetID))
	}
}

func cacheKey(targetID int64) string {
	return fmt.Sprintf("rating:agg:%d", targetID)
}

// Helper: Convert data.UserRatingAggregate to biz.Aggregate
func aggregateToBiz(row *UserRatingAggregate) *biz.Aggregate {
	return &biz.Aggregate{
		TargetUserID:           row.TargetUserID,
		AverageTrustScore:      row.AverageTrustScore,
		AverageEngagementScore: row.AverageEngagementScore,
		AverageExperienceScore: row.AverageExperienceScore,
		AverageTotalScore:      row.AverageTotalScore,
		MedianTrustScore:       row.MedianTrustScore,
		MedianEngagementScore:  row.MedianEngagementScore,
		MedianExperienceScore:  row.MedianExperienceScore,
		MedianTotalScore:       row.MedianTotalScore,
		MinTotalScore:          row.MinTotalScore,
		MaxTotalScore:          row.MaxTotalScore,
		TotalRatings:           row.TotalRatings,
		LastUpdated:            row.LastUpdated,
	}
}
