package biz

import (
	"context"
	"time"
)

// Rating domain model: one rater's evaluation of one target user. At most
// one live row exists per (target, rater) pair.
type Rating struct {
	TargetUserID    int64
	RaterUserID     int64
	TrustScore      float64
	EngagementScore float64
	ExperienceScore float64
	TotalScore      float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ScoreInput carries the full score triple for a submission.
type ScoreInput struct {
	Trust      float64
	Engagement float64
	Experience float64
}

// RatingPatch is a partial update: a nil field keeps its prior value.
type RatingPatch struct {
	Trust      *float64
	Engagement *float64
	Experience *float64
}

// Aggregate domain model: the materialized per-target summary over all
// ratings where that user is the target.
type Aggregate struct {
	TargetUserID           int64
	AverageTrustScore      float64
	AverageEngagementScore float64
	AverageExperienceScore float64
	AverageTotalScore      float64
	MedianTrustScore       float64
	MedianEngagementScore  float64
	MedianExperienceScore  float64
	MedianTotalScore       float64
	MinTotalScore          float64
	MaxTotalScore          float64
	TotalRatings           int64
	LastUpdated            time.Time
}

// SimpleRatings is the on-the-fly summary for a target, computed from the
// raw rating list rather than the maintained aggregate.
type SimpleRatings struct {
	TargetUserID      int64
	TotalRatings      int64
	AverageTrust      float64
	AverageEngagement float64
	AverageExperience float64
	AverageTotal      float64
	Ratings           []*Rating
}

// ScoreRange is an observed [min,max] for one score axis.
type ScoreRange struct {
	Min float64
	Max float64
}

// DetailedStats combines the maintained aggregate with per-axis ranges
// scanned from the current ratings and the most recent submissions.
type DetailedStats struct {
	Aggregate       *Aggregate
	TrustRange      ScoreRange
	EngagementRange ScoreRange
	ExperienceRange ScoreRange
	TotalRange      ScoreRange
	RecentRatings   []*Rating
}

// RatingRepo defines the persistence contract for rating rows. All
// operations are transactional against the backing store.
type RatingRepo interface {
	// Upsert inserts or overwrites the rating for (target, rater) and
	// reports whether a new row was created.
	Upsert(ctx context.Context, targetID, raterID int64, in ScoreInput) (*Rating, bool, error)
	// Get returns ErrRatingNotFound when no row exists for the pair.
	Get(ctx context.Context, targetID, raterID int64) (*Rating, error)
	// Update applies a partial patch, recomputing the total from the
	// resulting full triple. ErrRatingNotFound when no row exists.
	Update(ctx context.Context, targetID, raterID int64, patch RatingPatch) (*Rating, error)
	// Delete removes the row. ErrRatingNotFound when no row exists.
	Delete(ctx context.Context, targetID, raterID int64) error
	// ListForTarget returns all ratings of a target, newest first.
	ListForTarget(ctx context.Context, targetID int64) ([]*Rating, error)
	// ListByRater returns all ratings submitted by a rater, newest first.
	ListByRater(ctx context.Context, raterID int64) ([]*Rating, error)
}

// AggregateRepo defines the persistence contract for aggregate rows.
// Mutation goes through the AggregateMaintainer only.
type AggregateRepo interface {
	// Get returns ErrAggregateNotFound when the target has no aggregate row.
	Get(ctx context.Context, targetID int64) (*Aggregate, error)
	// Replace upserts the full row, never individual fields.
	Replace(ctx context.Context, agg *Aggregate) error
	// Delete removes the row; deleting an absent row is not an error.
	Delete(ctx context.Context, targetID int64) error
	// TopByAverageTotal returns up to limit aggregates ordered by
	// average_total_score descending, ties by target user id ascending.
	TopByAverageTotal(ctx context.Context, limit int) ([]*Aggregate, error)
}
