package data

import "time"

// Rating represents the rating table. One live row per (target, rater).
type Rating struct {
	ID              uint      `gorm:"primaryKey"`
	TargetUserID    int64     `gorm:"not null;uniqueIndex:uq_rating_target_rater;index:idx_rating_target"`
	RaterUserID     int64     `gorm:"not null;uniqueIndex:uq_rating_target_rater;index:idx_rating_rater"`
	TrustScore      float64   `gorm:"not null;type:decimal(4,2);check:trust_score >= 0 AND trust_score <= 5"`
	EngagementScore float64   `gorm:"not null;type:decimal(4,2);check:engagement_score >= 0 AND engagement_score <= 5"`
	ExperienceScore float64   `gorm:"not null;type:decimal(4,2);check:experience_score >= 0 AND experience_score <= 5"`
	TotalScore      float64   `gorm:"not null;type:decimal(4,2)"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the table name
func (Rating) TableName() string {
	return "rating"
}

// UserRatingAggregate represents the user_rating_aggregate table: one
// materialized row per target user with at least one rating.
type UserRatingAggregate struct {
	TargetUserID           int64     `gorm:"primaryKey"`
	AverageTrustScore      float64   `gorm:"not null;type:decimal(4,2)"`
	AverageEngagementScore float64   `gorm:"not null;type:decimal(4,2)"`
	AverageExperienceScore float64   `gorm:"not null;type:decimal(4,2)"`
	AverageTotalScore      float64   `gorm:"not null;type:decimal(4,2);index:idx_aggregate_avg_total"`
	MedianTrustScore       float64   `gorm:"not null;type:decimal(4,2)"`
	MedianEngagementScore  float64   `gorm:"not null;type:decimal(4,2)"`
	MedianExperienceScore  float64   `gorm:"not null;type:decimal(4,2)"`
	MedianTotalScore       float64   `gorm:"not null;type:decimal(4,2)"`
	MinTotalScore          float64   `gorm:"not null"`
	MaxTotalScore          float64   `gorm:"not null"`
	TotalRatings           int64     `gorm:"not null"`
	LastUpdated            time.Time `gorm:"not null;type:timestamptz"`
}

// TableName overrides the table name
func (UserRatingAggregate) TableName() string {
	return "user_rating_aggregate"
}
