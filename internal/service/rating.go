package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/go-kratos/kratos/v2/errors"

	"github.com/peerrank/peerrank/internal/biz"
)

// RatingService implements the rating HTTP API: DTO mapping between the
// transport and the use case, plus the error taxonomy the HTTP layer
// depends on.
type RatingService struct {
	ratingUC *biz.RatingUseCase
}

// NewRatingService creates a new RatingService
func NewRatingService(ratingUC *biz.RatingUseCase) *RatingService {
	return &RatingService{ratingUC: ratingUC}
}

type userIDKey struct{}

// ContextWithUserID injects the authenticated caller id, set by the
// identity middleware.
func ContextWithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserIDFromContext returns the authenticated caller id, if present.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok
}

// ScoresPayload is the request body for submit (all fields required) and
// update (any subset).
type ScoresPayload struct {
	TrustScore      *float64 `json:"trust_score"`
	EngagementScore *float64 `json:"engagement_score"`
	ExperienceScore *float64 `json:"experience_score"`
}

// RatingReply mirrors one rating row.
type RatingReply struct {
	TargetUserID    int64     `json:"target_user_id"`
	RaterUserID     int64     `json:"rater_user_id"`
	TrustScore      float64   `json:"trust_score"`
	EngagementScore float64   `json:"engagement_score"`
	ExperienceScore float64   `json:"experience_score"`
	TotalScore      float64   `json:"total_score"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SubmitRatingReply reports the persisted rating; Created distinguishes a
// first submission from an overwrite.
type SubmitRatingReply struct {
	Rating  *RatingReply `json:"rating"`
	Created bool         `json:"created"`
}

// GetRatingReply carries the caller's own rating of a target; Rating is
// null when none exists.
type GetRatingReply struct {
	Rating *RatingReply `json:"rating"`
}

// DeleteRatingReply acknowledges a deletion.
type DeleteRatingReply struct {
	Deleted bool `json:"deleted"`
}

// SimpleRatingsReply is the on-the-fly summary plus the raw rating list.
type SimpleRatingsReply struct {
	TargetUserID      int64          `json:"target_user_id"`
	TotalRatings      int64          `json:"total_ratings"`
	AverageTrust      float64        `json:"average_trust_score"`
	AverageEngagement float64        `json:"average_engagement_score"`
	AverageExperience float64        `json:"average_experience_score"`
	AverageTotal      float64        `json:"average_total_score"`
	Ratings           []*RatingReply `json:"ratings"`
}

// AggregateStatsReply mirrors the maintained aggregate row; zero-valued for
// targets with no ratings.
type AggregateStatsReply struct {
	TargetUserID           int64      `json:"target_user_id"`
	AverageTrustScore      float64    `json:"average_trust_score"`
	AverageEngagementScore float64    `json:"average_engagement_score"`
	AverageExperienceScore float64    `json:"average_experience_score"`
	AverageTotalScore      float64    `json:"average_total_score"`
	MedianTrustScore       float64    `json:"median_trust_score"`
	MedianEngagementScore  float64    `json:"median_engagement_score"`
	MedianExperienceScore  float64    `json:"median_experience_score"`
	MedianTotalScore       float64    `json:"median_total_score"`
	MinTotalScore          float64    `json:"min_total_score"`
	MaxTotalScore          float64    `json:"max_total_score"`
	TotalRatings           int64      `json:"total_ratings"`
	LastUpdated            *time.Time `json:"last_updated"`
}

// ScoreRangeReply is an observed [min,max] for one axis.
type ScoreRangeReply struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DetailedStatsReply bundles the aggregate, per-axis ranges, and the most
// recent ratings.
type DetailedStatsReply struct {
	Stats           *AggregateStatsReply `json:"stats"`
	TrustRange      ScoreRangeReply      `json:"trust_score_range"`
	EngagementRange ScoreRangeReply      `json:"engagement_score_range"`
	ExperienceRange ScoreRangeReply      `json:"experience_score_range"`
	TotalRange      ScoreRangeReply      `json:"total_score_range"`
	RecentRatings   []*RatingReply       `json:"recent_ratings"`
}

// LeaderboardEntry is one leaderboard row.
type LeaderboardEntry struct {
	Rank              int     `json:"rank"`
	TargetUserID      int64   `json:"target_user_id"`
	AverageTotalScore float64 `json:"average_total_score"`
	TotalRatings      int64   `json:"total_ratings"`
}

// LeaderboardReply is the ordered leaderboard.
type LeaderboardReply struct {
	Entries []*LeaderboardEntry `json:"entries"`
}

// SubmitRating implements rating submission (upsert).
func (s *RatingService) SubmitRating(ctx context.Context, targetID int64, req *ScoresPayload) (*SubmitRatingReply, error) {
	raterID, ok := UserIDFromContext(ctx)
	if !ok {
		return nil, errors.Unauthorized("UNAUTHORIZED", "missing X-User-Id header")
	}
	if req.TrustScore == nil || req.EngagementScore == nil || req.ExperienceScore == nil {
		return nil, errors.New(422, "INVALID_INPUT", "trust_score, engagement_score and experience_score are required")
	}

	rating, created, err := s.ratingUC.SubmitRating(ctx, raterID, targetID, biz.ScoreInput{
		Trust:      *req.TrustScore,
		Engagement: *req.EngagementScore,
		Experience: *req.ExperienceScore,
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	return &SubmitRatingReply{Rating: ratingToReply(rating), Created: created}, nil
}

// UpdateRating implements partial rating update.
func (s *RatingService) UpdateRating(ctx context.Context, targetID int64, req *ScoresPayload) (*GetRatingReply, error) {
	raterID, ok := UserIDFromContext(ctx)
	if !ok {
		return nil, errors.Unauthorized("UNAUTHORIZED", "missing X-User-Id header")
	}
	if req.TrustScore == nil && req.EngagementScore == nil && req.ExperienceScore == nil {
		return nil, errors.New(422, "INVALID_INPUT", "at least one score field is required")
	}

	rating, err := s.ratingUC.UpdateRating(ctx, raterID, targetID, biz.RatingPatch{
		Trust:      req.TrustScore,
		Engagement: req.EngagementScore,
		Experience: req.ExperienceScore,
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	return &GetRatingReply{Rating: ratingToReply(rating)}, nil
}

// DeleteRating implements rating deletion by the original rater.
func (s *RatingService) DeleteRating(ctx context.Context, targetID int64) (*DeleteRatingReply, error) {
	raterID, ok := UserIDFromContext(ctx)
	if !ok {
		return nil, errors.Unauthorized("UNAUTHORIZED", "missing X-User-Id header")
	}

	if err := s.ratingUC.DeleteRating(ctx, raterID, targetID); err != nil {
		return nil, toAPIError(err)
	}
	return &DeleteRatingReply{Deleted: true}, nil
}

// GetMyRating returns the caller's own rating of the target, null when
// absent.
func (s *RatingService) GetMyRating(ctx context.Context, targetID int64) (*GetRatingReply, error) {
	raterID, ok := UserIDFromContext(ctx)
	if !ok {
		return nil, errors.Unauthorized("UNAUTHORIZED", "missing X-User-Id header")
	}

	rating, err := s.ratingUC.GetRating(ctx, targetID, raterID)
	if err != nil {
		return nil, toAPIError(err)
	}
	reply := &GetRatingReply{}
	if rating != nil {
		reply.Rating = ratingToReply(rating)
	}
	return reply, nil
}

// GetSimpleRatings implements the raw rating listing with on-the-fly
// averages.
func (s *RatingService) GetSimpleRatings(ctx context.Context, targetID int64) (*SimpleRatingsReply, error) {
	simple, err := s.ratingUC.GetSimpleRatings(ctx, targetID)
	if err != nil {
		return nil, toAPIError(err)
	}

	reply := &SimpleRatingsReply{
		TargetUserID:      simple.TargetUserID,
		TotalRatings:      simple.TotalRatings,
		AverageTrust:      simple.AverageTrust,
		AverageEngagement: simple.AverageEngagement,
		AverageExperience: simple.AverageExperience,
		AverageTotal:      simple.AverageTotal,
		Ratings:           make([]*RatingReply, 0, len(simple.Ratings)),
	}
	for _, r := range simple.Ratings {
		reply.Ratings = append(reply.Ratings, ratingToReply(r))
	}
	return reply, nil
}

// GetAggregateStats implements the maintained-aggregate read.
func (s *RatingService) GetAggregateStats(ctx context.Context, targetID int64) (*AggregateStatsReply, error) {
	agg, err := s.ratingUC.GetAggregateStats(ctx, targetID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return aggregateToReply(agg), nil
}

// GetDetailedStats implements the detailed statistics read.
func (s *RatingService) GetDetailedStats(ctx context.Context, targetID int64) (*DetailedStatsReply, error) {
	stats, err := s.ratingUC.GetDetailedStats(ctx, targetID)
	if err != nil {
		return nil, toAPIError(err)
	}

	reply := &DetailedStatsReply{
		Stats:           aggregateToReply(stats.Aggregate),
		TrustRange:      ScoreRangeReply(stats.TrustRange),
		EngagementRange: ScoreRangeReply(stats.EngagementRange),
		ExperienceRange: ScoreRangeReply(stats.ExperienceRange),
		TotalRange:      ScoreRangeReply(stats.TotalRange),
		RecentRatings:   make([]*RatingReply, 0, len(stats.RecentRatings)),
	}
	for _, r := range stats.RecentRatings {
		reply.RecentRatings = append(reply.RecentRatings, ratingToReply(r))
	}
	return reply, nil
}

// GetLeaderboard implements the top-N listing by average total score.
func (s *RatingService) GetLeaderboard(ctx context.Context, limit int) (*LeaderboardReply, error) {
	aggs, err := s.ratingUC.GetLeaderboard(ctx, limit)
	if err != nil {
		return nil, toAPIError(err)
	}

	reply := &LeaderboardReply{Entries: make([]*LeaderboardEntry, 0, len(aggs))}
	for i, agg := range aggs {
		reply.Entries = append(reply.Entries, &LeaderboardEntry{
			Rank:              i + 1,
			TargetUserID:      agg.TargetUserID,
			AverageTotalScore: agg.AverageTotalScore,
			TotalRatings:      agg.TotalRatings,
		})
	}
	return reply, nil
}

// toAPIError maps domain errors onto the HTTP taxonomy. Anything
// unrecognized is an internal error; store detail never leaks outward.
func toAPIError(err error) error {
	switch {
	case stderrors.Is(err, biz.ErrSelfRating):
		return errors.Forbidden("FORBIDDEN", "users cannot rate themselves")
	case stderrors.Is(err, biz.ErrScoreOutOfRange):
		return errors.New(422, "INVALID_INPUT", "scores must be between 0 and 5")
	case stderrors.Is(err, biz.ErrInvalidUserID):
		return errors.New(422, "INVALID_INPUT", "user ids must be positive")
	case stderrors.Is(err, biz.ErrInvalidLimit):
		return errors.New(422, "INVALID_INPUT", "limit must be between 1 and 100")
	case stderrors.Is(err, biz.ErrRatingNotFound):
		return errors.NotFound("NOT_FOUND", "rating not found")
	case stderrors.Is(err, biz.ErrDuplicateRating):
		return errors.Conflict("CONFLICT", "rating was modified concurrently, retry")
	case stderrors.Is(err, biz.ErrRateLimited):
		return errors.New(429, "RATE_LIMITED", "too many rating requests")
	default:
		return errors.InternalServer("INTERNAL", "internal error")
	}
}

func ratingToReply(r *biz.Rating) *RatingReply {
	return &RatingReply{
		TargetUserID:    r.TargetUserID,
		RaterUserID:     r.RaterUserID,
		TrustScore:      r.TrustScore,
		EngagementScore: r.EngagementScore,
		ExperienceScore: r.ExperienceScore,
		TotalScore:      r.TotalScore,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func aggregateToReply(agg *biz.Aggregate) *AggregateStatsReply {
	reply := &AggregateStatsReply{
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
	}
	if !agg.LastUpdated.IsZero() {
		t := agg.LastUpdated
		reply.LastUpdated = &t
	}
	return reply
}
