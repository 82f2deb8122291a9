package biz

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/peerrank/peerrank/pkg/metrics"
)

// Custom errors
var (
	ErrSelfRating        = errors.New("users cannot rate themselves")
	ErrScoreOutOfRange   = errors.New("score must be between 0 and 5")
	ErrInvalidUserID     = errors.New("user id must be positive")
	ErrInvalidLimit      = errors.New("limit must be between 1 and 100")
	ErrRatingNotFound    = errors.New("rating not found")
	ErrAggregateNotFound = errors.New("aggregate not found")
	ErrDuplicateRating   = errors.New("conflicting concurrent rating write")
	ErrRateLimited       = errors.New("too many rating mutations")
)

const (
	minScore       = 0
	maxScore       = 5
	maxLeaderboard = 100
	recentRatings  = 5
)

// RatingUseCase handles rating-related business logic: validation, the
// self-rating ban, per-target serialization of mutate-then-recompute
// sequences, and read queries.
type RatingUseCase struct {
	ratings    RatingRepo
	aggregates AggregateRepo
	maintainer *AggregateMaintainer
	limiter    *MutationLimiter
	locks      targetLocks
	log        *log.Helper
}

// NewRatingUseCase creates a new RatingUseCase instance.
func NewRatingUseCase(ratings RatingRepo, aggregates AggregateRepo, maintainer *AggregateMaintainer, limiter *MutationLimiter, logger log.Logger) *RatingUseCase {
	return &RatingUseCase{
		ratings:    ratings,
		aggregates: aggregates,
		maintainer: maintainer,
		limiter:    limiter,
		log:        log.NewHelper(logger),
	}
}

// targetLocks serializes mutation+recompute per target user. The store call
// itself is transactional, but the recompute read that follows must not
// interleave with another rater's write to the same target. The lock table
// is striped to a fixed size; targets sharing a stripe serialize against
// each other as well.
type targetLocks struct {
	stripes [64]sync.Mutex
}

func (l *targetLocks) lock(targetID int64) *sync.Mutex {
	tl := &l.stripes[targetID%int64(len(l.stripes))]
	tl.Lock()
	return tl
}

// SubmitRating submits or overwrites the rater's rating of the target and
// synchronously recomputes the target's aggregate. The bool reports whether
// a new rating row was created.
func (uc *RatingUseCase) SubmitRating(ctx context.Context, raterID, targetID int64, in ScoreInput) (*Rating, bool, error) {
	if err := validateIDs(raterID, targetID); err != nil {
		return nil, false, err
	}
	if err := validateScores(in.Trust, in.Engagement, in.Experience); err != nil {
		return nil, false, err
	}
	if !uc.limiter.Allow(raterID) {
		return nil, false, fmt.Errorf("%w: rater %d", ErrRateLimited, raterID)
	}

	tl := uc.locks.lock(targetID)
	defer tl.Unlock()

	rating, created, err := uc.ratings.Upsert(ctx, targetID, raterID, in)
	if err != nil {
		return nil, false, err
	}
	metrics.RatingMutations.WithLabelValues("submit").Inc()
	if created {
		uc.log.Infof("first rating of target %d by rater %d", targetID, raterID)
	}

	// The write is committed; recompute must run even if the caller gave up.
	if err := uc.maintainer.Recompute(context.WithoutCancel(ctx), targetID); err != nil {
		return nil, false, err
	}
	return rating, created, nil
}

// UpdateRating applies a partial patch to an existing rating, then
// recomputes the aggregate. Omitted sub-scores keep their prior values.
func (uc *RatingUseCase) UpdateRating(ctx context.Context, raterID, targetID int64, patch RatingPatch) (*Rating, error) {
	if err := validateIDs(raterID, targetID); err != nil {
		return nil, err
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	if !uc.limiter.Allow(raterID) {
		return nil, fmt.Errorf("%w: rater %d", ErrRateLimited, raterID)
	}

	tl := uc.locks.lock(targetID)
	defer tl.Unlock()

	rating, err := uc.ratings.Update(ctx, targetID, raterID, patch)
	if err != nil {
		return nil, err
	}
	metrics.RatingMutations.WithLabelValues("update").Inc()

	if err := uc.maintainer.Recompute(context.WithoutCancel(ctx), targetID); err != nil {
		return nil, err
	}
	return rating, nil
}

// DeleteRating removes the rater's rating of the target, then recomputes
// the aggregate. The self-rating check mirrors the submit-side ban.
func (uc *RatingUseCase) DeleteRating(ctx context.Context, raterID, targetID int64) error {
	if err := validateIDs(raterID, targetID); err != nil {
		return err
	}
	if !uc.limiter.Allow(raterID) {
		return fmt.Errorf("%w: rater %d", ErrRateLimited, raterID)
	}

	tl := uc.locks.lock(targetID)
	defer tl.Unlock()

	if err := uc.ratings.Delete(ctx, targetID, raterID); err != nil {
		return err
	}
	metrics.RatingMutations.WithLabelValues("delete").Inc()

	return uc.maintainer.Recompute(context.WithoutCancel(ctx), targetID)
}

// GetRating returns the rater's rating of the target, or nil when none
// exists. Absence is not an error here.
func (uc *RatingUseCase) GetRating(ctx context.Context, targetID, raterID int64) (*Rating, error) {
	rating, err := uc.ratings.Get(ctx, targetID, raterID)
	if errors.Is(err, ErrRatingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rating, nil
}

// GetSimpleRatings returns the raw rating list of a target with per-axis
// averages computed on the fly, independent of the maintained aggregate.
func (uc *RatingUseCase) GetSimpleRatings(ctx context.Context, targetID int64) (*SimpleRatings, error) {
	list, err := uc.ratings.ListForTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}

	out := &SimpleRatings{
		TargetUserID: targetID,
		TotalRatings: int64(len(list)),
		Ratings:      list,
	}
	if len(list) == 0 {
		return out, nil
	}

	var trust, engagement, experience, total float64
	for _, r := range list {
		trust += r.TrustScore
		engagement += r.EngagementScore
		experience += r.ExperienceScore
		total += r.TotalScore
	}
	n := float64(len(list))
	out.AverageTrust = round2(trust / n)
	out.AverageEngagement = round2(engagement / n)
	out.AverageExperience = round2(experience / n)
	out.AverageTotal = round2(total / n)
	return out, nil
}

// GetAggregateStats reads the maintained aggregate for a target. A target
// with no ratings gets a zeroed aggregate, not an error.
func (uc *RatingUseCase) GetAggregateStats(ctx context.Context, targetID int64) (*Aggregate, error) {
	agg, err := uc.aggregates.Get(ctx, targetID)
	if errors.Is(err, ErrAggregateNotFound) {
		return &Aggregate{TargetUserID: targetID}, nil
	}
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// GetDetailedStats returns the aggregate plus per-axis min/max ranges
// scanned from the current ratings and the 5 most recent ratings.
func (uc *RatingUseCase) GetDetailedStats(ctx context.Context, targetID int64) (*DetailedStats, error) {
	agg, err := uc.GetAggregateStats(ctx, targetID)
	if err != nil {
		return nil, err
	}
	list, err := uc.ratings.ListForTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}

	out := &DetailedStats{Aggregate: agg}
	if len(list) == 0 {
		return out, nil
	}

	out.TrustRange = scanRange(list, func(r *Rating) float64 { return r.TrustScore })
	out.EngagementRange = scanRange(list, func(r *Rating) float64 { return r.EngagementScore })
	out.ExperienceRange = scanRange(list, func(r *Rating) float64 { return r.ExperienceScore })
	out.TotalRange = scanRange(list, func(r *Rating) float64 { return r.TotalScore })

	recent := list
	if len(recent) > recentRatings {
		recent = recent[:recentRatings]
	}
	out.RecentRatings = recent
	return out, nil
}

// GetLeaderboard returns the top-limit targets by average total score,
// drawn from the aggregate table. Ties order by target user id ascending.
func (uc *RatingUseCase) GetLeaderboard(ctx context.Context, limit int) ([]*Aggregate, error) {
	if limit < 1 || limit > maxLeaderboard {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	return uc.aggregates.TopByAverageTotal(ctx, limit)
}

func validateIDs(raterID, targetID int64) error {
	if raterID <= 0 || targetID <= 0 {
		return fmt.Errorf("%w: rater=%d target=%d", ErrInvalidUserID, raterID, targetID)
	}
	if raterID == targetID {
		return fmt.Errorf("%w: user %d", ErrSelfRating, raterID)
	}
	return nil
}

func validateScores(scores ...float64) error {
	for _, s := range scores {
		if s < minScore || s > maxScore {
			return fmt.Errorf("%w: got %v", ErrScoreOutOfRange, s)
		}
	}
	return nil
}

func validatePatch(patch RatingPatch) error {
	for _, p := range []*float64{patch.Trust, patch.Engagement, patch.Experience} {
		if p == nil {
			continue
		}
		if err := validateScores(*p); err != nil {
			return err
		}
	}
	return nil
}

func scanRange(list []*Rating, pick func(*Rating) float64) ScoreRange {
	rng := ScoreRange{Min: pick(list[0]), Max: pick(list[0])}
	for _, r := range list[1:] {
		v := pick(r)
		if v < rng.Min {
			rng.Min = v
		}
		if v > rng.Max {
			rng.Max = v
		}
	}
	return rng
}
