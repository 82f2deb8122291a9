package biz_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/peerrank/peerrank/internal/biz"
	"github.com/peerrank/peerrank/internal/conf"
)

func testLogger() log.Logger {
	return log.NewStdLogger(io.Discard)
}

type pairKey struct {
	target int64
	rater  int64
}

// fakeRatingRepo mirrors the store contract in memory: one row per pair,
// newest-first listings, not-found sentinels.
type fakeRatingRepo struct {
	mu   sync.Mutex
	rows map[pairKey]*biz.Rating
	seq  map[pairKey]int64
	next int64
}

func newFakeRatingRepo() *fakeRatingRepo {
	return &fakeRatingRepo{
		rows: make(map[pairKey]*biz.Rating),
		seq:  make(map[pairKey]int64),
	}
}

func (f *fakeRatingRepo) Upsert(_ context.Context, targetID, raterID int64, in biz.ScoreInput) (*biz.Rating, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := pairKey{targetID, raterID}
	_, existed := f.rows[key]
	row := &biz.Rating{
		TargetUserID:    targetID,
		RaterUserID:     raterID,
		TrustScore:      in.Trust,
		EngagementScore: in.Engagement,
		ExperienceScore: in.Experience,
		TotalScore:      biz.ComputeTotalScore(in.Trust, in.Engagement, in.Experience),
	}
	f.rows[key] = row
	if !existed {
		f.next++
		f.seq[key] = f.next
	}
	out := *row
	return &out, !existed, nil
}

func (f *fakeRatingRepo) Get(_ context.Context, targetID, raterID int64) (*biz.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[pairKey{targetID, raterID}]
	if !ok {
		return nil, biz.ErrRatingNotFound
	}
	out := *row
	return &out, nil
}

func (f *fakeRatingRepo) Update(_ context.Context, targetID, raterID int64, patch biz.RatingPatch) (*biz.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[pairKey{targetID, raterID}]
	if !ok {
		return nil, biz.ErrRatingNotFound
	}
	if patch.Trust != nil {
		row.TrustScore = *patch.Trust
	}
	if patch.Engagement != nil {
		row.EngagementScore = *patch.Engagement
	}
	if patch.Experience != nil {
		row.ExperienceScore = *patch.Experience
	}
	row.TotalScore = biz.ComputeTotalScore(row.TrustScore, row.EngagementScore, row.ExperienceScore)
	out := *row
	return &out, nil
}

func (f *fakeRatingRepo) Delete(_ context.Context, targetID, raterID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := pairKey{targetID, raterID}
	if _, ok := f.rows[key]; !ok {
		return biz.ErrRatingNotFound
	}
	delete(f.rows, key)
	delete(f.seq, key)
	return nil
}

func (f *fakeRatingRepo) ListForTarget(_ context.Context, targetID int64) ([]*biz.Rating, error) {
	return f.list(func(k pairKey) bool { return k.target == targetID }), nil
}

func (f *fakeRatingRepo) ListByRater(_ context.Context, raterID int64) ([]*biz.Rating, error) {
	return f.list(func(k pairKey) bool { return k.rater == raterID }), nil
}

func (f *fakeRatingRepo) list(match func(pairKey) bool) []*biz.Rating {
	f.mu.Lock()
	defer f.mu.Unlock()

	type seqRow struct {
		seq int64
		row *biz.Rating
	}
	var rows []seqRow
	for k, r := range f.rows {
		if match(k) {
			out := *r
			rows = append(rows, seqRow{f.seq[k], &out})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })

	list := make([]*biz.Rating, 0, len(rows))
	for _, r := range rows {
		list = append(list, r.row)
	}
	return list
}

type fakeAggregateRepo struct {
	mu   sync.Mutex
	rows map[int64]*biz.Aggregate
}

func newFakeAggregateRepo() *fakeAggregateRepo {
	return &fakeAggregateRepo{rows: make(map[int64]*biz.Aggregate)}
}

func (f *fakeAggregateRepo) Get(_ context.Context, targetID int64) (*biz.Aggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	agg, ok := f.rows[targetID]
	if !ok {
		return nil, biz.ErrAggregateNotFound
	}
	out := *agg
	return &out, nil
}

func (f *fakeAggregateRepo) Replace(_ context.Context, agg *biz.Aggregate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := *agg
	f.rows[agg.TargetUserID] = &out
	return nil
}

func (f *fakeAggregateRepo) Delete(_ context.Context, targetID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.rows, targetID)
	return nil
}

func (f *fakeAggregateRepo) TopByAverageTotal(_ context.Context, limit int) ([]*biz.Aggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := make([]*biz.Aggregate, 0, len(f.rows))
	for _, agg := range f.rows {
		out := *agg
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].AverageTotalScore != all[j].AverageTotalScore {
			return all[i].AverageTotalScore > all[j].AverageTotalScore
		}
		return all[i].TargetUserID < all[j].TargetUserID
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func newTestUseCase(limits *conf.RateLimit) (*biz.RatingUseCase, *fakeRatingRepo, *fakeAggregateRepo) {
	ratings := newFakeRatingRepo()
	aggregates := newFakeAggregateRepo()
	logger := testLogger()
	maintainer := biz.NewAggregateMaintainer(ratings, aggregates, logger)
	limiter := biz.NewMutationLimiter(limits)
	uc := biz.NewRatingUseCase(ratings, aggregates, maintainer, limiter, logger)
	return uc, ratings, aggregates
}

func TestSubmitRating(t *testing.T) {
	ctx := context.Background()

	Convey("Given a rating use case", t, func() {
		uc, ratings, aggregates := newTestUseCase(nil)

		Convey("Submitting a self-rating is forbidden", func() {
			_, _, err := uc.SubmitRating(ctx, 5, 5, biz.ScoreInput{Trust: 3, Engagement: 3, Experience: 3})
			So(err, ShouldWrap, biz.ErrSelfRating)
		})

		Convey("Scores outside [0,5] are rejected", func() {
			_, _, err := uc.SubmitRating(ctx, 1, 2, biz.ScoreInput{Trust: 5.5, Engagement: 3, Experience: 3})
			So(err, ShouldWrap, biz.ErrScoreOutOfRange)

			_, _, err = uc.SubmitRating(ctx, 1, 2, biz.ScoreInput{Trust: 3, Engagement: -0.1, Experience: 3})
			So(err, ShouldWrap, biz.ErrScoreOutOfRange)
		})

		Convey("Non-positive user ids are rejected", func() {
			_, _, err := uc.SubmitRating(ctx, 0, 2, biz.ScoreInput{Trust: 3, Engagement: 3, Experience: 3})
			So(err, ShouldWrap, biz.ErrInvalidUserID)
		})

		Convey("A first submission creates the row and its aggregate", func() {
			rating, created, err := uc.SubmitRating(ctx, 10, 20, biz.ScoreInput{Trust: 5, Engagement: 4, Experience: 3})
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)
			So(rating.TotalScore, ShouldAlmostEqual, 4.15, 1e-9)

			agg, err := uc.GetAggregateStats(ctx, 20)
			So(err, ShouldBeNil)
			So(agg.TotalRatings, ShouldEqual, 1)
			So(agg.AverageTotalScore, ShouldAlmostEqual, 4.15, 1e-9)
			So(agg.MinTotalScore, ShouldAlmostEqual, 4.15, 1e-9)
			So(agg.MaxTotalScore, ShouldAlmostEqual, 4.15, 1e-9)
		})

		Convey("Submitting twice for the same pair overwrites in place", func() {
			_, created, err := uc.SubmitRating(ctx, 1, 2, biz.ScoreInput{Trust: 1, Engagement: 1, Experience: 1})
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)

			rating, created, err := uc.SubmitRating(ctx, 1, 2, biz.ScoreInput{Trust: 4, Engagement: 4, Experience: 4})
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)
			So(rating.TrustScore, ShouldEqual, 4)

			list, err := ratings.ListForTarget(ctx, 2)
			So(err, ShouldBeNil)
			So(len(list), ShouldEqual, 1)
			So(list[0].TrustScore, ShouldEqual, 4)

			agg, err := aggregates.Get(ctx, 2)
			So(err, ShouldBeNil)
			So(agg.TotalRatings, ShouldEqual, 1)
		})
	})
}

func TestUpdateRating(t *testing.T) {
	ctx := context.Background()

	Convey("Given an existing rating", t, func() {
		uc, _, _ := newTestUseCase(nil)
		_, _, err := uc.SubmitRating(ctx, 1, 2, biz.ScoreInput{Trust: 4, Engagement: 4, Experience: 4})
		So(err, ShouldBeNil)

		Convey("A partial update keeps the omitted sub-scores", func() {
			trust := 2.0
			rating, err := uc.UpdateRating(ctx, 1, 2, biz.RatingPatch{Trust: &trust})
			So(err, ShouldBeNil)
			So(rating.TrustScore, ShouldEqual, 2)
			So(rating.EngagementScore, ShouldEqual, 4)
			So(rating.ExperienceScore, ShouldEqual, 4)
			// 0.40*2 + 0.35*4 + 0.25*4 = 3.20
			So(rating.TotalScore, ShouldAlmostEqual, 3.20, 1e-9)

			agg, err := uc.GetAggregateStats(ctx, 2)
			So(err, ShouldBeNil)
			So(agg.AverageTotalScore, ShouldAlmostEqual, 3.20, 1e-9)
		})

		Convey("A patched score outside [0,5] is rejected", func() {
			bad := 6.0
			_, err := uc.UpdateRating(ctx, 1, 2, biz.RatingPatch{Engagement: &bad})
			So(err, ShouldWrap, biz.ErrScoreOutOfRange)
		})

		Convey("Updating a missing rating reports not found", func() {
			trust := 2.0
			_, err := uc.UpdateRating(ctx, 9, 2, biz.RatingPatch{Trust: &trust})
			So(err, ShouldWrap, biz.ErrRatingNotFound)
		})
	})
}

func TestDeleteRating(t *testing.T) {
	ctx := context.Background()

	Convey("Given a target with a single rating", t, func() {
		uc, _, aggregates := newTestUseCase(nil)
		_, _, err := uc.SubmitRating(ctx, 3, 7, biz.ScoreInput{Trust: 4, Engagement: 4, Experience: 4})
		So(err, ShouldBeNil)

		Convey("Deleting it removes the aggregate row entirely", func() {
			So(uc.DeleteRating(ctx, 3, 7), ShouldBeNil)

			_, err := aggregates.Get(ctx, 7)
			So(err, ShouldEqual, biz.ErrAggregateNotFound)

			agg, err := uc.GetAggregateStats(ctx, 7)
			So(err, ShouldBeNil)
			So(agg.TotalRatings, ShouldEqual, 0)
			So(agg.AverageTotalScore, ShouldEqual, 0)
		})

		Convey("Deleting a rating of oneself is forbidden", func() {
			So(uc.DeleteRating(ctx, 7, 7), ShouldWrap, biz.ErrSelfRating)
		})

		Convey("Deleting a missing rating reports not found", func() {
			So(uc.DeleteRating(ctx, 4, 7), ShouldWrap, biz.ErrRatingNotFound)
		})
	})
}

func TestGetRatingAndSimpleRatings(t *testing.T) {
	ctx := context.Background()

	Convey("Given ratings from several raters", t, func() {
		uc, _, _ := newTestUseCase(nil)
		_, _, err := uc.SubmitRating(ctx, 1, 9, biz.ScoreInput{Trust: 5, Engagement: 4, Experience: 3})
		So(err, ShouldBeNil)
		_, _, err = uc.SubmitRating(ctx, 2, 9, biz.ScoreInput{Trust: 3, Engagement: 3, Experience: 3})
		So(err, ShouldBeNil)

		Convey("GetRating returns nil, not an error, for an absent pair", func() {
			rating, err := uc.GetRating(ctx, 9, 777)
			So(err, ShouldBeNil)
			So(rating, ShouldBeNil)
		})

		Convey("GetRating returns the stored rating", func() {
			rating, err := uc.GetRating(ctx, 9, 1)
			So(err, ShouldBeNil)
			So(rating.TotalScore, ShouldAlmostEqual, 4.15, 1e-9)
		})

		Convey("GetSimpleRatings computes on-the-fly averages, newest first", func() {
			simple, err := uc.GetSimpleRatings(ctx, 9)
			So(err, ShouldBeNil)
			So(simple.TotalRatings, ShouldEqual, 2)
			So(simple.AverageTrust, ShouldAlmostEqual, 4.0, 1e-9)
			// totals 4.15 and 3.00 -> 3.58
			So(simple.AverageTotal, ShouldAlmostEqual, 3.58, 1e-9)
			So(len(simple.Ratings), ShouldEqual, 2)
			So(simple.Ratings[0].RaterUserID, ShouldEqual, 2)
			So(simple.Ratings[1].RaterUserID, ShouldEqual, 1)
		})
	})
}

func TestGetDetailedStats(t *testing.T) {
	ctx := context.Background()

	Convey("Given seven raters of one target", t, func() {
		uc, _, _ := newTestUseCase(nil)
		for i := int64(1); i <= 7; i++ {
			score := float64(i) * 0.5
			_, _, err := uc.SubmitRating(ctx, i, 50, biz.ScoreInput{Trust: score, Engagement: score, Experience: score})
			So(err, ShouldBeNil)
		}

		Convey("Detailed stats carry ranges and cap recent ratings at 5", func() {
			stats, err := uc.GetDetailedStats(ctx, 50)
			So(err, ShouldBeNil)
			So(stats.Aggregate.TotalRatings, ShouldEqual, 7)
			So(stats.TrustRange.Min, ShouldAlmostEqual, 0.5, 1e-9)
			So(stats.TrustRange.Max, ShouldAlmostEqual, 3.5, 1e-9)
			So(len(stats.RecentRatings), ShouldEqual, 5)
			// newest first: raters 7,6,5,4,3
			So(stats.RecentRatings[0].RaterUserID, ShouldEqual, 7)
			So(stats.RecentRatings[4].RaterUserID, ShouldEqual, 3)
		})

		Convey("A target with no ratings gets zeroed detailed stats", func() {
			stats, err := uc.GetDetailedStats(ctx, 999)
			So(err, ShouldBeNil)
			So(stats.Aggregate.TotalRatings, ShouldEqual, 0)
			So(stats.RecentRatings, ShouldBeEmpty)
			So(stats.TotalRange.Max, ShouldEqual, 0)
		})
	})
}

func TestGetLeaderboard(t *testing.T) {
	ctx := context.Background()

	Convey("Given five rated targets", t, func() {
		uc, _, _ := newTestUseCase(nil)
		// target 20+i gets uniform scores of i/2, so average totals descend
		// from target 29 down.
		for i := int64(1); i <= 5; i++ {
			score := float64(i)
			_, _, err := uc.SubmitRating(ctx, 100+i, 20+i, biz.ScoreInput{Trust: score, Engagement: score, Experience: score})
			So(err, ShouldBeNil)
		}

		Convey("The top-3 come back in descending average order", func() {
			entries, err := uc.GetLeaderboard(ctx, 3)
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 3)
			So(entries[0].TargetUserID, ShouldEqual, 25)
			So(entries[1].TargetUserID, ShouldEqual, 24)
			So(entries[2].TargetUserID, ShouldEqual, 23)
			So(entries[0].AverageTotalScore, ShouldBeGreaterThan, entries[1].AverageTotalScore)
		})

		Convey("Limits outside [1,100] are rejected", func() {
			_, err := uc.GetLeaderboard(ctx, 0)
			So(err, ShouldWrap, biz.ErrInvalidLimit)

			_, err = uc.GetLeaderboard(ctx, 101)
			So(err, ShouldWrap, biz.ErrInvalidLimit)
		})

		Convey("Equal averages order by target user id ascending", func() {
			_, _, err := uc.SubmitRating(ctx, 200, 11, biz.ScoreInput{Trust: 2, Engagement: 2, Experience: 2})
			So(err, ShouldBeNil)
			_, _, err = uc.SubmitRating(ctx, 201, 12, biz.ScoreInput{Trust: 2, Engagement: 2, Experience: 2})
			So(err, ShouldBeNil)

			entries, err := uc.GetLeaderboard(ctx, 100)
			So(err, ShouldBeNil)

			var tied []int64
			for _, e := range entries {
				if e.TargetUserID == 11 || e.TargetUserID == 12 {
					tied = append(tied, e.TargetUserID)
				}
			}
			So(tied, ShouldResemble, []int64{11, 12})
		})
	})
}

func TestConcurrentSubmissionsStayConsistent(t *testing.T) {
	ctx := context.Background()

	Convey("Given twenty raters submitting for one target at once", t, func() {
		uc, _, _ := newTestUseCase(nil)

		const raters = 20
		errs := make(chan error, raters)
		var wg sync.WaitGroup
		for i := int64(1); i <= raters; i++ {
			wg.Add(1)
			go func(rater int64) {
				defer wg.Done()
				_, _, err := uc.SubmitRating(ctx, rater, 99, biz.ScoreInput{Trust: 3, Engagement: 3, Experience: 3})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)

		Convey("Every submission lands and the aggregate reflects all of them", func() {
			for err := range errs {
				So(err, ShouldBeNil)
			}

			agg, err := uc.GetAggregateStats(ctx, 99)
			So(err, ShouldBeNil)
			So(agg.TotalRatings, ShouldEqual, raters)
			So(agg.AverageTotalScore, ShouldAlmostEqual, 3.0, 1e-9)
		})
	})
}

func TestMutationRateLimit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a use case limited to one mutation per window", t, func() {
		uc, _, _ := newTestUseCase(&conf.RateLimit{MutationsPerMinute: 1, Burst: 1})

		Convey("The second mutation from the same rater is rejected", func() {
			_, _, err := uc.SubmitRating(ctx, 1, 2, biz.ScoreInput{Trust: 3, Engagement: 3, Experience: 3})
			So(err, ShouldBeNil)

			_, _, err = uc.SubmitRating(ctx, 1, 3, biz.ScoreInput{Trust: 3, Engagement: 3, Experience: 3})
			So(err, ShouldWrap, biz.ErrRateLimited)

			Convey("But another rater is unaffected", func() {
				_, _, err := uc.SubmitRating(ctx, 2, 3, biz.ScoreInput{Trust: 3, Engagement: 3, Experience: 3})
				So(err, ShouldBeNil)
			})
		})
	})
}
