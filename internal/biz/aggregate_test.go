package biz_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/peerrank/peerrank/internal/biz"
)

func ratingsWithTotals(targetID int64, totals ...float64) []*biz.Rating {
	list := make([]*biz.Rating, 0, len(totals))
	for i, total := range totals {
		list = append(list, &biz.Rating{
			TargetUserID:    targetID,
			RaterUserID:     int64(100 + i),
			TrustScore:      total,
			EngagementScore: total,
			ExperienceScore: total,
			TotalScore:      total,
		})
	}
	return list
}

func TestComputeAggregate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given a set of ratings for one target", t, func() {
		Convey("Odd count takes the middle element as median", func() {
			agg := biz.ComputeAggregate(7, ratingsWithTotals(7, 1, 2, 3), now)
			So(agg.MedianTotalScore, ShouldAlmostEqual, 2.0, 1e-9)
			So(agg.TotalRatings, ShouldEqual, 3)
		})

		Convey("Even count averages the two middle elements", func() {
			agg := biz.ComputeAggregate(7, ratingsWithTotals(7, 1, 2, 3, 4), now)
			So(agg.MedianTotalScore, ShouldAlmostEqual, 2.5, 1e-9)
		})

		Convey("Averages are the 2-decimal arithmetic mean", func() {
			agg := biz.ComputeAggregate(7, ratingsWithTotals(7, 1, 2, 4), now)
			// (1+2+4)/3 = 2.333... -> 2.33
			So(agg.AverageTotalScore, ShouldAlmostEqual, 2.33, 1e-9)
			So(agg.AverageTrustScore, ShouldAlmostEqual, 2.33, 1e-9)
		})

		Convey("Min and max totals come straight from the rows", func() {
			agg := biz.ComputeAggregate(7, ratingsWithTotals(7, 4.15, 1.05, 3.33), now)
			So(agg.MinTotalScore, ShouldEqual, 1.05)
			So(agg.MaxTotalScore, ShouldEqual, 4.15)
		})

		Convey("The computation is idempotent for an unchanged rating set", func() {
			list := ratingsWithTotals(7, 2.5, 3.5, 4.0)
			first := biz.ComputeAggregate(7, list, now)
			second := biz.ComputeAggregate(7, list, now)
			So(second, ShouldResemble, first)
		})
	})
}

func TestAggregateMaintainerRecompute(t *testing.T) {
	ctx := context.Background()

	Convey("Given a maintainer over fake stores", t, func() {
		ratings := newFakeRatingRepo()
		aggregates := newFakeAggregateRepo()
		maintainer := biz.NewAggregateMaintainer(ratings, aggregates, testLogger())

		Convey("Recompute over an empty rating set deletes the aggregate row", func() {
			aggregates.rows[42] = &biz.Aggregate{TargetUserID: 42, TotalRatings: 3}

			So(maintainer.Recompute(ctx, 42), ShouldBeNil)

			_, err := aggregates.Get(ctx, 42)
			So(err, ShouldEqual, biz.ErrAggregateNotFound)
		})

		Convey("Recompute over live ratings materializes a consistent row", func() {
			_, _, err := ratings.Upsert(ctx, 42, 1, biz.ScoreInput{Trust: 5, Engagement: 4, Experience: 3})
			So(err, ShouldBeNil)
			_, _, err = ratings.Upsert(ctx, 42, 2, biz.ScoreInput{Trust: 3, Engagement: 3, Experience: 3})
			So(err, ShouldBeNil)

			So(maintainer.Recompute(ctx, 42), ShouldBeNil)

			agg, err := aggregates.Get(ctx, 42)
			So(err, ShouldBeNil)
			So(agg.TotalRatings, ShouldEqual, 2)
			// totals are 4.15 and 3.00
			So(agg.AverageTotalScore, ShouldAlmostEqual, 3.58, 1e-9)
			So(agg.MedianTotalScore, ShouldAlmostEqual, 3.58, 1e-9)
			So(agg.MinTotalScore, ShouldAlmostEqual, 3.00, 1e-9)
			So(agg.MaxTotalScore, ShouldAlmostEqual, 4.15, 1e-9)
		})
	})
}
