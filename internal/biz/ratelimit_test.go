package biz_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/peerrank/peerrank/internal/biz"
	"github.com/peerrank/peerrank/internal/conf"
)

func TestMutationLimiter(t *testing.T) {
	Convey("Given a limiter with burst 3", t, func() {
		limiter := biz.NewMutationLimiter(&conf.RateLimit{MutationsPerMinute: 1, Burst: 3})

		Convey("It allows the burst and then denies", func() {
			So(limiter.Allow(1), ShouldBeTrue)
			So(limiter.Allow(1), ShouldBeTrue)
			So(limiter.Allow(1), ShouldBeTrue)
			So(limiter.Allow(1), ShouldBeFalse)
		})

		Convey("Raters are throttled independently", func() {
			for i := 0; i < 3; i++ {
				limiter.Allow(1)
			}
			So(limiter.Allow(1), ShouldBeFalse)
			So(limiter.Allow(2), ShouldBeTrue)
		})
	})

	Convey("Given a disabled limiter", t, func() {
		Convey("Nil config never denies", func() {
			limiter := biz.NewMutationLimiter(nil)
			for i := 0; i < 100; i++ {
				So(limiter.Allow(7), ShouldBeTrue)
			}
		})

		Convey("A zero rate never denies", func() {
			limiter := biz.NewMutationLimiter(&conf.RateLimit{MutationsPerMinute: 0})
			for i := 0; i < 100; i++ {
				So(limiter.Allow(7), ShouldBeTrue)
			}
		})
	})
}
