package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peerrank/peerrank/internal/conf"
	"github.com/peerrank/peerrank/internal/service"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewHTTPServer)

const defaultLeaderboardLimit = 10

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, auth *conf.Auth, svc *service.RatingService, logger log.Logger) *khttp.Server {
	var opts = []khttp.ServerOption{
		khttp.Middleware(
			recovery.Recovery(),
			RequestIDMiddleware(),
			AuthMiddleware(auth.Token),
			IdentityMiddleware(),
		),
		khttp.Timeout(c.HTTP.Timeout()),
	}
	if c.HTTP.Network != "" {
		opts = append(opts, khttp.Network(c.HTTP.Network))
	}
	if c.HTTP.Addr != "" {
		opts = append(opts, khttp.Address(c.HTTP.Addr))
	}

	srv := khttp.NewServer(opts...)
	srv.Handle("/metrics", promhttp.Handler())

	h := &ratingHandlers{svc: svc}
	root := srv.Route("/")
	root.GET("/healthz", h.health)

	v1 := root.Group("/v1")
	v1.POST("/users/{target_id}/rating", h.submitRating)
	v1.PUT("/users/{target_id}/rating", h.updateRating)
	v1.DELETE("/users/{target_id}/rating", h.deleteRating)
	v1.GET("/users/{target_id}/rating", h.simpleRatings)
	v1.GET("/users/{target_id}/rating/me", h.myRating)
	v1.GET("/users/{target_id}/rating/stats", h.aggregateStats)
	v1.GET("/users/{target_id}/rating/detailed-stats", h.detailedStats)
	v1.GET("/leaderboard", h.leaderboard)

	return srv
}

type ratingHandlers struct {
	svc *service.RatingService
}

func (h *ratingHandlers) health(ctx khttp.Context) error {
	return ctx.Result(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ratingHandlers) submitRating(ctx khttp.Context) error {
	targetID, err := pathUserID(ctx)
	if err != nil {
		return err
	}
	var req service.ScoresPayload
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	next := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return h.svc.SubmitRating(c, targetID, &req)
	})
	out, err := next(ctx, &req)
	if err != nil {
		return err
	}

	reply := out.(*service.SubmitRatingReply)
	code := http.StatusOK
	if reply.Created {
		code = http.StatusCreated
	}
	return ctx.Result(code, reply)
}

func (h *ratingHandlers) updateRating(ctx khttp.Context) error {
	targetID, err := pathUserID(ctx)
	if err != nil {
		return err
	}
	var req service.ScoresPayload
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	next := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return h.svc.UpdateRating(c, targetID, &req)
	})
	out, err := next(ctx, &req)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}

func (h *ratingHandlers) deleteRating(ctx khttp.Context) error {
	targetID, err := pathUserID(ctx)
	if err != nil {
		return err
	}

	next := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return h.svc.DeleteRating(c, targetID)
	})
	out, err := next(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}

func (h *ratingHandlers) myRating(ctx khttp.Context) error {
	targetID, err := pathUserID(ctx)
	if err != nil {
		return err
	}

	next := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return h.svc.GetMyRating(c, targetID)
	})
	out, err := next(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}

func (h *ratingHandlers) simpleRatings(ctx khttp.Context) error {
	targetID, err := pathUserID(ctx)
	if err != nil {
		return err
	}

	next := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return h.svc.GetSimpleRatings(c, targetID)
	})
	out, err := next(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}

func (h *ratingHandlers) aggregateStats(ctx khttp.Context) error {
	targetID, err := pathUserID(ctx)
	if err != nil {
		return err
	}

	next := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return h.svc.GetAggregateStats(c, targetID)
	})
	out, err := next(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}

func (h *ratingHandlers) detailedStats(ctx khttp.Context) error {
	targetID, err := pathUserID(ctx)
	if err != nil {
		return err
	}

	next := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return h.svc.GetDetailedStats(c, targetID)
	})
	out, err := next(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}

func (h *ratingHandlers) leaderboard(ctx khttp.Context) error {
	limit := defaultLeaderboardLimit
	if raw := ctx.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return errors.New(422, "INVALID_INPUT", "limit must be an integer")
		}
		limit = n
	}

	next := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return h.svc.GetLeaderboard(c, limit)
	})
	out, err := next(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}

func pathUserID(ctx khttp.Context) (int64, error) {
	raw := ctx.Vars().Get("target_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(422, "INVALID_INPUT", "target_id must be a positive integer")
	}
	return id, nil
}
