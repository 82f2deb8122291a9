package server

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/uuid"

	"github.com/peerrank/peerrank/internal/service"
)

// RequestIDMiddleware stamps every request with a uuid-v7 id, echoed in the
// X-Request-Id response header.
func RequestIDMiddleware() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if tr, ok := transport.FromServerContext(ctx); ok {
				id, err := uuid.NewV7()
				if err == nil {
					tr.ReplyHeader().Set("X-Request-Id", id.String())
				}
			}
			return handler(ctx, req)
		}
	}
}

// AuthMiddleware validates the Bearer token on mutation requests. The token
// belongs to the surrounding backend's gateway; an empty token disables the
// check for local development.
func AuthMiddleware(token string) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if token == "" {
				return handler(ctx, req)
			}

			tr, ok := transport.FromServerContext(ctx)
			if !ok {
				return nil, errors.Unauthorized("UNAUTHORIZED", "missing transport info")
			}

			ht, ok := tr.(*khttp.Transport)
			if !ok || !isMutation(ht.Request().Method) {
				return handler(ctx, req)
			}

			authHeader := tr.RequestHeader().Get("Authorization")
			if authHeader == "" {
				return nil, errors.Unauthorized("UNAUTHORIZED", "missing Authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				return nil, errors.Unauthorized("UNAUTHORIZED", "invalid Authorization header format")
			}

			if parts[1] != token {
				return nil, errors.Unauthorized("UNAUTHORIZED", "invalid token")
			}

			return handler(ctx, req)
		}
	}
}

// IdentityMiddleware extracts the authenticated caller id from the
// X-User-Id header and injects it into the context. Endpoints that require
// an identity reject its absence themselves.
func IdentityMiddleware() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			tr, ok := transport.FromServerContext(ctx)
			if !ok {
				return handler(ctx, req)
			}

			raw := tr.RequestHeader().Get("X-User-Id")
			if raw == "" {
				return handler(ctx, req)
			}

			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				return nil, errors.Unauthorized("UNAUTHORIZED", "invalid X-User-Id header")
			}

			return handler(service.ContextWithUserID(ctx, id), req)
		}
	}
}

func isMutation(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}
