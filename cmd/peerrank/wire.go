//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/peerrank/peerrank/internal/biz"
	"github.com/peerrank/peerrank/internal/conf"
	"github.com/peerrank/peerrank/internal/data"
	"github.com/peerrank/peerrank/internal/server"
	"github.com/peerrank/peerrank/internal/service"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.Auth, *conf.RateLimit, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(server.ProviderSet, data.ProviderSet, biz.ProviderSet, service.ProviderSet, newApp))
}
