package gateway

import (
	"net/http"

	"github.com/goldsip/goldsip/internal/clock"
	"github.com/goldsip/goldsip/internal/config"
	"github.com/goldsip/goldsip/internal/gateway/client"
	"github.com/goldsip/goldsip/internal/gateway/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway.client",
	fx.Provide(newHTTPClient),
	fx.Provide(newTokenProvider),
	fx.Provide(client.NewClient),
)

func newHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{Timeout: cfg.Gateway.Timeout}
}

func newTokenProvider(cfg config.Config, httpc *http.Client, clk clock.Clock, log *zap.Logger) domain.TokenProvider {
	return client.NewTokenProvider(cfg.Gateway, httpc, clk, log)
}
