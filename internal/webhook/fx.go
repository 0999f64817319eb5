package webhook

import (
	"github.com/goldsip/goldsip/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(service.NewService),
)
