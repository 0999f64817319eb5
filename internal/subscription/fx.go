package subscription

import (
	"github.com/goldsip/goldsip/internal/subscription/repository"
	"github.com/goldsip/goldsip/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
