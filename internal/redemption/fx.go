package redemption

import (
	"github.com/goldsip/goldsip/internal/redemption/repository"
	"github.com/goldsip/goldsip/internal/redemption/service"
	"go.uber.org/fx"
)

var Module = fx.Module("redemption.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
