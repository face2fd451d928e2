package dispute

import (
	"github.com/medimarket/platform/internal/dispute/repository"
	"github.com/medimarket/platform/internal/dispute/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dispute.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
