package audit

import (
	"github.com/medimarket/platform/internal/audit/repository"
	"github.com/medimarket/platform/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
