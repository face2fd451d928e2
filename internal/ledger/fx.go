package ledger

import (
	"github.com/medimarket/platform/internal/ledger/repository"
	"github.com/medimarket/platform/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
