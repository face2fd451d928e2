package pricing

import (
	"context"

	pricingdomain "github.com/medimarket/platform/internal/pricing/domain"
	"github.com/medimarket/platform/internal/pricing/repository"
	"github.com/medimarket/platform/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Invoke(func(lc fx.Lifecycle, svc pricingdomain.Service) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return svc.Seed(ctx)
			},
		})
	}),
)
