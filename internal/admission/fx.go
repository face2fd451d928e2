package admission

import (
	"github.com/medimarket/platform/internal/admission/repository"
	"github.com/medimarket/platform/internal/admission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("admission.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
