package notification

import (
	"github.com/medimarket/platform/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(service.NewLogNotifier),
	fx.Provide(service.NewDispatcher),
	fx.Invoke(service.Hook),
)
