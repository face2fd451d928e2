package service

import (
	"context"

	notificationdomain "github.com/medimarket/platform/internal/notification/domain"
	"go.uber.org/zap"
)

// LogNotifier is the default clinic channel: it records the event in the
// application log. Real channels (email, SMS) implement the same
// interface upstream of this module.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) notificationdomain.Notifier {
	return &LogNotifier{log: log.Named("notification.log")}
}

func (n *LogNotifier) Notify(_ context.Context, event notificationdomain.Event) error {
	n.log.Info("ledger change",
		zap.String("clinic_id", event.ClinicID),
		zap.String("kind", event.Kind),
		zap.Int64("amount", event.Amount),
		zap.String("description", event.Description),
	)
	return nil
}
