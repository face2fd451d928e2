package service

import (
	"context"
	"sync"
	"time"

	"github.com/medimarket/platform/internal/config"
	notificationdomain "github.com/medimarket/platform/internal/notification/domain"
	obsmetrics "github.com/medimarket/platform/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Notifier notificationdomain.Notifier
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

// Dispatcher delivers notifications on a background worker so that no
// ledger lock is ever held while dispatching. The queue is bounded; when
// it fills, events are dropped and logged rather than blocking billing.
type Dispatcher struct {
	log      *zap.Logger
	notifier notificationdomain.Notifier
	metrics  *obsmetrics.Metrics
	queue    chan notificationdomain.Event
	done     chan struct{}
	once     sync.Once
}

func NewDispatcher(p Params) *Dispatcher {
	size := p.Config.NotifyQueueSize
	if size <= 0 {
		size = 256
	}

	return &Dispatcher{
		log:      p.Log.Named("notification.dispatcher"),
		notifier: p.Notifier,
		metrics:  p.Metrics,
		queue:    make(chan notificationdomain.Event, size),
		done:     make(chan struct{}),
	}
}

// Enqueue hands the event to the background worker. Never blocks.
func (d *Dispatcher) Enqueue(event notificationdomain.Event) {
	select {
	case d.queue <- event:
	default:
		d.log.Warn("notification queue full, dropping event",
			zap.String("clinic_id", event.ClinicID),
			zap.String("kind", event.Kind),
		)
		if d.metrics != nil {
			d.metrics.NotificationDropped()
		}
	}
}

func (d *Dispatcher) run() {
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.notifier.Notify(ctx, event); err != nil {
			d.log.Warn("notification delivery failed",
				zap.String("clinic_id", event.ClinicID),
				zap.String("kind", event.Kind),
				zap.Error(err),
			)
			if d.metrics != nil {
				d.metrics.NotificationFailed()
			}
		}
		cancel()
	}
	close(d.done)
}

func (d *Dispatcher) start() {
	go d.run()
}

// stop drains the queue and waits for the worker to finish.
func (d *Dispatcher) stop(ctx context.Context) error {
	d.once.Do(func() { close(d.queue) })
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Hook wires the dispatcher into the fx lifecycle.
func Hook(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			d.start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return d.stop(ctx)
		},
	})
}
