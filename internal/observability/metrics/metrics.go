package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Module provides the application metrics registry.
var Module = fx.Module("observability.metrics",
	fx.Provide(NewMetrics),
	fx.Provide(NewHTTPMetrics),
)

// Metrics exposes the billing-engine instruments. All counters are
// registered on the default prometheus registry served at /metrics.
type Metrics struct {
	postingsTotal       *prometheus.CounterVec
	admissionsTotal     *prometheus.CounterVec
	disputesTotal       *prometheus.CounterVec
	lockTimeoutsTotal   prometheus.Counter
	notifyFailuresTotal prometheus.Counter
	notifyDroppedTotal  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		postingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_postings_total",
			Help: "Completed ledger postings by kind.",
		}, []string{"kind"}),
		admissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lead_admissions_total",
			Help: "Lead admission decisions by outcome.",
		}, []string{"outcome"}),
		disputesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "disputes_total",
			Help: "Dispute workflow transitions by action.",
		}, []string{"action"}),
		lockTimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "account_lock_timeouts_total",
			Help: "Operations that timed out waiting for an account guard.",
		}),
		notifyFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Notification deliveries that returned an error.",
		}),
		notifyDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_dropped_total",
			Help: "Notifications dropped because the queue was full.",
		}),
	}

	prometheus.MustRegister(
		m.postingsTotal,
		m.admissionsTotal,
		m.disputesTotal,
		m.lockTimeoutsTotal,
		m.notifyFailuresTotal,
		m.notifyDroppedTotal,
	)

	return m
}

func (m *Metrics) PostingCommitted(kind string) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) AdmissionDecided(outcome string) {
	if m == nil {
		return
	}
	m.admissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DisputeTransition(action string) {
	if m == nil {
		return
	}
	m.disputesTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) LockTimeout() {
	if m == nil {
		return
	}
	m.lockTimeoutsTotal.Inc()
}

func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.notifyFailuresTotal.Inc()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.notifyDroppedTotal.Inc()
}
