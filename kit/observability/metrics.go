package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "payment_reconciler"

// Metrics owns its registry so several instances can live side by side in tests.
type Metrics struct {
	registry *prometheus.Registry

	WebhooksReceived     *prometheus.CounterVec
	PaymentsProcessed    *prometheus.CounterVec
	DuplicatesSuppressed *prometheus.CounterVec
	DownstreamSyncs      *prometheus.CounterVec
	Notifications        *prometheus.CounterVec
	WatcherChanges       *prometheus.CounterVec
	ReconcileSweeps      prometheus.Counter
	EventsPublished      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		WebhooksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_received_total",
			Help:      "Inbound gateway notifications by outcome.",
		}, []string{"result"}),
		PaymentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_processed_total",
			Help:      "Approved-payment processing attempts by trigger source and outcome.",
		}, []string{"source", "outcome"}),
		DuplicatesSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_suppressed_total",
			Help:      "Triggers dropped because a dedup claim was already held.",
		}, []string{"source"}),
		DownstreamSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downstream_syncs_total",
			Help:      "Downstream status sync calls by result.",
		}, []string{"result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Payment confirmations by result.",
		}, []string{"result"}),
		WatcherChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_changes_total",
			Help:      "Store changes observed by the reconciliation watcher.",
		}, []string{"op"}),
		ReconcileSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_sweeps_total",
			Help:      "Full reconciliation sweeps executed.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events seen on the bus by name.",
		}, []string{"event"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.WebhooksReceived,
		m.PaymentsProcessed,
		m.DuplicatesSuppressed,
		m.DownstreamSyncs,
		m.Notifications,
		m.WatcherChanges,
		m.ReconcileSweeps,
		m.EventsPublished,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) WebhookReceived(result string) {
	if m == nil {
		return
	}
	m.WebhooksReceived.WithLabelValues(result).Inc()
}

func (m *Metrics) PaymentProcessed(source, outcome string) {
	if m == nil {
		return
	}
	m.PaymentsProcessed.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) DuplicateSuppressed(source string) {
	if m == nil {
		return
	}
	m.DuplicatesSuppressed.WithLabelValues(source).Inc()
}

func (m *Metrics) DownstreamSync(result string) {
	if m == nil {
		return
	}
	m.DownstreamSyncs.WithLabelValues(result).Inc()
}

func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) WatcherChange(op string) {
	if m == nil {
		return
	}
	m.WatcherChanges.WithLabelValues(op).Inc()
}

func (m *Metrics) SweepCompleted() {
	if m == nil {
		return
	}
	m.ReconcileSweeps.Inc()
}

func (m *Metrics) EventPublished(name string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(name).Inc()
}
