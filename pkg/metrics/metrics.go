package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dobeunet"

// Metrics exposes the site service counters to Prometheus.
type Metrics struct {
	registry *prometheus.Registry

	installOffers  prometheus.Counter
	promptOutcomes *prometheus.CounterVec
	installs       prometheus.Counter
	dismissals     prometheus.Counter
	updateOffers   prometheus.Counter
	sessions       prometheus.Gauge

	accepted  *prometheus.CounterVec
	persisted prometheus.Counter
	failed    prometheus.Counter
	retried   prometheus.Counter
}

// New returns a collector backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		installOffers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pwa", Name: "install_offers_total",
			Help: "Install eligibility signals received from clients",
		}),
		promptOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pwa", Name: "install_prompts_total",
			Help: "Install prompts shown, by user choice",
		}, []string{"outcome"}),
		installs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pwa", Name: "installs_total",
			Help: "App installed signals received from clients",
		}),
		dismissals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pwa", Name: "install_dismissals_total",
			Help: "Install banners dismissed by users",
		}),
		updateOffers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pwa", Name: "update_offers_total",
			Help: "Waiting worker updates announced to clients",
		}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pwa", Name: "sessions",
			Help: "Live bridge sessions",
		}),
		accepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "inquiry", Name: "accepted_total",
			Help: "Inquiries accepted by the intake API, by kind",
		}, []string{"kind"}),
		persisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "inquiry", Name: "persisted_total",
			Help: "Inquiries written to the store",
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "inquiry", Name: "failed_total",
			Help: "Inquiries that could not be stored",
		}),
		retried: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "inquiry", Name: "retried_total",
			Help: "Inquiry deliveries requeued for another attempt",
		}),
	}
}

func (m *Metrics) InstallOffered()              { m.installOffers.Inc() }
func (m *Metrics) PromptOutcome(outcome string) { m.promptOutcomes.WithLabelValues(outcome).Inc() }
func (m *Metrics) AppInstalled()                { m.installs.Inc() }
func (m *Metrics) InstallDismissed()            { m.dismissals.Inc() }
func (m *Metrics) UpdateOffered()               { m.updateOffers.Inc() }
func (m *Metrics) SessionOpened()               { m.sessions.Inc() }
func (m *Metrics) SessionClosed()               { m.sessions.Dec() }

func (m *Metrics) IncAccepted(kind string) { m.accepted.WithLabelValues(kind).Inc() }
func (m *Metrics) IncPersisted()           { m.persisted.Inc() }
func (m *Metrics) IncFailed()              { m.failed.Inc() }
func (m *Metrics) IncRetried()             { m.retried.Inc() }

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
