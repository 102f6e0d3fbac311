package telemetry

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/remapd/internal/profile"
)

const namespace = "remapd"

// Metrics records context telemetry as Prometheus metrics. It implements
// profile.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	inputs          *prometheus.CounterVec   // by provider, key_type
	reactionLatency prometheus.Histogram     // reaction run time
	panics          *prometheus.CounterVec   // by profile
	outputFailures  *prometheus.CounterVec   // by profile
	activations     *prometheus.CounterVec   // by result
	slotFailures    prometheus.Counter       // failed subscriptions over all activations
	activationTime  *prometheus.HistogramVec // by result
	activeProfile   *prometheus.GaugeVec     // 1 for the active profile
}

// NewMetrics creates the metrics on a fresh registry that also carries the
// Go runtime and process collectors.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,

		inputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "events_total",
			Help:      "Control values delivered to behaviors",
		}, []string{"provider", "key_type"}),

		reactionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "reaction_duration_seconds",
			Help:      "Time spent running a behavior reaction",
			Buckets:   []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "reaction_panics_total",
			Help:      "Reactions that panicked",
		}, []string{"profile"}),

		outputFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "write_failures_total",
			Help:      "Output writes rejected by a provider",
		}, []string{"profile"}),

		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "profile",
			Name:      "activations_total",
			Help:      "Profile activation attempts",
		}, []string{"result"}),

		slotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "profile",
			Name:      "slot_failures_total",
			Help:      "Input slots that failed to subscribe during activation",
		}),

		activationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "profile",
			Name:      "activation_duration_seconds",
			Help:      "Profile activation duration",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"result"}),

		activeProfile: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "profile",
			Name:      "active",
			Help:      "1 for the active profile",
		}, []string{"profile"}),
	}

	for _, c := range []prometheus.Collector{
		m.inputs, m.reactionLatency, m.panics, m.outputFailures,
		m.activations, m.slotFailures, m.activationTime, m.activeProfile,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			var dup prometheus.AlreadyRegisteredError
			if errors.As(err, &dup) {
				return nil, fmt.Errorf("%w: %w", ErrDuplicateMetric, err)
			}
			return nil, fmt.Errorf("registering metric: %w", err)
		}
	}
	return m, nil
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InputDelivered implements profile.Recorder.
func (m *Metrics) InputDelivered(ev profile.InputEvent) {
	m.inputs.WithLabelValues(ev.Provider, string(ev.Descriptor.KeyType)).Inc()
	m.reactionLatency.Observe(ev.Latency.Seconds())
}

// ReactionPanicked implements profile.Recorder.
func (m *Metrics) ReactionPanicked(profileTitle, _ string) {
	m.panics.WithLabelValues(profileTitle).Inc()
}

// OutputFailed implements profile.Recorder.
func (m *Metrics) OutputFailed(profileTitle string, _ error) {
	m.outputFailures.WithLabelValues(profileTitle).Inc()
}

// ProfileActivated implements profile.Recorder.
func (m *Metrics) ProfileActivated(rep profile.ActivationReport) {
	result := resultLabel(rep.OK())
	m.activations.WithLabelValues(result).Inc()
	m.activationTime.WithLabelValues(result).Observe(rep.Duration.Seconds())
	m.slotFailures.Add(float64(len(rep.Outcome.Failures)))

	if rep.OK() {
		m.activeProfile.Reset()
		m.activeProfile.WithLabelValues(rep.Profile).Set(1)
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
