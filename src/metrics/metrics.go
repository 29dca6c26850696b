package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "license"

// Collectors holds the validation metrics
type Collectors struct {
	validations    *prometheus.CounterVec
	autoBlacklists *prometheus.CounterVec
	errors         *prometheus.CounterVec
	duration       prometheus.Histogram
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Validation requests by outcome.",
		}, []string{"outcome"}),
		autoBlacklists: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_blacklists_total",
			Help:      "Keys blacklisted by the anti-sharing heuristic, by reason.",
		}, []string{"reason"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_errors_total",
			Help:      "Validations that failed without an outcome, by error kind.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Time spent deciding a validation, including store round trips.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}

	reg.MustRegister(c.validations, c.autoBlacklists, c.errors, c.duration)
	return c
}

// NewRegistry returns a registry with the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics gathered by reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ObserveValidation counts an outcome and records its latency
func (c *Collectors) ObserveValidation(outcome string, elapsed time.Duration) {
	c.validations.WithLabelValues(outcome).Inc()
	c.duration.Observe(elapsed.Seconds())
}

// ObserveAutoBlacklist counts an automatic blacklisting
func (c *Collectors) ObserveAutoBlacklist(reason string) {
	c.autoBlacklists.WithLabelValues(reason).Inc()
}

// ObserveError counts a validation that ended in an error
func (c *Collectors) ObserveError(kind string) {
	c.errors.WithLabelValues(kind).Inc()
}
