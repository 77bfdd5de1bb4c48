package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"panoptes/internal/cudart"
	"panoptes/internal/instrument"
)

// Collectors records cache, pass and runtime-call activity. It satisfies
// both cache.Observer and shim.Observer.
type Collectors struct {
	CacheLookups        *prometheus.CounterVec
	TranslationDuration prometheus.Histogram
	TranslationFailures prometheus.Counter
	GuardsInserted      prometheus.Counter
	UnguardedAccesses   prometheus.Counter
	Calls               *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panoptes_cache_lookups_total",
			Help: "Module cache lookups by result",
		}, []string{"result"}),

		TranslationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "panoptes_translation_duration_ms",
			Help:    "Time spent lexing, parsing and instrumenting one module in milliseconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 14), // 0.25ms to ~2s
		}),

		TranslationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "panoptes_translation_failures_total",
			Help: "Modules that could not be translated",
		}),

		GuardsInserted: f.NewCounter(prometheus.CounterOpts{
			Name: "panoptes_guards_inserted_total",
			Help: "Memory-access guards inserted by the instrumentation pass",
		}),

		UnguardedAccesses: f.NewCounter(prometheus.CounterOpts{
			Name: "panoptes_unguarded_accesses_total",
			Help: "Memory accesses left unguarded by policy",
		}),

		Calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panoptes_runtime_calls_total",
			Help: "Intercepted runtime calls by name and result",
		}, []string{"call", "result"}),
	}
}

func (c *Collectors) Lookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheLookups.WithLabelValues(result).Inc()
}

func (c *Collectors) Translated(d time.Duration, report instrument.Report, err error) {
	c.TranslationDuration.Observe(float64(d) / float64(time.Millisecond))
	if err != nil {
		c.TranslationFailures.Inc()
		return
	}
	c.GuardsInserted.Add(float64(report.Guards))
	c.UnguardedAccesses.Add(float64(report.Skipped))
}

func (c *Collectors) Call(name string, code cudart.Error) {
	c.Calls.WithLabelValues(name, cudart.GetErrorName(code)).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
