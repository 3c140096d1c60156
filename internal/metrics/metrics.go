// Package metrics exposes Prometheus collectors for caster fetches, parsed
// sourcetables and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ntripbrowser/internal/sourcetable"
)

// Collector bundles the ntripbrowser metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Fetches        *prometheus.CounterVec
	FetchDuration  prometheus.Histogram
	Records        *prometheus.CounterVec
	SkippedRecords prometheus.Counter
	Breakers       *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice against the same registry reuses
// the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	fetches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ntrip_fetches_total",
		Help: "Sourcetable fetches, labeled by result.",
	}, []string{"result"}), "ntrip_fetches_total")
	if err != nil {
		return nil, err
	}

	fetchDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ntrip_fetch_duration_seconds",
		Help:    "Duration of sourcetable fetches.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}), "ntrip_fetch_duration_seconds")
	if err != nil {
		return nil, err
	}

	records, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ntrip_records_parsed_total",
		Help: "Sourcetable records parsed, labeled by kind.",
	}, []string{"kind"}), "ntrip_records_parsed_total")
	if err != nil {
		return nil, err
	}

	skipped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ntrip_records_skipped_total",
		Help: "Records left without a distance because of missing or malformed coordinates.",
	}), "ntrip_records_skipped_total")
	if err != nil {
		return nil, err
	}

	breakers, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ntrip_breaker_transitions_total",
		Help: "Caster circuit breaker transitions, labeled by the state entered.",
	}, []string{"state"}), "ntrip_breaker_transitions_total")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ntrip_http_requests_total",
		Help: "HTTP API requests, labeled by route and status code.",
	}, []string{"route", "code"}), "ntrip_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ntrip_http_request_duration_seconds",
		Help:    "HTTP API latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"}), "ntrip_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		Fetches:        fetches,
		FetchDuration:  fetchDuration,
		Records:        records,
		SkippedRecords: skipped,
		Breakers:       breakers,
		HTTPRequests:   requests,
		HTTPDuration:   durations,
	}, nil
}

// ObserveFetch records one fetch attempt.
func (c *Collector) ObserveFetch(d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Fetches.WithLabelValues(result).Inc()
	c.FetchDuration.Observe(d.Seconds())
}

// ObserveTable adds the record counts of t.
func (c *Collector) ObserveTable(t *sourcetable.Table) {
	if c == nil || t == nil {
		return
	}
	for k, n := range t.Counts() {
		c.Records.WithLabelValues(k.Tag()).Add(float64(n))
	}
	c.SkippedRecords.Add(float64(len(t.Skipped)))
}

// ObserveBreaker counts a circuit breaker entering state.
func (c *Collector) ObserveBreaker(state string) {
	if c == nil {
		return
	}
	c.Breakers.WithLabelValues(state).Inc()
}

// Middleware records request counts and durations by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, eris.Errorf("metrics: collector %s already registered with incompatible type", name)
		}
		return nil, eris.Wrapf(err, "metrics: register %s", name)
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, eris.Errorf("metrics: collector %s already registered with incompatible type", name)
		}
		return nil, eris.Wrapf(err, "metrics: register %s", name)
	}
	return hist, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, eris.Errorf("metrics: collector %s already registered with incompatible type", name)
		}
		return nil, eris.Wrapf(err, "metrics: register %s", name)
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, eris.Errorf("metrics: collector %s already registered with incompatible type", name)
		}
		return nil, eris.Wrapf(err, "metrics: register %s", name)
	}
	return vec, nil
}
