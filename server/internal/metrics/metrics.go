package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "clientledger"

// Metrics holds every collector the server exports. Each instance owns a
// private registry, so tests can create as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	HTTPRequests *prometheus.CounterVec   // method, route, code
	HTTPDuration *prometheus.HistogramVec // route

	CustomerOps     *prometheus.CounterVec // op, result
	ActiveCustomers prometheus.Gauge

	CacheHits   *prometheus.CounterVec // op
	CacheMisses *prometheus.CounterVec // op
	CachePurges prometheus.Counter

	NotifyDelivered *prometheus.CounterVec // sink, result
	NotifyDropped   prometheus.Counter
	NotifyQueued    prometheus.Gauge

	AuthAttempts *prometheus.CounterVec // op, result

	StreamClients prometheus.Gauge

	ArchiveSaves *prometheus.CounterVec // result
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"route"}),

		CustomerOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "customer_operations_total",
			Help:      "Customer service operations by kind and result.",
		}, []string{"op", "result"}),
		ActiveCustomers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_customers",
			Help:      "Active customers seen by the most recent statistics run.",
		}),

		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Customer read cache hits by operation.",
		}, []string{"op"}),
		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Customer read cache misses by operation.",
		}, []string{"op"}),
		CachePurges: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_purges_total",
			Help:      "Times the customer read cache was emptied after a write.",
		}),

		NotifyDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by sink and result.",
		}, []string{"sink", "result"}),
		NotifyDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because the queue was full.",
		}),
		NotifyQueued: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifications_queued",
			Help:      "Notifications waiting for a worker.",
		}),

		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication operations by kind and result.",
		}, []string{"op", "result"}),

		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected KPI stream WebSocket clients.",
		}),

		ArchiveSaves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_saves_total",
			Help:      "Statistics report archive writes by result.",
		}, []string{"result"}),
	}
}

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Gather returns the current metric families keyed by name.
func (m *Metrics) Gather() (map[string]*dto.MetricFamily, error) {
	mfs, err := m.reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out, nil
}

// Handler serves the registry in the exposition format negotiated from the
// request's Accept header.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mfs, err := m.reg.Gather()
		if err != nil {
			slog.Error("metrics: gather failed", "err", err)
			http.Error(w, "gather metrics: "+err.Error(), http.StatusInternalServerError)
			return
		}

		format := expfmt.Negotiate(r.Header)
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range mfs {
			if err := enc.Encode(mf); err != nil {
				slog.Error("metrics: encode failed", "family", mf.GetName(), "err", err)
				return
			}
		}
		if c, ok := enc.(expfmt.Closer); ok {
			_ = c.Close()
		}
	})
}

// Sum adds up all counter, gauge, or untyped values in a MetricFamily,
// optionally restricted to series carrying every label in match.
// Returns 0 if mf is nil.
func Sum(mf *dto.MetricFamily, match map[string]string) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		if !hasLabels(m, match) {
			continue
		}
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

func hasLabels(m *dto.Metric, match map[string]string) bool {
	for k, v := range match {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
