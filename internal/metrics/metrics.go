package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pageforge/docserve/internal/version"
)

// ServerMetrics holds every instrument the server exposes, backed by a
// private registry so tests never fight over the global one.
type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	// request path
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	errorsTotal            *prometheus.CounterVec
	httpPanicTotal         prometheus.Counter
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter

	// documentation content
	resolveTotal      *prometheus.CounterVec
	bundlesRegistered prometheus.Gauge
	bundleInfo        *prometheus.GaugeVec
	bundleLoadedTs    prometheus.Gauge

	// release watcher
	watcherPollsTotal    prometheus.Counter
	watcherSwapsTotal    prometheus.Counter
	watcherErrorsTotal   *prometheus.CounterVec
	bundleLoadDuration   prometheus.Histogram
	watcherLastSuccessTs prometheus.Gauge
	watcherStale         prometheus.Gauge

	// process
	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge
}

var (
	latencyBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	sizeBuckets     = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 52428800}
	loadTimeBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60}
)

// New builds a fresh registry with the standard Go and process
// collectors plus every server instrument. HTTP metrics carry only
// bounded labels (method, route, status) so raw request paths can
// never explode cardinality.
func New() *ServerMetrics {
	m := &ServerMetrics{reg: prometheus.NewRegistry()}

	m.initRequestMetrics()
	m.initContentMetrics()
	m.initWatcherMetrics()
	m.initProcessMetrics()

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inflight, m.reqTotal, m.reqDur, m.respBytes, m.errorsTotal,
		m.httpPanicTotal, m.ratelimitDeniedTotal, m.ratelimitCapacityTotal,
		m.resolveTotal, m.bundlesRegistered, m.bundleInfo, m.bundleLoadedTs,
		m.watcherPollsTotal, m.watcherSwapsTotal, m.watcherErrorsTotal,
		m.bundleLoadDuration, m.watcherLastSuccessTs, m.watcherStale,
		m.buildInfo, m.profilingActive,
	)

	m.handler = promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	return m
}

func (m *ServerMetrics) initRequestMetrics() {
	m.inflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "Current number of in-flight HTTP requests",
	})
	m.reqTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests by method, route, and status",
	}, []string{"method", "route", "status"})
	m.reqDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Request latency by method and route",
		Buckets: latencyBuckets,
	}, []string{"method", "route"})
	m.respBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "Response size by method and route",
		Buckets: sizeBuckets,
	}, []string{"method", "route"})
	m.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_errors_total",
		Help: "Total 5xx HTTP server errors by method and route (SLI)",
	}, []string{"method", "route"})
	m.httpPanicTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_panic_total",
		Help: "Total number of recovered httpserver panics",
	})
	m.ratelimitDeniedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_requests_rate_limited_total",
		Help: "Total requests rejected by rate limiter",
	})
	m.ratelimitCapacityTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_requests_rate_limited_capacity_total",
		Help: "Total number of times rate limiter capacity reached",
	})
}

func (m *ServerMetrics) initContentMetrics() {
	m.resolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docs_resolve_total",
		Help: "Total documentation resolutions by outcome",
	}, []string{"outcome"})
	m.bundlesRegistered = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docs_bundles_registered",
		Help: "Number of documentation bundles currently registered",
	})
	m.bundleInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "docs_bundle_info",
		Help: "Currently active documentation bundle (labels carry identity, value is always 1)",
	}, []string{"bundle", "sha256"})
	m.bundleLoadedTs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docs_bundle_loaded_timestamp_seconds",
		Help: "Unix timestamp of when the current bundle was loaded",
	})
}

func (m *ServerMetrics) initWatcherMetrics() {
	m.watcherPollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docs_watcher_polls_total",
		Help: "Total number of watcher poll cycles",
	})
	m.watcherSwapsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docs_watcher_swaps_total",
		Help: "Total number of successful bundle swaps",
	})
	m.watcherErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docs_watcher_errors_total",
		Help: "Total watcher errors by type",
	}, []string{"type"})
	m.bundleLoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "docs_bundle_load_duration_seconds",
		Help:    "Time to download, verify, and extract a bundle",
		Buckets: loadTimeBuckets,
	})
	m.watcherLastSuccessTs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docs_watcher_last_success_timestamp_seconds",
		Help: "Unix timestamp of the last successful release poll",
	})
	m.watcherStale = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docs_watcher_stale",
		Help: "Whether the bundle watcher is stale (1) or healthy (0)",
	})
}

func (m *ServerMetrics) initProcessMetrics() {
	m.buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1)",
	}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"})
	m.profilingActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "profiling_active",
		Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
	})
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

// IncResolved counts resolution outcomes from the request resolver.
func (m *ServerMetrics) IncResolved(outcome string) {
	m.resolveTotal.WithLabelValues(outcome).Inc()
}

func (m *ServerMetrics) SetBundlesRegistered(n int) {
	m.bundlesRegistered.Set(float64(n))
}

// SetActiveBundle resets the info vec first so a swap never leaves the
// previous bundle's label set behind.
func (m *ServerMetrics) SetActiveBundle(bundleID, sha256 string) {
	m.bundleInfo.Reset()
	m.bundleInfo.WithLabelValues(bundleID, sha256).Set(1)
	m.bundleLoadedTs.Set(float64(time.Now().Unix()))
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	m.profilingActive.Set(boolToGauge(active))
}

func (m *ServerMetrics) IncWatcherPolls() {
	m.watcherPollsTotal.Inc()
}

func (m *ServerMetrics) IncWatcherSwaps() {
	m.watcherSwapsTotal.Inc()
}

func (m *ServerMetrics) IncWatcherError(errType string) {
	m.watcherErrorsTotal.WithLabelValues(errType).Inc()
}

func (m *ServerMetrics) ObserveBundleLoadDuration(seconds float64) {
	m.bundleLoadDuration.Observe(seconds)
}

func (m *ServerMetrics) SetWatcherLastSuccess(unixSeconds float64) {
	m.watcherLastSuccessTs.Set(unixSeconds)
}

func (m *ServerMetrics) SetWatcherStale(stale bool) {
	m.watcherStale.Set(boolToGauge(stale))
}

func boolToGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
