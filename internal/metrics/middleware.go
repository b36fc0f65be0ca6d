package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	n      int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.n += n
	return n, err
}

// Middleware measures inflight, totals, duration, and response size.
// Labels come from chi's matched route pattern, never the raw path:
// nearly every request here hits the docs catch-all, and raw paths
// would explode label cardinality.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// a route context must exist before next runs or the pattern
		// is lost for requests served by NotFound/catch-all
		if chi.RouteContext(r.Context()) == nil {
			rctx := chi.NewRouteContext()
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
		}

		m.inflight.Inc()
		defer m.inflight.Dec()

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		m.record(r, sw, time.Since(start))
	})
}

func (m *ServerMetrics) record(r *http.Request, sw *statusWriter, elapsed time.Duration) {
	// handlers that never write headers count as 200
	code := sw.status
	if code == 0 {
		code = http.StatusOK
	}

	route := routeLabel(r)
	method := r.Method

	m.reqTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	if code >= 500 {
		m.errorsTotal.WithLabelValues(method, route).Inc()
	}

	m.observeDuration(r.Context(), method, route, elapsed.Seconds())
	m.respBytes.WithLabelValues(method, route).Observe(float64(sw.n))
}

func (m *ServerMetrics) observeDuration(ctx context.Context, method, route string, seconds float64) {
	obs := m.reqDur.WithLabelValues(method, route)

	// attach the sampled trace id as an exemplar when the backend
	// supports it (requires the OpenMetrics exposition format)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() && sc.IsSampled() {
		if eo, ok := obs.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(seconds, prometheus.Labels{"trace_id": sc.TraceID().String()})
			return
		}
	}
	obs.Observe(seconds)
}

func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pat := rc.RoutePattern(); pat != "" {
			return pat
		}
	}
	return r.URL.Path
}
