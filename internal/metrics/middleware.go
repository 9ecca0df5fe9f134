package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Request surfaces. Peer traffic is what other nodes send to /peer/*.
const (
	SurfaceClient = "client"
	SurfacePeer   = "peer"
)

const unmatchedRoute = "unmatched"

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "peersearch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds by surface and route",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"surface", "method", "route", "status"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peersearch",
			Name:      "http_requests_total",
			Help:      "HTTP requests by surface, route and status",
		},
		[]string{"surface", "method", "route", "status"},
	)

	httpRequestsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "peersearch",
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests being served by surface",
		},
		[]string{"surface"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestsInFlight)
}

// Middleware records duration, count and in-flight requests under the chi route pattern,
// so /documents/{cid} is one series whatever the cid.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			surface := surfaceOf(r.URL.Path)

			inFlight := httpRequestsInFlight.WithLabelValues(surface)
			inFlight.Inc()
			defer inFlight.Dec()

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			labels := []string{surface, r.Method, routeLabel(chi.RouteContext(r.Context())), strconv.Itoa(status)}
			httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(labels...).Inc()
		})
	}
}

func surfaceOf(path string) string {
	if strings.HasPrefix(path, "/peer/") {
		return SurfacePeer
	}
	return SurfaceClient
}

// routeLabel keeps unmatched paths out of the label set.
func routeLabel(rctx *chi.Context) string {
	if rctx == nil {
		return unmatchedRoute
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return unmatchedRoute
}
