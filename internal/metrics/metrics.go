package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session metrics
var (
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bterminal_sessions_active",
			Help: "Number of live shell sessions",
		},
	)

	ClientsAttached = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bterminal_clients_attached",
			Help: "Number of streaming clients attached to sessions",
		},
	)

	PTYBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bterminal_pty_bytes_total",
			Help: "Bytes written to (in) or read from (out) session terminals",
		},
		[]string{"direction"},
	)

	FanoutLaggedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bterminal_fanout_lagged_total",
			Help: "Output messages skipped by consumers that fell behind",
		},
		[]string{"consumer"},
	)

	SessionCreatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bterminal_session_creates_total",
			Help: "Total session creations",
		},
		[]string{"status"},
	)

	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bterminal_events_dropped_total",
			Help: "Lifecycle events dropped for full subscribers",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bterminal_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bterminal_http_request_duration_seconds",
			Help:    "HTTP request latency; streaming endpoints record connection lifetime",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 60.0, 600.0},
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsActive,
		ClientsAttached,
		PTYBytesTotal,
		FanoutLaggedTotal,
		SessionCreatesTotal,
		EventsDroppedTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoMiddleware returns Echo middleware that instruments HTTP requests.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()
			HTTPRequestDuration.WithLabelValues(
				c.Request().Method,
				c.Path(),
			).Observe(duration.Seconds())

			return err
		}
	}
}

// StartMetricsServer starts a standalone HTTP server serving /metrics on the given address.
func StartMetricsServer(addr string, onError func(error)) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && onError != nil {
			onError(err)
		}
	}()
	return srv
}
