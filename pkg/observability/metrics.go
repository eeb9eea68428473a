package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platinummonkey/keycloak-auth/pkg/keycloak"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Login flow metrics
	LoginsInitiatedTotal prometheus.Counter
	CallbacksTotal       *prometheus.CounterVec
	CallbackDuration     *prometheus.HistogramVec

	// Keycloak round trips
	TokenExchangesTotal   *prometheus.CounterVec
	TokenExchangeDuration prometheus.Histogram
	DeploymentBuildsTotal *prometheus.CounterVec
}

var _ keycloak.MetricsRecorder = (*Metrics)(nil)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keycloak_auth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keycloak_auth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		LoginsInitiatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keycloak_auth_logins_initiated_total",
				Help: "Total number of redirects to the Keycloak login page",
			},
		),
		CallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keycloak_auth_callbacks_total",
				Help: "Total number of completed callbacks by outcome",
			},
			[]string{"state", "error_kind"},
		),
		CallbackDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keycloak_auth_callback_duration_seconds",
				Help:    "Callback handling duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"state"},
		),

		TokenExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keycloak_auth_token_exchanges_total",
				Help: "Total number of authorization code exchanges",
			},
			[]string{"status"},
		),
		TokenExchangeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "keycloak_auth_token_exchange_duration_seconds",
				Help:    "Token endpoint round trip in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		DeploymentBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keycloak_auth_deployment_builds_total",
				Help: "Total number of client deployment builds",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginsInitiatedTotal,
		m.CallbacksTotal,
		m.CallbackDuration,
		m.TokenExchangesTotal,
		m.TokenExchangeDuration,
		m.DeploymentBuildsTotal,
	)

	return m
}

// LoginInitiated implements keycloak.MetricsRecorder
func (m *Metrics) LoginInitiated() {
	m.LoginsInitiatedTotal.Inc()
}

// CallbackFinished implements keycloak.MetricsRecorder
func (m *Metrics) CallbackFinished(state keycloak.AttemptState, kind keycloak.ErrorKind, duration time.Duration) {
	m.CallbacksTotal.WithLabelValues(state.String(), errorKindLabel(state, kind)).Inc()
	m.CallbackDuration.WithLabelValues(state.String()).Observe(duration.Seconds())
}

// TokenExchanged implements keycloak.MetricsRecorder
func (m *Metrics) TokenExchanged(duration time.Duration, err error) {
	m.TokenExchangesTotal.WithLabelValues(statusLabel(err)).Inc()
	m.TokenExchangeDuration.Observe(duration.Seconds())
}

// DeploymentBuilt implements keycloak.MetricsRecorder
func (m *Metrics) DeploymentBuilt(err error) {
	m.DeploymentBuildsTotal.WithLabelValues(statusLabel(err)).Inc()
}

func errorKindLabel(state keycloak.AttemptState, kind keycloak.ErrorKind) string {
	if state != keycloak.StateFailed {
		return "none"
	}
	return kind.String()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware records request counts and durations. Paths are
// labelled with the matched route template.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			path := routeTemplate(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// RegisterMetricsEndpoint exposes the registry at /metrics
func RegisterMetricsEndpoint(router *mux.Router, gatherer prometheus.Gatherer) {
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
}
