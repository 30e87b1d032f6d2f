package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Onboarding metrics
	OnboardingOperationsTotal   *prometheus.CounterVec
	OnboardingOperationDuration *prometheus.HistogramVec
	OnboardingStateConflicts    *prometheus.CounterVec

	// Identity provider metrics
	IdPRequestsTotal   *prometheus.CounterVec
	IdPRequestDuration *prometheus.HistogramVec

	// Publisher metrics
	PublishTotal         *prometheus.CounterVec
	PublishFailuresTotal *prometheus.CounterVec

	// Tenant resolver metrics
	TenantCacheHitsTotal   prometheus.Counter
	TenantCacheMissesTotal prometheus.Counter
	TenantResolveDuration  prometheus.Histogram

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// Redis metrics
	RedisConnectionsActive prometheus.Gauge
	RedisCommandsTotal     *prometheus.CounterVec
	RedisCommandDuration   *prometheus.HistogramVec

	// Business metrics
	EnterprisesTotal    *prometheus.GaugeVec
	SsoTicketsIssued    prometheus.Counter
	WebhookDeliveries   *prometheus.CounterVec
	InvitationsRejected *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usher_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usher_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usher_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usher_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Onboarding metrics
		OnboardingOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usher_onboarding_operations_total",
				Help: "Total number of onboarding saga operations",
			},
			[]string{"operation", "outcome"},
		),
		OnboardingOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usher_onboarding_operation_duration_seconds",
				Help:    "Onboarding saga operation duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		OnboardingStateConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usher_onboarding_state_conflicts_total",
				Help: "Total number of rejected lifecycle transitions",
			},
			[]string{"operation"},
		),

		// Identity provider metrics
		IdPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usher_idp_requests_total",
				Help: "Total number of identity provider API requests",
			},
			[]string{"operation", "code"},
		),
		IdPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usher_idp_request_duration_seconds",
				Help:    "Identity provider API request duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),

		// Publisher metrics
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usher_publish_total",
				Help: "Total number of notification publishes",
			},
			[]string{"stream"},
		),
		PublishFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usher_publish_failures_total",
				Help: "Total number of failed notification publishes",
			},
			[]string{"stream"},
		),

		// Tenant resolver metrics
		TenantCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "usher_tenant_cache_hits_total",
				Help: "Total number of tenant resolver cache hits",
			},
		),
		TenantCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "usher_tenant_cache_misses_total",
				Help: "Total number of tenant resolver cache misses",
			},
		),
		TenantResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "usher_tenant_resolve_duration_seconds",
				Help:    "Tenant resolution duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
			},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "usher_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "usher_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "usher_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "usher_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),

		// Redis metrics
		RedisConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "usher_redis_connections_active",
				Help: "Number of active Redis connections",
			},
		),
		RedisCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usher_redis_commands_total",
				Help: "Total number of Redis commands",
			},
			[]string{"command", "status"},
		),
		RedisCommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usher_redis_command_duration_seconds",
				Help:    "Redis command duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"command"},
		),

		// Business metrics
		EnterprisesTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "usher_enterprises_total",
				Help: "Number of enterprises by lifecycle status",
			},
			[]string{"status"},
		),
		SsoTicketsIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "usher_sso_tickets_issued_total",
				Help: "Total number of SSO tickets issued",
			},
		),
		WebhookDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usher_webhook_deliveries_total",
				Help: "Total number of webhook delivery attempts",
			},
			[]string{"event", "status"},
		),
		InvitationsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usher_invitations_rejected_total",
				Help: "Total number of rejected invitations",
			},
			[]string{"reason"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.OnboardingOperationsTotal,
		m.OnboardingOperationDuration,
		m.OnboardingStateConflicts,
		m.IdPRequestsTotal,
		m.IdPRequestDuration,
		m.PublishTotal,
		m.PublishFailuresTotal,
		m.TenantCacheHitsTotal,
		m.TenantCacheMissesTotal,
		m.TenantResolveDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
		m.RedisConnectionsActive,
		m.RedisCommandsTotal,
		m.RedisCommandDuration,
		m.EnterprisesTotal,
		m.SsoTicketsIssued,
		m.WebhookDeliveries,
		m.InvitationsRejected,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Record request size
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			// Serve the request
			next.ServeHTTP(rw, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
