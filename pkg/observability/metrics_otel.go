package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry metric instruments
type OTelMetrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Saga metrics
	sagaOperationsTotal   metric.Int64Counter
	sagaOperationDuration metric.Float64Histogram

	// Identity provider metrics
	idpRequestsTotal   metric.Int64Counter
	idpRequestDuration metric.Float64Histogram

	// Publisher metrics
	publishTotal metric.Int64Counter

	// Tenant resolver metrics
	tenantCacheHits   metric.Int64Counter
	tenantCacheMisses metric.Int64Counter
}

// NewOTelMetrics creates a new OTel metrics instance
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/platinummonkey/usher")

	m := &OTelMetrics{}
	var err error

	// HTTP metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	// Saga metrics
	m.sagaOperationsTotal, err = meter.Int64Counter(
		"onboarding.operations",
		metric.WithDescription("Total number of onboarding saga operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create onboarding_operations counter: %w", err)
	}

	m.sagaOperationDuration, err = meter.Float64Histogram(
		"onboarding.operation.duration",
		metric.WithDescription("Onboarding saga operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create onboarding_operation_duration histogram: %w", err)
	}

	// Identity provider metrics
	m.idpRequestsTotal, err = meter.Int64Counter(
		"idp.requests",
		metric.WithDescription("Total number of identity provider API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create idp_requests counter: %w", err)
	}

	m.idpRequestDuration, err = meter.Float64Histogram(
		"idp.request.duration",
		metric.WithDescription("Identity provider API request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create idp_request_duration histogram: %w", err)
	}

	// Publisher metrics
	m.publishTotal, err = meter.Int64Counter(
		"publish.total",
		metric.WithDescription("Total number of notification publishes"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create publish_total counter: %w", err)
	}

	// Tenant resolver metrics
	m.tenantCacheHits, err = meter.Int64Counter(
		"tenant.cache.hits",
		metric.WithDescription("Total number of tenant resolver cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant_cache_hits counter: %w", err)
	}

	m.tenantCacheMisses, err = meter.Int64Counter(
		"tenant.cache.misses",
		metric.WithDescription("Total number of tenant resolver cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant_cache_misses counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *OTelMetrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", statusCode),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSagaOperation records an onboarding saga operation metric
func (m *OTelMetrics) RecordSagaOperation(ctx context.Context, operation, outcome string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("saga.operation", operation),
		attribute.String("saga.outcome", outcome),
	}

	m.sagaOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.sagaOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordIdPRequest records an identity provider request metric
func (m *OTelMetrics) RecordIdPRequest(ctx context.Context, operation string, statusCode int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("idp.operation", operation),
		attribute.Int("idp.status_code", statusCode),
	}

	m.idpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.idpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordPublish records a notification publish attempt
func (m *OTelMetrics) RecordPublish(ctx context.Context, stream string, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("stream", stream),
		attribute.Bool("error", err != nil),
	}
	m.publishTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTenantCacheHit records a tenant resolver cache hit
func (m *OTelMetrics) RecordTenantCacheHit(ctx context.Context) {
	m.tenantCacheHits.Add(ctx, 1)
}

// RecordTenantCacheMiss records a tenant resolver cache miss
func (m *OTelMetrics) RecordTenantCacheMiss(ctx context.Context) {
	m.tenantCacheMisses.Add(ctx, 1)
}
