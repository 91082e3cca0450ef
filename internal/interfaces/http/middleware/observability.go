package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/erp/fundflow/internal/infrastructure/logger"
	"github.com/erp/fundflow/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength bounds request IDs copied into span attributes
const MaxRequestIDLength = 128

// Tracing starts a server span per request with otelgin. When disabled it passes through.
func Tracing(serviceName string, enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return otelgin.Middleware(serviceName)
}

// SpanAttributes adds request, tenant and user IDs to the current span. It runs
// after the JWT middleware, and once the handler is done it marks 4xx and 5xx
// responses as span errors.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if requestID := getRequestID(c); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		if tenantID := GetJWTTenantID(c); tenantID != "" {
			span.SetAttributes(telemetry.AttrTenantID.String(tenantID))
		}
		if userID := GetJWTUserID(c); userID != "" {
			span.SetAttributes(telemetry.AttrUserID.String(userID))
		}

		c.Next()

		if status := c.Writer.Status(); status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(status))
			span.SetAttributes(telemetry.AttrHTTPStatusCode.Int(status))
		}
	}
}

// getRequestID returns the request ID assigned by the logging middleware, or the
// truncated header when that middleware did not run.
func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	if id := logger.GetRequestID(c.Request.Context()); id != "" {
		return id
	}
	id := c.GetHeader(logger.RequestIDHeader)
	if len(id) > MaxRequestIDLength {
		return id[:MaxRequestIDLength]
	}
	return id
}

type httpMetrics struct {
	requestTotal    *telemetry.Counter
	requestDuration *telemetry.Histogram
	activeRequests  metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	requestTotal, err := telemetry.NewCounter(meter,
		"http_server_request_total",
		"Total number of HTTP requests",
		"{request}",
	)
	if err != nil {
		return nil, err
	}
	requestDuration, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency distribution in seconds",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	activeRequests, err := meter.Int64UpDownCounter(
		"http_server_active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	return &httpMetrics{
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		activeRequests:  activeRequests,
	}, nil
}

// HTTPMetrics counts requests and records their latency by method and route
// pattern. A nil meter, or a meter whose instruments cannot be built, disables it.
func HTTPMetrics(meter metric.Meter) gin.HandlerFunc {
	if meter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	m, err := newHTTPMetrics(meter)
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		m.activeRequests.Add(ctx, 1)

		c.Next()

		m.activeRequests.Add(ctx, -1)
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		base := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(c.Request.Method),
			telemetry.AttrHTTPRoute.String(route),
		}
		counted := append([]attribute.KeyValue{telemetry.AttrHTTPStatusCode.Int(c.Writer.Status())}, base...)
		if tenantID := GetJWTTenantID(c); tenantID != "" {
			counted = append(counted, telemetry.AttrTenantID.String(tenantID))
		}
		m.requestTotal.Inc(ctx, counted...)
		m.requestDuration.RecordDuration(ctx, time.Since(start), base...)
	}
}

// ProfilingLabels tags the CPU samples of a request with its route, method and
// tenant so profiles can be filtered per endpoint.
func ProfilingLabels(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			c.Next()
			return
		}
		labels := telemetry.HTTPRequestLabels(route, c.Request.Method, GetJWTTenantID(c))
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
