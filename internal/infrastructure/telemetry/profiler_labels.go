package telemetry

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	ProfilingLabelRoute     = "route"
	ProfilingLabelMethod    = "method"
	ProfilingLabelTenantID  = "tenant_id"
	ProfilingLabelOperation = "operation"
)

// MaxLabelValueLength caps label values
const MaxLabelValueLength = 128

// highCardinalityLabels are dropped from profiling labels. Each distinct value
// creates a new series in Pyroscope.
var highCardinalityLabels = map[string]bool{
	"user_id":         true,
	"request_id":      true,
	"fund_request_id": true,
	"trace_id":        true,
	"span_id":         true,
}

// WithProfilingLabels runs fn with labels attached to its profile samples.
// Empty and high-cardinality labels are dropped and long values are truncated.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// sanitizeLabels returns key/value pairs sorted by key
func sanitizeLabels(labels map[string]string) []string {
	pairs := make([]string, 0, len(labels)*2)
	for _, key := range slices.Sorted(maps.Keys(labels)) {
		value := labels[key]
		key = sanitizeLabelKey(key)
		if key == "" || value == "" || highCardinalityLabels[key] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		pairs = append(pairs, key, value)
	}
	return pairs
}

// sanitizeLabelKey lowercases key, maps spaces and dashes to underscores and
// drops anything else outside [a-z0-9_].
func sanitizeLabelKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		switch {
		case r == ' ' || r == '-':
			b.WriteByte('_')
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HTTPRequestLabels labels a request by route pattern, method and tenant
func HTTPRequestLabels(route, method, tenantID string) map[string]string {
	labels := make(map[string]string, 3)
	if route != "" {
		labels[ProfilingLabelRoute] = route
	}
	if method != "" {
		labels[ProfilingLabelMethod] = method
	}
	if tenantID != "" {
		labels[ProfilingLabelTenantID] = tenantID
	}
	return labels
}

// OperationLabels labels a named operation with optional extras
func OperationLabels(operation string, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+1)
	maps.Copy(labels, extra)
	labels[ProfilingLabelOperation] = operation
	return labels
}
