package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func newTestMeter(t *testing.T) (*MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := NewMeterProviderWithReader(reader, zap.NewNop())
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestCounter(t *testing.T) {
	mp, reader := newTestMeter(t)
	c, err := NewCounter(mp.Meter("test"), "requests_total", "requests", "{requests}")
	require.NoError(t, err)

	ctx := context.Background()
	c.Inc(ctx, AttrStatus.String("draft"))
	c.Add(ctx, 4, AttrStatus.String("draft"))
	c.Inc(ctx, AttrStatus.String("paid"))

	m := collect(t, reader)["requests_total"]
	assert.Equal(t, int64(5), sumFor(t, m, AttrStatus.String("draft")))
	assert.Equal(t, int64(1), sumFor(t, m, AttrStatus.String("paid")))
}

func TestHistogram_Boundaries(t *testing.T) {
	mp, reader := newTestMeter(t)
	h, err := NewHistogram(mp.Meter("test"), HistogramOpts{
		Name:       "latency_seconds",
		Unit:       "s",
		Boundaries: []float64{0.1, 1},
	})
	require.NoError(t, err)

	h.RecordDuration(context.Background(), 50*time.Millisecond)
	h.Record(context.Background(), 2)

	hist, ok := collect(t, reader)["latency_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	dp := hist.DataPoints[0]
	assert.Equal(t, []float64{0.1, 1}, dp.Bounds)
	assert.Equal(t, []uint64{1, 0, 1}, dp.BucketCounts)
	assert.Equal(t, uint64(2), dp.Count)
}

func TestGauge(t *testing.T) {
	mp, reader := newTestMeter(t)
	g, err := NewGauge(mp.Meter("test"), "queue_depth", "depth", "{entries}")
	require.NoError(t, err)

	g.Record(context.Background(), 7)
	g.Record(context.Background(), 3)

	gauge, ok := collect(t, reader)["queue_depth"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(3), gauge.DataPoints[0].Value)
}

func TestDisabledProviders(t *testing.T) {
	ctx := context.Background()
	cfg := Config{ServiceName: "fundflow"}

	tp, err := NewTracerProvider(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, tp.Enabled())
	tp.EnableSpanProfiles()
	assert.NoError(t, tp.Shutdown(ctx))

	mp, err := NewMeterProvider(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, mp.Enabled())
	assert.NotNil(t, mp.Meter("fundflow"))
	assert.NoError(t, mp.Shutdown(ctx))

	lp, err := NewLoggerProvider(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	base := zap.NewNop()
	assert.Same(t, base, lp.Bridge(base, zap.InfoLevel))
	assert.NoError(t, lp.Shutdown(ctx))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
