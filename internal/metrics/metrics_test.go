package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestSessionInstruments(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	s, err := New(mp.Meter("test"))
	require.NoError(t, err)

	s.Verification(ctx, OutcomeAuthorized)
	s.Verification(ctx, OutcomeAuthorized)
	s.Verification(ctx, OutcomeDivergence)
	s.Score(ctx, 98.6)
	s.HashDuration(ctx, 2*time.Millisecond, true)
	s.StageDuration(ctx, "split", 2500*time.Millisecond)

	got := collect(t, reader)

	sum, ok := got["mirrorgate.verifications"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("outcome"))
		counts[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{OutcomeAuthorized: 2, OutcomeDivergence: 1}, counts)

	hist, ok := got["mirrorgate.coherence.score"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 98.6, hist.DataPoints[0].Sum, 1e-9)

	assert.Contains(t, got, "mirrorgate.hash.duration")
	assert.Contains(t, got, "mirrorgate.stage.duration")
}

func TestNilSessionIsSafe(t *testing.T) {
	var s *Session
	ctx := context.Background()
	assert.NotPanics(t, func() {
		s.Verification(ctx, OutcomeResumed)
		s.Score(ctx, 70)
		s.HashDuration(ctx, time.Second, false)
		s.StageDuration(ctx, "observe", time.Second)
	})
}
