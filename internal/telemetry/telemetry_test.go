package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSampler(t *testing.T) {
	require.Equal(t, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description(), sampler(1).Description())
	require.Equal(t, sdktrace.ParentBased(sdktrace.NeverSample()).Description(), sampler(0).Description())
	require.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestMetricsRecord(t *testing.T) {
	m := GetMetrics()
	require.Same(t, m, GetMetrics())

	// the default global provider is a no-op so recording must not panic
	ctx := context.Background()
	m.RecordLoginFailure(ctx, "invalid_token")
	m.RecordGeneration(ctx, time.Now(), nil)
	m.RecordGeneration(ctx, time.Now(), errors.New("quota"))
}
