package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/estatio/docrender/internal/config"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{}, "test", "dev")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	require.Equal(t, sdktrace.AlwaysSample().Description(), Sampler(1).Description())
	require.Equal(t, sdktrace.AlwaysSample().Description(), Sampler(3).Description())
	require.Equal(t, sdktrace.NeverSample().Description(), Sampler(0).Description())
	require.Contains(t, Sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
