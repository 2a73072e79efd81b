package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestTracingConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("PHOTONLAUNCH_TRACING_ENABLED", "")
	t.Setenv("PHOTONLAUNCH_TRACING_EXPORTER", "")
	t.Setenv("PHOTONLAUNCH_TRACING_SERVICE_NAME", "")
	t.Setenv("PHOTONLAUNCH_TRACING_SAMPLE_RATIO", "")

	cfg := TracingConfigFromEnv()
	require.False(t, cfg.Enabled)
	require.Equal(t, "stdout", cfg.Exporter)
	require.Equal(t, "photonlaunch", cfg.ServiceName)
	require.Equal(t, 1.0, cfg.SampleRatio)
}

func TestTracingConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("PHOTONLAUNCH_TRACING_ENABLED", "TRUE")
	t.Setenv("PHOTONLAUNCH_TRACING_EXPORTER", "OTLP")
	t.Setenv("PHOTONLAUNCH_TRACING_SERVICE_NAME", "launcher-test")
	t.Setenv("PHOTONLAUNCH_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("PHOTONLAUNCH_OTLP_ENDPOINT", "collector:4317")

	cfg := TracingConfigFromEnv()
	require.True(t, cfg.Enabled)
	require.Equal(t, "otlp", cfg.Exporter)
	require.Equal(t, "launcher-test", cfg.ServiceName)
	require.Equal(t, 0.25, cfg.SampleRatio)
	require.Equal(t, "collector:4317", cfg.Endpoint)

	t.Setenv("PHOTONLAUNCH_TRACING_SAMPLE_RATIO", "7")
	require.Equal(t, 1.0, TracingConfigFromEnv().SampleRatio, "out-of-range ratio falls back to 1")
}

func TestInitTracing_Disabled(t *testing.T) {
	var logged []string
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, func(format string, args ...any) {
		logged = append(logged, format)
	})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.Len(t, logged, 1)
}

func TestInitTracing_StdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	cfg := TracingConfig{
		Enabled:     true,
		ServiceName: "launcher-test",
		Exporter:    "stdout",
		SampleRatio: 1,
		Writer:      &buf,
	}
	shutdown, err := InitTracing(context.Background(), cfg, nil)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "PrepareForLaunch")
	span.End()
	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), "PrepareForLaunch")
	require.Contains(t, buf.String(), "launcher-test", "spans carry the service name")

	_, err = InitTracing(context.Background(), TracingConfig{}, nil)
	require.NoError(t, err)
}

func TestInitTracing_UnsupportedExporter(t *testing.T) {
	for _, exporter := range []string{"zipkin", "otlpgrpc"} {
		_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: exporter}, nil)
		require.ErrorContains(t, err, "unsupported tracing exporter", exporter)
	}
}

func TestShutdownWithTimeout_LogsFailure(t *testing.T) {
	var logged int
	ShutdownWithTimeout(context.Background(), func(context.Context) error {
		return errors.New("flush failed")
	}, func(string, ...any) { logged++ })
	require.Equal(t, 1, logged)

	ShutdownWithTimeout(context.Background(), nil, nil)
}
