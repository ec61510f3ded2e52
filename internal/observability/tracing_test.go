package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracing_Exporters(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TracingConfig
		wantErr string
	}{
		{name: "disabled", cfg: TracingConfig{ServiceName: "kindkart-test"}},
		{name: "stdout", cfg: TracingConfig{ServiceName: "kindkart-test", Enabled: true, Exporter: "stdout"}},
		{name: "otlp without endpoint", cfg: TracingConfig{Enabled: true, Exporter: "otlp"}, wantErr: "OTEL_EXPORTER_OTLP_ENDPOINT"},
		{name: "unknown exporter", cfg: TracingConfig{Enabled: true, Exporter: "zipkin"}, wantErr: "unknown tracing exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := InitTracing(tt.cfg)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestStartEndSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := Tracer
	Tracer = tp.Tracer("test")
	t.Cleanup(func() { Tracer = prev })

	_, span := StartSpan(context.Background(), "request.accepted", attribute.Int64("request.id", 7))
	EndSpan(span, errors.New("conflict"))
	_, span = StartSpan(context.Background(), "request.created")
	EndSpan(span, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "request.accepted", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Int64("request.id", 7))
	assert.Len(t, spans[0].Events(), 1, "error recorded as an event")
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}
