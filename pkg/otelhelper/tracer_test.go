package otelhelper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanAndSetError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, span := StartSpan(t.Context(), tracer, "workflow.transition", attribute.String(DealIDKey, "deal-1"))
	SetError(span, errors.New("boom"), attribute.String(ToStatusKey, "OFFER_PREP"))
	span.End()

	spans := recorder.Ended()
	assert.Len(t, spans, 1)
	assert.Equal(t, "workflow.transition", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(DealIDKey, "deal-1"))
}

func TestNoopTracer(t *testing.T) {
	_, span := StartSpan(t.Context(), NoopTracer(), "noop")
	defer span.End()

	assert.False(t, span.IsRecording())
}
