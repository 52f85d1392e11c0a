package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/beacon/pkg/screen"
)

func newScreenTracer(t *testing.T, p screen.Provider) (trace.Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewScreenProcessor(p)),
		sdktrace.WithSyncer(exp),
	)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp.Tracer("test"), exp
}

func TestScreenProcessor_RecordsVisibleScreen(t *testing.T) {
	tracker := screen.NewTracker()
	tracer, exp := newScreenTracer(t, tracker)

	tracker.SetVisible("Checkout")
	_, span := tracer.Start(context.Background(), "tap")

	// Changes after start do not affect the span.
	tracker.SetVisible("Receipt")
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	name, ok := spanAttr(spans[0].Attributes, ScreenNameKey)
	require.True(t, ok)
	assert.Equal(t, "Checkout", name)
}

func TestScreenProcessor_UnknownWhenNoScreen(t *testing.T) {
	tests := []struct {
		name     string
		provider screen.Provider
	}{
		{name: "empty tracker", provider: screen.NewTracker()},
		{name: "nil provider", provider: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, exp := newScreenTracer(t, tt.provider)
			_, span := tracer.Start(context.Background(), "background-work")
			span.End()

			spans := exp.GetSpans()
			require.Len(t, spans, 1)
			name, _ := spanAttr(spans[0].Attributes, ScreenNameKey)
			assert.Equal(t, UnknownScreen, name)
		})
	}
}

func TestScreenProcessor_KeepsCallerScreen(t *testing.T) {
	tracker := screen.NewTracker()
	tracker.SetVisible("Home")
	tracer, exp := newScreenTracer(t, tracker)

	_, span := tracer.Start(context.Background(), "deep-link",
		trace.WithAttributes(attribute.String(ScreenNameKey, "Settings")))
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	name, _ := spanAttr(spans[0].Attributes, ScreenNameKey)
	assert.Equal(t, "Settings", name)
}

func TestScreenProcessor_NoopLifecycle(t *testing.T) {
	p := NewScreenProcessor(nil)
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.ForceFlush(context.Background()))
}
