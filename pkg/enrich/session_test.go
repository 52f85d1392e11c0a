package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"pgregory.net/rapid"

	"github.com/fyrsmithlabs/beacon/pkg/session"
)

func TestSessionProcessor_StampsCurrentSession(t *testing.T) {
	p := NewSessionProcessor(session.Static{ID: "current"})
	lp, rec := newLogPipeline(t, p)

	emit(lp, "user tapped checkout")

	records := rec.Records()
	require.Len(t, records, 1)
	id, ok := logAttr(records[0], SessionIDKey)
	require.True(t, ok)
	assert.Equal(t, "current", id)
	_, ok = logAttr(records[0], SessionPreviousIDKey)
	assert.False(t, ok, "previous id must be absent without a rotation")
}

func TestSessionProcessor_LoggerStaysEnabled(t *testing.T) {
	p := NewSessionProcessor(session.Static{ID: "current"})
	assert.True(t, p.Enabled(context.Background(), sdklog.EnabledParameters{}))

	lp, _ := newLogPipeline(t, p)
	assert.True(t, lp.Logger("x").Enabled(context.Background(), otellog.EnabledParameters{}))

	only := sdklog.NewLoggerProvider(sdklog.WithProcessor(p))
	t.Cleanup(func() { _ = only.Shutdown(context.Background()) })
	assert.True(t, only.Logger("x").Enabled(context.Background(), otellog.EnabledParameters{}),
		"the enricher alone must not disable the logger")
}

func TestSessionProcessor_StampsPreviousAfterRotation(t *testing.T) {
	p := NewSessionProcessor(session.Static{ID: "new", PreviousID: "old"})
	lp, rec := newLogPipeline(t, p)

	emit(lp, "resumed")

	records := rec.Records()
	require.Len(t, records, 1)
	id, _ := logAttr(records[0], SessionIDKey)
	prev, ok := logAttr(records[0], SessionPreviousIDKey)
	assert.Equal(t, "new", id)
	require.True(t, ok)
	assert.Equal(t, "old", prev)
}

func TestSessionProcessor_PreservesExistingSessionID(t *testing.T) {
	p := NewSessionProcessor(session.Static{ID: "current", PreviousID: "older"})
	lp, rec := newLogPipeline(t, p)

	// A crash report re-submitted from a previous run.
	emit(lp, "crash", otellog.String(SessionIDKey, "crashed-session"))

	records := rec.Records()
	require.Len(t, records, 1)
	id, _ := logAttr(records[0], SessionIDKey)
	assert.Equal(t, "crashed-session", id)
	_, ok := logAttr(records[0], SessionPreviousIDKey)
	assert.False(t, ok)
}

func TestSessionProcessor_EmptySessionIDIsReplaced(t *testing.T) {
	p := NewSessionProcessor(session.Static{ID: "current"})
	lp, rec := newLogPipeline(t, p)

	emit(lp, "hello", otellog.String(SessionIDKey, ""))

	records := rec.Records()
	require.Len(t, records, 1)
	id, _ := logAttr(records[0], SessionIDKey)
	assert.Equal(t, "current", id)
}

func TestSessionProcessor_LifecycleMarkersUntouched(t *testing.T) {
	for _, body := range []string{session.StartBody, session.EndBody} {
		t.Run(body, func(t *testing.T) {
			p := NewSessionProcessor(session.Static{ID: "current", PreviousID: "prev"})
			lp, rec := newLogPipeline(t, p)

			emit(lp, body, otellog.String(SessionIDKey, "described"))

			records := rec.Records()
			require.Len(t, records, 1)
			id, _ := logAttr(records[0], SessionIDKey)
			assert.Equal(t, "described", id)
			_, ok := logAttr(records[0], SessionPreviousIDKey)
			assert.False(t, ok)
		})
	}
}

func TestSessionProcessor_MarkerMatchIsExact(t *testing.T) {
	p := NewSessionProcessor(session.Static{ID: "current"})
	lp, rec := newLogPipeline(t, p)

	emit(lp, "Session Start")
	emit(lp, "session start ")

	for _, r := range rec.Records() {
		id, _ := logAttr(r, SessionIDKey)
		assert.Equal(t, "current", id)
	}
}

func TestSessionProcessor_PreservesOrder(t *testing.T) {
	p := NewSessionProcessor(session.Static{ID: "s"})
	lp, rec := newLogPipeline(t, p)

	bodies := []string{"a", session.StartBody, "b", "c", session.EndBody, "d"}
	for _, b := range bodies {
		emit(lp, b)
	}

	records := rec.Records()
	require.Len(t, records, len(bodies))
	for i, r := range records {
		assert.Equal(t, bodies[i], r.Body().AsString())
	}
}

func TestSessionProcessor_NilProviderUsesDefault(t *testing.T) {
	p := NewSessionProcessor(nil)
	assert.Same(t, session.Default(), p.provider)
}

func TestSessionProcessor_NilRecord(t *testing.T) {
	p := NewSessionProcessor(session.Static{ID: "s"})
	assert.NoError(t, p.OnEmit(context.Background(), nil))
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.ForceFlush(context.Background()))
}

func TestSessionProcessor_Metrics(t *testing.T) {
	m, reader := newTestMetrics(t)
	p := NewSessionProcessor(session.Static{ID: "s"}, WithMetrics(m))
	lp, _ := newLogPipeline(t, p)

	emit(lp, "one")
	emit(lp, "two", otellog.String(SessionIDKey, "kept"))
	emit(lp, session.StartBody)

	const name = "beacon.pipeline.session_enrichment"
	assert.Equal(t, int64(1), counterValue(t, reader, name, "outcome", outcomeStamped))
	assert.Equal(t, int64(1), counterValue(t, reader, name, "outcome", outcomePreserved))
	assert.Equal(t, int64(1), counterValue(t, reader, name, "outcome", outcomeLifecycle))
}

func TestSessionProcessor_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		current := session.Session{
			ID:         rapid.StringMatching(`[a-f0-9]{8}`).Draw(rt, "current"),
			PreviousID: rapid.SampledFrom([]string{"", "prev-1", "prev-2"}).Draw(rt, "previous"),
		}
		body := rapid.SampledFrom([]string{session.StartBody, session.EndBody, "event", "tap", ""}).Draw(rt, "body")
		preset := rapid.SampledFrom([]string{"", "preset-id"}).Draw(rt, "preset")

		p := NewSessionProcessor(session.Static(current))
		lp, rec := newLogPipeline(t, p)

		var attrs []otellog.KeyValue
		if preset != "" {
			attrs = append(attrs, otellog.String(SessionIDKey, preset))
		}
		emit(lp, body, attrs...)

		records := rec.Records()
		if len(records) != 1 {
			rt.Fatalf("expected exactly one forwarded record, got %d", len(records))
		}
		id, hasID := logAttr(records[0], SessionIDKey)
		_, hasPrev := logAttr(records[0], SessionPreviousIDKey)

		marker := body == session.StartBody || body == session.EndBody
		switch {
		case marker || preset != "":
			if preset == "" && hasID {
				rt.Fatalf("marker record gained session id %q", id)
			}
			if preset != "" && id != preset {
				rt.Fatalf("pre-existing session id overwritten: got %q want %q", id, preset)
			}
			if hasPrev {
				rt.Fatalf("previous id added to a record that was not stamped")
			}
		default:
			if id != current.ID {
				rt.Fatalf("session id = %q, want %q", id, current.ID)
			}
			if hasPrev != current.HasPrevious() {
				rt.Fatalf("previous id present = %v, want %v", hasPrev, current.HasPrevious())
			}
		}
	})
}

func TestSessionSpanProcessor(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewSessionSpanProcessor(session.Static{ID: "s2", PreviousID: "s1"})),
		sdktrace.WithSyncer(exp),
	)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tracer := tp.Tracer("test")

	_, span := tracer.Start(context.Background(), "plain")
	span.End()
	_, span = tracer.Start(context.Background(), "preset",
		trace.WithAttributes(attribute.String(SessionIDKey, "from-crash")))
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 2)

	id, _ := spanAttr(spans[0].Attributes, SessionIDKey)
	prev, _ := spanAttr(spans[0].Attributes, SessionPreviousIDKey)
	assert.Equal(t, "s2", id)
	assert.Equal(t, "s1", prev)

	id, _ = spanAttr(spans[1].Attributes, SessionIDKey)
	_, hasPrev := spanAttr(spans[1].Attributes, SessionPreviousIDKey)
	assert.Equal(t, "from-crash", id)
	assert.False(t, hasPrev)
}
