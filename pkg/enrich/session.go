package enrich

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fyrsmithlabs/beacon/pkg/session"
)

// SessionProcessor stamps session identity on log records.
//
// Records that already carry a non-empty session.id keep it, and session
// lifecycle markers are left untouched because they describe a specific
// session that may not be the current one. The processor does not buffer:
// register it before the exporting processor and the SDK hands every record
// to the next stage exactly once, in emission order.
type SessionProcessor struct {
	provider session.Provider
	metrics  *Metrics
}

var _ sdklog.Processor = (*SessionProcessor)(nil)

// NewSessionProcessor creates the log enricher. A nil provider uses
// session.Default().
func NewSessionProcessor(provider session.Provider, opts ...Option) *SessionProcessor {
	if provider == nil {
		provider = session.Default()
	}
	o := applyOptions(opts)
	return &SessionProcessor{provider: provider, metrics: o.metrics}
}

// OnEmit implements sdklog.Processor.
func (p *SessionProcessor) OnEmit(ctx context.Context, r *sdklog.Record) error {
	if r == nil {
		return nil
	}
	if IsLifecycleMarker(r.Body()) {
		p.metrics.recordEnrichment(ctx, outcomeLifecycle)
		return nil
	}

	hasID, hasPrevious := sessionAttrs(r)
	if hasID {
		p.metrics.recordEnrichment(ctx, outcomePreserved)
		return nil
	}

	s := p.provider.Current()
	attrs := make([]otellog.KeyValue, 0, 2)
	attrs = append(attrs, otellog.String(SessionIDKey, s.ID))
	if s.HasPrevious() && !hasPrevious {
		attrs = append(attrs, otellog.String(SessionPreviousIDKey, s.PreviousID))
	}
	r.AddAttributes(attrs...)
	p.metrics.recordEnrichment(ctx, outcomeStamped)
	return nil
}

// Enabled implements sdklog.Processor. The enricher never suppresses a
// record; the SDK treats a logger as disabled only when every processor
// reports false.
func (p *SessionProcessor) Enabled(context.Context, sdklog.EnabledParameters) bool { return true }

// Shutdown implements sdklog.Processor.
func (p *SessionProcessor) Shutdown(context.Context) error { return nil }

// ForceFlush implements sdklog.Processor.
func (p *SessionProcessor) ForceFlush(context.Context) error { return nil }

// IsLifecycleMarker reports whether body is exactly a session start or end
// marker.
func IsLifecycleMarker(body otellog.Value) bool {
	if body.Kind() != otellog.KindString {
		return false
	}
	switch body.AsString() {
	case session.StartBody, session.EndBody:
		return true
	}
	return false
}

func sessionAttrs(r *sdklog.Record) (hasID, hasPrevious bool) {
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		switch kv.Key {
		case SessionIDKey:
			hasID = kv.Value.Kind() == otellog.KindString && kv.Value.AsString() != ""
		case SessionPreviousIDKey:
			hasPrevious = kv.Value.Kind() == otellog.KindString && kv.Value.AsString() != ""
		}
		return true
	})
	return hasID, hasPrevious
}

// SessionSpanProcessor stamps session identity on spans at start, with the
// same first-writer-wins rule as SessionProcessor.
type SessionSpanProcessor struct {
	provider session.Provider
}

var _ sdktrace.SpanProcessor = (*SessionSpanProcessor)(nil)

// NewSessionSpanProcessor creates the span enricher. A nil provider uses
// session.Default().
func NewSessionSpanProcessor(provider session.Provider) *SessionSpanProcessor {
	if provider == nil {
		provider = session.Default()
	}
	return &SessionSpanProcessor{provider: provider}
}

// OnStart implements sdktrace.SpanProcessor.
func (p *SessionSpanProcessor) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	attrs := s.Attributes()
	if hasNonEmptyString(attrs, SessionIDKey) {
		return
	}
	cur := p.provider.Current()
	s.SetAttributes(attribute.String(SessionIDKey, cur.ID))
	if cur.HasPrevious() && !hasNonEmptyString(attrs, SessionPreviousIDKey) {
		s.SetAttributes(attribute.String(SessionPreviousIDKey, cur.PreviousID))
	}
}

// OnEnd implements sdktrace.SpanProcessor.
func (p *SessionSpanProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

// Shutdown implements sdktrace.SpanProcessor.
func (p *SessionSpanProcessor) Shutdown(context.Context) error { return nil }

// ForceFlush implements sdktrace.SpanProcessor.
func (p *SessionSpanProcessor) ForceFlush(context.Context) error { return nil }
