package enrich

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fyrsmithlabs/beacon/pkg/screen"
)

// ScreenProcessor records the visible screen on every span at start.
type ScreenProcessor struct {
	provider screen.Provider
}

var _ sdktrace.SpanProcessor = (*ScreenProcessor)(nil)

// NewScreenProcessor creates the span enricher. A nil provider records
// UnknownScreen on every span.
func NewScreenProcessor(provider screen.Provider) *ScreenProcessor {
	return &ScreenProcessor{provider: provider}
}

// OnStart implements sdktrace.SpanProcessor. A screen.name set by the span's
// creator is kept.
func (p *ScreenProcessor) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	if hasNonEmptyString(s.Attributes(), ScreenNameKey) {
		return
	}
	s.SetAttributes(attribute.String(ScreenNameKey, p.current()))
}

func (p *ScreenProcessor) current() string {
	if p.provider == nil {
		return UnknownScreen
	}
	if name, ok := p.provider.Current(); ok && name != "" {
		return name
	}
	return UnknownScreen
}

// OnEnd implements sdktrace.SpanProcessor.
func (p *ScreenProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

// Shutdown implements sdktrace.SpanProcessor.
func (p *ScreenProcessor) Shutdown(context.Context) error { return nil }

// ForceFlush implements sdktrace.SpanProcessor.
func (p *ScreenProcessor) ForceFlush(context.Context) error { return nil }
