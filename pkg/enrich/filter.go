package enrich

import (
	"context"
	"sync"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type flusher interface {
	ForceFlush(ctx context.Context) error
}

// InternalSpanFilter drops spans marked internal before they reach the
// wrapped exporter.
//
// Each batch is forwarded in one call with the kept spans in their original
// order, even when nothing is kept. Calls into the delegate are serialized,
// so the filter is safe behind processors that export concurrently.
type InternalSpanFilter struct {
	mu       sync.Mutex
	delegate sdktrace.SpanExporter
	metrics  *Metrics
}

var _ sdktrace.SpanExporter = (*InternalSpanFilter)(nil)

// NewInternalSpanFilter wraps delegate.
func NewInternalSpanFilter(delegate sdktrace.SpanExporter, opts ...Option) *InternalSpanFilter {
	o := applyOptions(opts)
	return &InternalSpanFilter{delegate: delegate, metrics: o.metrics}
}

// ExportSpans implements sdktrace.SpanExporter. The delegate's error is
// returned unchanged.
func (f *InternalSpanFilter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	kept := make([]sdktrace.ReadOnlySpan, 0, len(spans))
	for _, s := range spans {
		if IsInternal(s.Attributes()) {
			continue
		}
		kept = append(kept, s)
	}

	f.mu.Lock()
	err := f.delegate.ExportSpans(ctx, kept)
	f.mu.Unlock()

	f.metrics.recordExport(ctx, "traces", len(kept), len(spans)-len(kept))
	return err
}

// Shutdown implements sdktrace.SpanExporter.
func (f *InternalSpanFilter) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delegate.Shutdown(ctx)
}

// ForceFlush flushes the delegate when it supports flushing.
func (f *InternalSpanFilter) ForceFlush(ctx context.Context) error {
	fl, ok := f.delegate.(flusher)
	if !ok {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return fl.ForceFlush(ctx)
}

// InternalLogFilter drops log records that are internal diagnostics: records
// carrying the internal marker and records emitted under an internal
// instrumentation scope.
type InternalLogFilter struct {
	mu       sync.Mutex
	delegate sdklog.Exporter
	scopes   map[string]struct{}
	metrics  *Metrics
}

var _ sdklog.Exporter = (*InternalLogFilter)(nil)

// NewInternalLogFilter wraps delegate. InternalScope is always treated as
// internal; extra scopes may be listed.
func NewInternalLogFilter(delegate sdklog.Exporter, scopes []string, opts ...Option) *InternalLogFilter {
	o := applyOptions(opts)
	set := map[string]struct{}{InternalScope: {}}
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return &InternalLogFilter{delegate: delegate, scopes: set, metrics: o.metrics}
}

// Export implements sdklog.Exporter.
func (f *InternalLogFilter) Export(ctx context.Context, records []sdklog.Record) error {
	kept := make([]sdklog.Record, 0, len(records))
	for i := range records {
		if f.internal(&records[i]) {
			continue
		}
		kept = append(kept, records[i])
	}

	f.mu.Lock()
	err := f.delegate.Export(ctx, kept)
	f.mu.Unlock()

	f.metrics.recordExport(ctx, "logs", len(kept), len(records)-len(kept))
	return err
}

func (f *InternalLogFilter) internal(r *sdklog.Record) bool {
	if _, ok := f.scopes[r.InstrumentationScope().Name]; ok {
		return true
	}
	internal := false
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		if kv.Key == InternalKey {
			internal = kv.Value.Kind() == otellog.KindBool && kv.Value.AsBool()
			return false
		}
		return true
	})
	return internal
}

// Shutdown implements sdklog.Exporter.
func (f *InternalLogFilter) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delegate.Shutdown(ctx)
}

// ForceFlush implements sdklog.Exporter.
func (f *InternalLogFilter) ForceFlush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delegate.ForceFlush(ctx)
}
