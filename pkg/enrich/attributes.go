// Package enrich contains the stages that decorate and filter telemetry
// before it leaves the process.
//
// Enrichers run synchronously when a span starts or a log record is emitted
// and only add attributes that are not already present. Filters wrap the
// exporters and drop records flagged as internal diagnostics.
//
// Stage order is fixed by the caller when registering processors with the
// SDK providers; see internal/telemetry for the wiring used by beacon.
package enrich

import (
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys written by the enrichers.
const (
	SessionIDKey         = "session.id"
	SessionPreviousIDKey = "session.previous_id"
	ScreenNameKey        = "screen.name"

	// InternalKey flags a record as an internal diagnostic. It exists only
	// for filtering and never leaves the process.
	InternalKey = "beacon.internal"
)

// UnknownScreen is recorded when no screen is visible.
const UnknownScreen = "unknown"

// InternalScope is the instrumentation scope used by beacon's own logger.
// Log records emitted under it are dropped by InternalLogFilter.
const InternalScope = "github.com/fyrsmithlabs/beacon"

// Internal returns the internal marker attribute.
func Internal() attribute.KeyValue {
	return attribute.Bool(InternalKey, true)
}

// InternalSpan is a span start option that marks the span as internal.
func InternalSpan() trace.SpanStartOption {
	return trace.WithAttributes(Internal())
}

// MarkInternal flags a live span as internal.
func MarkInternal(span trace.Span) {
	span.SetAttributes(Internal())
}

// IsInternal reports whether attrs carry a true internal marker.
func IsInternal(attrs []attribute.KeyValue) bool {
	for _, kv := range attrs {
		if kv.Key == InternalKey {
			return kv.Value.Type() == attribute.BOOL && kv.Value.AsBool()
		}
	}
	return false
}

// InternalLogAttr returns the internal marker for log records.
func InternalLogAttr() otellog.KeyValue {
	return otellog.Bool(InternalKey, true)
}

func hasNonEmptyString(attrs []attribute.KeyValue, key attribute.Key) bool {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value.Type() == attribute.STRING && kv.Value.AsString() != ""
		}
	}
	return false
}
