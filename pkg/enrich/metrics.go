package enrich

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the meter name for pipeline metrics.
const InstrumentationName = "github.com/fyrsmithlabs/beacon/pkg/enrich"

// Outcomes recorded for each log record seen by SessionProcessor.
const (
	outcomeStamped   = "stamped"
	outcomePreserved = "preserved"
	outcomeLifecycle = "lifecycle"
)

// Metrics counts what the pipeline stages did. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	exported metric.Int64Counter
	dropped  metric.Int64Counter
	enriched metric.Int64Counter
}

// NewMetrics creates pipeline metrics. If meter is nil, uses the global
// meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.exported, err = meter.Int64Counter(
		"beacon.pipeline.exported",
		metric.WithDescription("Records forwarded to the exporter after filtering"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	m.dropped, err = meter.Int64Counter(
		"beacon.pipeline.dropped",
		metric.WithDescription("Internal records removed before export"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	m.enriched, err = meter.Int64Counter(
		"beacon.pipeline.session_enrichment",
		metric.WithDescription("Log records seen by the session enricher, by outcome"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) recordExport(ctx context.Context, signal string, kept, dropped int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("signal", signal))
	if kept > 0 {
		m.exported.Add(ctx, int64(kept), attrs)
	}
	if dropped > 0 {
		m.dropped.Add(ctx, int64(dropped), attrs)
	}
}

func (m *Metrics) recordEnrichment(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.enriched.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Option configures enrichers and filters.
type Option func(*options)

type options struct {
	metrics *Metrics
}

// WithMetrics records stage activity on m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
