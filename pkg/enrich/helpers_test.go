package enrich

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// logRecorder is an in-memory sdklog.Exporter.
type logRecorder struct {
	mu       sync.Mutex
	batches  [][]sdklog.Record
	err      error
	shutdown int
	flushed  int
}

func (r *logRecorder) Export(_ context.Context, records []sdklog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := make([]sdklog.Record, len(records))
	for i := range records {
		batch[i] = records[i].Clone()
	}
	r.batches = append(r.batches, batch)
	return r.err
}

func (r *logRecorder) Shutdown(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown++
	return nil
}

func (r *logRecorder) ForceFlush(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed++
	return nil
}

func (r *logRecorder) Records() []sdklog.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []sdklog.Record
	for _, b := range r.batches {
		all = append(all, b...)
	}
	return all
}

// spanRecorder is an sdktrace.SpanExporter that keeps each batch separately.
type spanRecorder struct {
	mu       sync.Mutex
	batches  [][]string
	err      error
	shutdown int
	flushed  int
}

func (r *spanRecorder) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name())
	}
	r.batches = append(r.batches, names)
	return r.err
}

func (r *spanRecorder) Shutdown(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown++
	return nil
}

func (r *spanRecorder) ForceFlush(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed++
	return nil
}

func logAttr(r sdklog.Record, key string) (string, bool) {
	var (
		val   string
		found bool
	)
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		if kv.Key == key {
			val, found = kv.Value.AsString(), true
			return false
		}
		return true
	})
	return val, found
}

func spanAttr(attrs []attribute.KeyValue, key string) (string, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.AsString(), true
		}
	}
	return "", false
}

// newLogPipeline registers p ahead of a synchronous exporter.
func newLogPipeline(t *testing.T, p sdklog.Processor) (*sdklog.LoggerProvider, *logRecorder) {
	t.Helper()
	rec := &logRecorder{}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(p),
		sdklog.WithProcessor(sdklog.NewSimpleProcessor(rec)),
	)
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })
	return lp, rec
}

func emit(lp *sdklog.LoggerProvider, body string, attrs ...otellog.KeyValue) {
	var r otellog.Record
	r.SetBody(otellog.StringValue(body))
	r.AddAttributes(attrs...)
	lp.Logger("test").Emit(context.Background(), r)
}

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

// counterValue sums an int64 counter's data points matching attr=value.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name, attr, value string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key(attr)); ok && v.AsString() == value {
					total += dp.Value
				}
			}
		}
	}
	return total
}
