package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/beacon/pkg/enrich"
)

// Telemetry owns the tracer, meter and logger providers of the process and
// the enrichment pipeline registered on them.
//
// Telemetry failures do not crash the application; they degrade gracefully
// to the otel no-op providers.
type Telemetry struct {
	config *Config

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider
	metrics        *enrich.Metrics

	// Health tracking
	healthy  atomic.Bool
	degraded atomic.Bool
	mu       sync.Mutex
	reasons  []string
}

// New creates a Telemetry instance and registers the pipeline stages.
//
// If telemetry is disabled in config, returns a no-op instance. Exporter
// creation errors do not fail; the affected signal stays no-op and the
// instance reports itself degraded.
func New(ctx context.Context, cfg *Config, p Pipeline, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: cfg}
	t.healthy.Store(true)

	if !cfg.Enabled {
		return t, nil
	}

	o := newOptions(opts)
	p.InternalScopes = append(append([]string(nil), cfg.InternalScopes...), p.InternalScopes...)

	res, err := newResource(cfg, p.Device)
	if err != nil {
		t.setDegraded("resource creation failed: %v", err)
		return t, nil
	}

	// Meter provider first, so the pipeline metrics use it.
	reader := o.metricReader
	if reader == nil {
		reader, err = newMetricReader(ctx, cfg)
	}
	if err != nil {
		t.setDegraded("meter provider failed: %v", err)
	} else {
		t.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		t.metrics, err = enrich.NewMetrics(t.meterProvider.Meter(enrich.InstrumentationName))
		if err != nil {
			t.setDegraded("pipeline metrics failed: %v", err)
		}
	}

	err = nil
	spanExp := o.spanExporter
	if spanExp == nil {
		spanExp, err = newSpanExporter(ctx, cfg)
	}
	if err != nil {
		t.setDegraded("tracer provider failed: %v", err)
	} else {
		tpOpts := []trace.TracerProviderOption{
			trace.WithResource(res),
			trace.WithSampler(newSampler(cfg.SamplingRate)),
		}
		for _, sp := range p.spanProcessors(spanExp, o.syncExport, t.metrics) {
			tpOpts = append(tpOpts, trace.WithSpanProcessor(sp))
		}
		t.tracerProvider = trace.NewTracerProvider(tpOpts...)
	}

	err = nil
	logExp := o.logExporter
	if logExp == nil {
		logExp, err = newLogExporter(ctx, cfg)
	}
	if err != nil {
		t.setDegraded("logger provider failed: %v", err)
	} else {
		lpOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
		for _, lp := range p.logProcessors(logExp, o.syncExport, t.metrics) {
			lpOpts = append(lpOpts, sdklog.WithProcessor(lp))
		}
		t.loggerProvider = sdklog.NewLoggerProvider(lpOpts...)

		if obs, ok := p.sessions().(observable); ok {
			obs.AddObserver(NewLifecycleLogger(t.loggerProvider))
		}
	}

	if o.setGlobals {
		t.setGlobals()
	}

	return t, nil
}

func (t *Telemetry) setGlobals() {
	if t.tracerProvider != nil {
		otel.SetTracerProvider(t.tracerProvider)
	}
	if t.meterProvider != nil {
		otel.SetMeterProvider(t.meterProvider)
	}
	if t.loggerProvider != nil {
		global.SetLoggerProvider(t.loggerProvider)
	}

	// W3C Trace Context
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// Tracer returns a tracer for the given instrumentation scope.
//
// Returns the global tracer if telemetry is disabled or degraded.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// TracerProvider returns the tracer provider, or the global one if
// telemetry is disabled or degraded.
func (t *Telemetry) TracerProvider() oteltrace.TracerProvider {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider()
	}
	return t.tracerProvider
}

// Meter returns a meter for the given instrumentation scope.
//
// Returns the global meter if telemetry is disabled or degraded.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// LoggerProvider returns the log provider for the logging bridge.
//
// Returns nil if telemetry is disabled or degraded.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil || t.loggerProvider == nil {
		return nil
	}
	return t.loggerProvider
}

// Shutdown flushes and shuts down all providers. Uses the configured
// shutdown timeout when ctx has no deadline.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok && t.config != nil && t.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownTimeout)
		defer cancel()
	}

	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}

	if t.loggerProvider != nil {
		if err := t.loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider shutdown: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	t.healthy.Store(false)
	return errors.Join(errs...)
}

// ForceFlush immediately exports all pending telemetry.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace flush: %w", err))
		}
	}

	if t.loggerProvider != nil {
		if err := t.loggerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log flush: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter flush: %w", err))
		}
	}

	return errors.Join(errs...)
}

// HealthStatus is the current telemetry health.
type HealthStatus struct {
	Healthy  bool     `json:"healthy"`
	Degraded bool     `json:"degraded"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Health returns the current telemetry health status.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Healthy: false, Degraded: true}
	}
	t.mu.Lock()
	reasons := append([]string(nil), t.reasons...)
	t.mu.Unlock()
	return HealthStatus{
		Healthy:  t.healthy.Load(),
		Degraded: t.degraded.Load(),
		Reasons:  reasons,
	}
}

// IsEnabled returns true if telemetry is enabled and healthy.
func (t *Telemetry) IsEnabled() bool {
	if t == nil || t.config == nil {
		return false
	}
	return t.config.Enabled && t.healthy.Load()
}

// setDegraded marks telemetry as degraded and keeps the reason for Health.
func (t *Telemetry) setDegraded(format string, args ...interface{}) {
	t.degraded.Store(true)
	t.mu.Lock()
	t.reasons = append(t.reasons, fmt.Sprintf(format, args...))
	t.mu.Unlock()
}
