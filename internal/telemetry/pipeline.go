package telemetry

import (
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fyrsmithlabs/beacon/pkg/device"
	"github.com/fyrsmithlabs/beacon/pkg/enrich"
	"github.com/fyrsmithlabs/beacon/pkg/screen"
	"github.com/fyrsmithlabs/beacon/pkg/session"
)

// Pipeline holds the state read by the enrichment stages.
//
// Stages are registered in a fixed order. Spans:
//
//  1. enrich.ScreenProcessor stamps screen.name at start
//  2. enrich.SessionSpanProcessor stamps session.id at start
//  3. the exporting processor, whose exporter is wrapped by
//     enrich.InternalSpanFilter
//
// Logs:
//
//  1. enrich.SessionProcessor stamps session attributes
//  2. the exporting processor, whose exporter is wrapped by
//     enrich.InternalLogFilter
//
// Device attributes are attached once, on the resource.
type Pipeline struct {
	// Sessions defaults to session.Default().
	Sessions session.Provider
	Screens  screen.Provider
	Device   *device.ResourceEnricher

	// InternalScopes are log scopes dropped in addition to
	// enrich.InternalScope.
	InternalScopes []string
}

// sessions returns the configured provider or the process default.
func (p Pipeline) sessions() session.Provider {
	if p.Sessions == nil {
		return session.Default()
	}
	return p.Sessions
}

// spanProcessors returns the span stages in registration order.
func (p Pipeline) spanProcessors(exp sdktrace.SpanExporter, sync bool, m *enrich.Metrics) []sdktrace.SpanProcessor {
	filtered := enrich.NewInternalSpanFilter(exp, enrich.WithMetrics(m))

	var export sdktrace.SpanProcessor
	if sync {
		export = sdktrace.NewSimpleSpanProcessor(filtered)
	} else {
		export = sdktrace.NewBatchSpanProcessor(filtered)
	}

	return []sdktrace.SpanProcessor{
		enrich.NewScreenProcessor(p.Screens),
		enrich.NewSessionSpanProcessor(p.sessions()),
		export,
	}
}

// logProcessors returns the log stages in registration order.
func (p Pipeline) logProcessors(exp sdklog.Exporter, sync bool, m *enrich.Metrics) []sdklog.Processor {
	filtered := enrich.NewInternalLogFilter(exp, p.InternalScopes, enrich.WithMetrics(m))

	var export sdklog.Processor
	if sync {
		export = sdklog.NewSimpleProcessor(filtered)
	} else {
		export = sdklog.NewBatchProcessor(filtered)
	}

	return []sdklog.Processor{
		enrich.NewSessionProcessor(p.sessions(), enrich.WithMetrics(m)),
		export,
	}
}

// observable is implemented by session providers that report transitions,
// such as *session.Manager.
type observable interface {
	AddObserver(session.Observer)
}
