package telemetry

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"

	"github.com/fyrsmithlabs/beacon/pkg/enrich"
	"github.com/fyrsmithlabs/beacon/pkg/session"
)

// LifecycleScope is the instrumentation scope of session lifecycle records.
// It differs from enrich.InternalScope so the records are exported.
const LifecycleScope = "github.com/fyrsmithlabs/beacon/lifecycle"

// LifecycleLogger emits a log record for every session start and end.
//
// Each record carries the id of the session it describes. The session
// enricher leaves these records alone, so an end record keeps the ended id
// even though a newer session is already current.
type LifecycleLogger struct {
	logger otellog.Logger
	now    func() time.Time
}

var _ session.Observer = (*LifecycleLogger)(nil)

// NewLifecycleLogger creates a lifecycle logger on lp. A nil lp uses the
// global logger provider.
func NewLifecycleLogger(lp otellog.LoggerProvider) *LifecycleLogger {
	if lp == nil {
		lp = global.GetLoggerProvider()
	}
	return &LifecycleLogger{
		logger: lp.Logger(LifecycleScope),
		now:    time.Now,
	}
}

// SessionStarted implements session.Observer.
func (l *LifecycleLogger) SessionStarted(s session.Session) {
	attrs := []otellog.KeyValue{otellog.String(enrich.SessionIDKey, s.ID)}
	if s.HasPrevious() {
		attrs = append(attrs, otellog.String(enrich.SessionPreviousIDKey, s.PreviousID))
	}
	l.emit(session.StartBody, attrs)
}

// SessionEnded implements session.Observer.
func (l *LifecycleLogger) SessionEnded(s session.Session) {
	l.emit(session.EndBody, []otellog.KeyValue{otellog.String(enrich.SessionIDKey, s.ID)})
}

func (l *LifecycleLogger) emit(body string, attrs []otellog.KeyValue) {
	var r otellog.Record
	now := l.now()
	r.SetTimestamp(now)
	r.SetObservedTimestamp(now)
	r.SetSeverity(otellog.SeverityInfo)
	r.SetSeverityText("INFO")
	r.SetBody(otellog.StringValue(body))
	r.AddAttributes(attrs...)
	l.logger.Emit(context.Background(), r)
}
