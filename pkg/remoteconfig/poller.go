package remoteconfig

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/beacon/pkg/enrich"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/beacon/remoteconfig")

// Poller defaults.
const (
	DefaultInterval       = 5 * time.Minute
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 5 * time.Minute
	DefaultTriggerRate    = rate.Limit(1.0 / 10)
	DefaultTriggerBurst   = 1
)

// PollerConfig controls refresh cadence.
type PollerConfig struct {
	// Interval between successful refreshes.
	Interval time.Duration
	// Timeout bounds a single fetch. Zero means no per-fetch timeout.
	Timeout time.Duration
	// InitialBackoff is the first retry delay after a failed fetch.
	InitialBackoff time.Duration
	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
	// TriggerRate and TriggerBurst throttle Trigger.
	TriggerRate  rate.Limit
	TriggerBurst int
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.TriggerRate <= 0 {
		c.TriggerRate = DefaultTriggerRate
	}
	if c.TriggerBurst <= 0 {
		c.TriggerBurst = DefaultTriggerBurst
	}
	return c
}

// Poller refreshes a Store from a Source on an interval. Failed fetches are
// retried with capped exponential backoff; "no config" keeps the previous
// snapshot.
type Poller[T any] struct {
	source  Source[T]
	store   *Store[T]
	cfg     PollerConfig
	limiter *rate.Limiter
	trigger chan struct{}
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

type pollerOptions struct {
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

// PollerOption configures a Poller.
type PollerOption func(*pollerOptions)

// WithLogger sets the poller's logger.
func WithLogger(l *zap.Logger) PollerOption {
	return func(o *pollerOptions) { o.logger = l }
}

// WithMetrics sets the poller's metrics. Without it, DefaultMetrics is used.
func WithMetrics(m *Metrics) PollerOption {
	return func(o *pollerOptions) { o.metrics = m }
}

// WithClock overrides the time source used for snapshot timestamps.
func WithClock(now func() time.Time) PollerOption {
	return func(o *pollerOptions) { o.now = now }
}

// NewPoller creates a poller writing into store.
func NewPoller[T any](source Source[T], store *Store[T], cfg PollerConfig, opts ...PollerOption) *Poller[T] {
	o := pollerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.metrics == nil {
		o.metrics = DefaultMetrics()
	}
	if o.now == nil {
		o.now = time.Now
	}
	cfg = cfg.withDefaults()
	return &Poller[T]{
		source:  source,
		store:   store,
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.TriggerRate, cfg.TriggerBurst),
		trigger: make(chan struct{}, 1),
		logger:  o.logger.With(zap.String("source", source.Name())),
		metrics: o.metrics,
		now:     o.now,
	}
}

// Store returns the store the poller writes into.
func (p *Poller[T]) Store() *Store[T] {
	return p.store
}

// Run refreshes immediately and then on every interval until ctx is done.
// It returns nil once ctx is cancelled.
func (p *Poller[T]) Run(ctx context.Context) error {
	p.logger.Info("Remote config poller started",
		zap.Duration("interval", p.cfg.Interval))

	delay := time.Duration(0)
	failures := 0
	retry := p.newBackOff()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Remote config poller stopped")
			return nil
		case <-timer.C:
		case <-p.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			failures++
			delay = retry.NextBackOff()
			p.logger.Debug("Scheduling remote config retry",
				zap.Int("failures", failures),
				zap.Duration("delay", delay))
		} else {
			failures = 0
			retry.Reset()
			delay = p.cfg.Interval
		}
		timer.Reset(delay)
	}
}

// Trigger requests an early refresh. It returns false when the request was
// throttled. Requests made while one is pending coalesce.
func (p *Poller[T]) Trigger() bool {
	if !p.limiter.Allow() {
		p.metrics.TriggersTotal.WithLabelValues("throttled").Inc()
		return false
	}
	p.metrics.TriggersTotal.WithLabelValues("accepted").Inc()
	select {
	case p.trigger <- struct{}{}:
	default:
	}
	return true
}

// Refresh performs one fetch and applies its outcome to the store. Fetch
// errors are returned after being logged and counted.
func (p *Poller[T]) Refresh(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "remoteconfig.refresh", enrich.InternalSpan())
	defer span.End()

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	items, ok, err := p.source.Fetch(ctx)
	p.metrics.FetchDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		outcome := classify(err)
		p.metrics.FetchesTotal.WithLabelValues(outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		p.logger.Warn("Remote config fetch failed",
			zap.String("outcome", outcome),
			zap.Error(err))
		return err

	case !ok:
		p.metrics.FetchesTotal.WithLabelValues(OutcomeNoConfig).Inc()
		span.SetAttributes(attribute.String("remoteconfig.outcome", OutcomeNoConfig))
		p.logger.Debug("No usable remote config, keeping previous snapshot")
		return nil
	}

	snap := Snapshot[T]{Items: items, FetchedAt: p.now(), Source: p.source.Name()}
	p.store.Replace(snap)

	p.metrics.FetchesTotal.WithLabelValues(OutcomeUpdated).Inc()
	p.metrics.Items.Set(float64(len(items)))
	p.metrics.LastSuccess.Set(float64(snap.FetchedAt.Unix()))
	span.SetAttributes(
		attribute.String("remoteconfig.outcome", OutcomeUpdated),
		attribute.Int("remoteconfig.items", len(items)),
	)
	p.logger.Info("Remote config updated", zap.Int("items", len(items)))
	return nil
}

// newBackOff doubles the retry delay from InitialBackoff up to MaxBackoff
// without jitter.
func (p *Poller[T]) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialBackoff
	b.MaxInterval = p.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

func classify(err error) string {
	var decodeErr *DecodeError
	switch {
	case errors.As(err, &decodeErr):
		return OutcomeDecodeError
	case errors.Is(err, ErrTransport):
		return OutcomeTransportError
	default:
		return OutcomeError
	}
}
