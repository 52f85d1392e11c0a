package remoteconfig

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/beacon/pkg/enrich"
)

// DefaultMaxBodyBytes bounds how much of a response body is read.
const DefaultMaxBodyBytes int64 = 1 << 20

// HTTPSource fetches the envelope with a single GET per call.
type HTTPSource[T any] struct {
	url     func() string
	client  *http.Client
	maxBody int64
}

var _ Source[InteractionConfig] = (*HTTPSource[InteractionConfig])(nil)

type httpOptions struct {
	client         *http.Client
	maxBody        int64
	tracerProvider trace.TracerProvider
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*httpOptions)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(o *httpOptions) { o.client = c }
}

// WithMaxBodyBytes sets the body read limit.
func WithMaxBodyBytes(n int64) HTTPOption {
	return func(o *httpOptions) {
		if n > 0 {
			o.maxBody = n
		}
	}
}

// WithTracerProvider sets the provider used by the default client's
// instrumentation.
func WithTracerProvider(tp trace.TracerProvider) HTTPOption {
	return func(o *httpOptions) { o.tracerProvider = tp }
}

// NewHTTPSource creates a source that resolves its endpoint through urlFn on
// every fetch.
//
// The default client is instrumented with otelhttp and its spans carry the
// internal marker, so they are dropped before export.
func NewHTTPSource[T any](urlFn func() string, opts ...HTTPOption) *HTTPSource[T] {
	o := httpOptions{maxBody: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = NewInstrumentedClient(o.tracerProvider)
	}
	if urlFn == nil {
		urlFn = func() string { return "" }
	}
	return &HTTPSource[T]{url: urlFn, client: o.client, maxBody: o.maxBody}
}

// NewInstrumentedClient returns an HTTP client whose spans are marked
// internal. A nil tp uses the global provider.
func NewInstrumentedClient(tp trace.TracerProvider) *http.Client {
	opts := []otelhttp.Option{otelhttp.WithSpanOptions(enrich.InternalSpan())}
	if tp != nil {
		opts = append(opts, otelhttp.WithTracerProvider(tp))
	}
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport, opts...)}
}

// Name implements Source.
func (s *HTTPSource[T]) Name() string {
	return "http"
}

// Fetch implements Source.
func (s *HTTPSource[T]) Fetch(ctx context.Context) ([]T, bool, error) {
	target, ok := parseEndpoint(s.url())
	if !ok {
		return nil, false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if resp == nil {
		return nil, false, nil
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, s.maxBody))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false, nil
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !isJSONContentType(ct) {
		return nil, false, &DecodeError{Reason: ReasonContentType, ContentType: ct}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading body: %w", ErrTransport, err)
	}
	if int64(len(body)) > s.maxBody {
		return nil, false, &DecodeError{
			Reason:  ReasonBodyTooLarge,
			Preview: preview(body),
			Err:     fmt.Errorf("body exceeds %d bytes", s.maxBody),
		}
	}

	return decodeEnvelope[T](body)
}

func parseEndpoint(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

func isJSONContentType(ct string) bool {
	ct = strings.ToLower(ct)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "text/json")
}
