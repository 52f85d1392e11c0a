// Package remoteconfig fetches and validates the small remote document that
// gates optional instrumentation behavior.
//
// A fetch has three outcomes: a parsed list (possibly empty), "no config"
// (ok == false with a nil error), or an error worth surfacing. Sources never
// retry; the Poller owns cadence and backoff.
package remoteconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// InteractionConfig is one opaque entry of the remote document. Its fields
// belong to the consumer.
type InteractionConfig = json.RawMessage

// ErrorDescriptor is a failure reported by the server inside the envelope.
type ErrorDescriptor struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// UnmarshalJSON accepts the code as either a string or a number.
func (e *ErrorDescriptor) UnmarshalJSON(b []byte) error {
	var raw struct {
		Message string          `json:"message"`
		Code    json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Message = raw.Message
	e.Code = ""

	code := bytes.TrimSpace(raw.Code)
	switch {
	case len(code) == 0, bytes.Equal(code, []byte("null")):
	case code[0] == '"':
		if err := json.Unmarshal(code, &e.Code); err != nil {
			return fmt.Errorf("error code: %w", err)
		}
	default:
		n, err := strconv.ParseFloat(string(code), 64)
		if err != nil {
			return fmt.Errorf("error code: %w", err)
		}
		e.Code = strconv.FormatFloat(n, 'f', -1, 64)
	}
	return nil
}

// Envelope is the wire shape `{"data": ..., "error": ...}`. A nil Data means
// the field was absent or null.
type Envelope[T any] struct {
	Data  *T               `json:"data"`
	Error *ErrorDescriptor `json:"error"`
}

// Result collapses the envelope into the fetch outcome. A server error wins
// over data; an envelope with neither is "no config".
func (e Envelope[T]) Result() (T, bool) {
	var zero T
	if e.Error != nil || e.Data == nil {
		return zero, false
	}
	return *e.Data, true
}

// Source yields the current list of config items.
type Source[T any] interface {
	Fetch(ctx context.Context) (items []T, ok bool, err error)
	Name() string
}

// decodeEnvelope parses body as Envelope[[]T].
func decodeEnvelope[T any](body []byte) ([]T, bool, error) {
	var env Envelope[[]T]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false, newMalformedBodyError(body, err)
	}
	items, ok := env.Result()
	if !ok {
		return nil, false, nil
	}
	if items == nil {
		items = []T{}
	}
	return items, true, nil
}
