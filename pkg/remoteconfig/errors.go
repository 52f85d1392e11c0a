package remoteconfig

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTransport marks network-level failures. The caller decides whether to
// retry.
var ErrTransport = errors.New("remote config transport failure")

// PreviewBytes is how much of a rejected body a DecodeError keeps.
const PreviewBytes = 200

// DecodeReason classifies a DecodeError.
type DecodeReason string

const (
	// ReasonContentType means a 2xx response carried a non-JSON content type.
	ReasonContentType DecodeReason = "content_type"

	// ReasonMalformedBody means the body did not parse as an envelope.
	ReasonMalformedBody DecodeReason = "malformed_body"

	// ReasonBodyTooLarge means the body exceeded the read limit.
	ReasonBodyTooLarge DecodeReason = "body_too_large"
)

// DecodeError is returned when a successful response cannot be used.
type DecodeError struct {
	Reason      DecodeReason
	ContentType string
	// Preview holds the start of the raw body with invalid UTF-8 replaced.
	Preview string
	Err     error
}

func (e *DecodeError) Error() string {
	switch e.Reason {
	case ReasonContentType:
		return fmt.Sprintf("remote config: unexpected content type %q (expected application/json)", e.ContentType)
	case ReasonBodyTooLarge:
		return fmt.Sprintf("remote config: %v", e.Err)
	default:
		return fmt.Sprintf("remote config: malformed body: %v; body preview: %s", e.Err, e.Preview)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func newMalformedBodyError(body []byte, err error) *DecodeError {
	return &DecodeError{
		Reason:  ReasonMalformedBody,
		Preview: preview(body),
		Err:     err,
	}
}

func preview(body []byte) string {
	if len(body) > PreviewBytes {
		body = body[:PreviewBytes]
	}
	return strings.ToValidUTF8(string(body), "\uFFFD")
}
