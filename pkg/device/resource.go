// Package device describes the device a process runs on as OpenTelemetry
// resource attributes.
package device

import (
	"runtime"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// AppleManufacturer is reported as device.manufacturer on Apple platforms.
const AppleManufacturer = "Apple"

// IdentitySource supplies device identity. Either value may be unknown.
type IdentitySource interface {
	DeviceID() (string, bool)
	Model() (string, bool)
}

// FriendlyNameSource is implemented by sources that can map the raw model
// identifier to a marketing name (e.g. "iPhone15,2" to "iPhone 14 Pro").
type FriendlyNameSource interface {
	FriendlyModelName() (string, bool)
}

// ManufacturerSource is implemented by sources that know the manufacturer on
// platforms without a fixed one.
type ManufacturerSource interface {
	Manufacturer() (string, bool)
}

// ResourceEnricher builds the static device attribute set once per process.
type ResourceEnricher struct {
	source IdentitySource
	goos   string

	once  sync.Once
	attrs []attribute.KeyValue
}

// NewResourceEnricher creates an enricher for the running platform.
func NewResourceEnricher(source IdentitySource) *ResourceEnricher {
	return newResourceEnricher(source, runtime.GOOS)
}

func newResourceEnricher(source IdentitySource, goos string) *ResourceEnricher {
	return &ResourceEnricher{source: source, goos: goos}
}

// Attributes returns the device attributes. The set is computed on first call
// and reused afterwards.
func (e *ResourceEnricher) Attributes() []attribute.KeyValue {
	e.once.Do(func() {
		e.attrs = e.build()
	})
	return append([]attribute.KeyValue(nil), e.attrs...)
}

// Resource returns the device attributes as a resource, ready to be merged
// with the service resource.
func (e *ResourceEnricher) Resource() *resource.Resource {
	return resource.NewWithAttributes(semconv.SchemaURL, e.Attributes()...)
}

func (e *ResourceEnricher) build() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if e.source == nil {
		return attrs
	}

	if id, ok := e.source.DeviceID(); ok && id != "" {
		attrs = append(attrs, semconv.DeviceID(id))
	}

	model, hasModel := e.source.Model()
	hasModel = hasModel && model != ""
	if hasModel {
		attrs = append(attrs, semconv.DeviceModelIdentifier(model))
	}

	if m := e.manufacturer(); m != "" {
		attrs = append(attrs, semconv.DeviceManufacturer(m))
	}

	if name := e.friendlyName(model, hasModel); name != "" {
		attrs = append(attrs, semconv.DeviceModelName(name))
	}

	return attrs
}

func (e *ResourceEnricher) manufacturer() string {
	switch e.goos {
	case "darwin", "ios":
		return AppleManufacturer
	}
	if ms, ok := e.source.(ManufacturerSource); ok {
		if m, ok := ms.Manufacturer(); ok {
			return m
		}
	}
	return ""
}

// friendlyName falls back to the raw model when no better name is known,
// which is the normal case on desktop platforms.
func (e *ResourceEnricher) friendlyName(model string, hasModel bool) string {
	if fs, ok := e.source.(FriendlyNameSource); ok {
		if name, ok := fs.FriendlyModelName(); ok && name != "" {
			return name
		}
	}
	if hasModel {
		return model
	}
	return ""
}
