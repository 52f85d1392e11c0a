// Package telemetry wires the OpenTelemetry providers for beacon.
//
// # Overview
//
// New builds the resource (service plus device attributes), the tracer,
// meter and logger providers, their OTLP exporters, and registers the
// enrichment stages from pkg/enrich in a fixed order. See Pipeline for the
// order. When the session provider accepts observers, a LifecycleLogger is
// registered so session starts and ends become log records.
//
// # Usage
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg), telemetry.Pipeline{
//	    Sessions: sessions,
//	    Screens:  screens,
//	    Device:   device.NewResourceEnricher(device.NewHostIdentity(dir)),
//	})
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  insecure: true
//	  sampling_rate: 1.0
//	  metrics_interval: "15s"
//
// # Error Handling
//
// Telemetry failures do not crash the application. An exporter that cannot
// be created leaves its signal on the no-op provider and Health reports the
// reason.
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry(t, telemetry.Pipeline{Sessions: mgr})
//	_, span := tt.Tracer("test").Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
