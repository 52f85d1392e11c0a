// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// The package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Stdout output with secret redaction
//   - Optional OpenTelemetry output through the otelzap bridge
//   - Automatic context fields (trace_id, span_id, session.id)
//   - Sampling below error level
//
// # Usage
//
//	cfg, err := logging.FromAppConfig(appCfg)
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg, loggerProvider)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, sess.ID)
//	logger.Info(ctx, "Remote config updated", zap.Int("items", n))
//
// # Internal Scope
//
// Bridged entries are emitted under enrich.InternalScope. The export
// pipeline drops that scope, so beacon's own diagnostics stay local even
// when the OpenTelemetry output is enabled.
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
package logging
