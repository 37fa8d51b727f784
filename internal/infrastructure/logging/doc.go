// Package logging provides structured logging for readingd on top of log/slog.
//
// Every entry carries service and version fields. Output is JSON by default
// and text when logging.format is "text".
//
// Components outside main take a narrow Logger interface (Debug, Info, Warn,
// Error) and default to a no-op, so *Logger, *slog.Logger and test doubles
// all fit.
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting", "addr", cfg.Addr())
//	logger.Error("merge failed", "device_id", id, "error", err)
//
// Never log request bodies, credentials or DSNs.
package logging
