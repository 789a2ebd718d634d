// Package logging provides structured logging for the wattfleet daemon
// and its worker processes.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting supervisor", "devices", 12)
//	logger.Error("failed to connect", "error", err)
//
// Worker processes log to stdout/stderr; the supervisor captures both
// streams and folds them into its own log output, so one journal carries
// the whole fleet.
//
// # Security
//
// Never log broker passwords or API tokens. Log identifying prefixes
// instead when a value must be traceable.
package logging
