// Package logging provides structured logging for timetabled.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same handler, level and default fields.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("timetable armed", "timetable", "porch", "at", next)
//
// *Logger satisfies the narrow Logger interfaces declared by the timetable,
// mqtt and config packages, so it is passed to them directly.
//
// Never log secrets, tokens or passwords.
package logging
