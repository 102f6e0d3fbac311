// Package logging provides structured logging for remapd.
//
// It wraps log/slog so every component logs with the same handler,
// level filter and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file:/var/log/remapd.log
//
// The level can be changed at runtime with SetLevel; the API exposes it at
// /api/v1/system/log-level.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("profile activated", "profile", p.Title())
//	logger.Error("device write failed", "error", err)
//
// Domain packages do not import this package directly; they accept a small
// Logger interface that *Logger satisfies.
package logging
