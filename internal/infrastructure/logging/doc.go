// Package logging provides structured logging for the device registry.
//
// It wraps log/slog so every component logs through the same handler
// with the same default attributes (service, version).
//
// Configuration lives under the logging key of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("device registered", "id", id, "owner", owner)
//
// Device identifiers and owners are fine to log. Never log JWT secrets,
// bearer tokens, or broker passwords.
package logging
