// Package logging provides structured logging for the Gray Logic Hub.
//
// This package wraps Go's standard log/slog package so every component
// (transports, session registry, dispatcher, plugin runtime) logs with the
// same default fields.
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
//	logger := logging.New(cfg.Logging, version)
//	registry.SetLogger(logger.Component("session"))
//
// # Security
//
// Never log session tokens, password hashes, or the cloud relay token.
// Log a token's id (jti) instead.
package logging
