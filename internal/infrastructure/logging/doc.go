// Package logging provides structured logging for the relay agent.
//
// It wraps log/slog so every component emits records with the same
// default fields (service, version) and level filtering.
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
//	logger.Info("actuation", "state", "High", "topic", topic)
//
// Attributes named "password" or "token" are always written as [REDACTED].
package logging
