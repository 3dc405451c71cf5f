// Package logging provides structured logging for Room Sync Core.
//
// Loggers wrap log/slog. Every entry carries service and version fields,
// and components add their own with Component:
//
//	logger := logging.New(cfg.Logging, version)
//	mqttLog := logger.Component("mqtt")
//	mqttLog.Info("connected", "broker", url)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// The level is shared by a logger and everything derived from it, and can
// be changed at runtime with SetLevel.
//
// # Secrets
//
// Attributes named password, token or secret are written as [REDACTED]
// whatever their value. Other keys are written verbatim, so do not put
// credentials in messages or under other names.
package logging
