// Package logging builds the zap loggers used by the hub, the validator and the CLI.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Supported output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New builds a logger writing to stderr at the given level.
// An empty level means info, an empty format means JSON.
func New(level, format string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	var cfg zap.Config
	switch format {
	case FormatJSON, "":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case FormatConsole:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q (expected %q or %q)", format, FormatJSON, FormatConsole)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil

	return cfg.Build()
}

// Event logs a structured domain event at info level.
// Every event carries an event_type field so log pipelines can filter on it.
func Event(logger *zap.Logger, eventType string, fields ...zap.Field) {
	logger.Info(eventType, append([]zap.Field{zap.String("event_type", eventType)}, fields...)...)
}

// DebugEvent is Event at debug level, used for dropped frames and failed authentication.
func DebugEvent(logger *zap.Logger, eventType string, fields ...zap.Field) {
	logger.Debug(eventType, append([]zap.Field{zap.String("event_type", eventType)}, fields...)...)
}
