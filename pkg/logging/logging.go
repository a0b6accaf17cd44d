// Package logging provides a unified logging configuration and
// initialization for the relay backend.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config contains logging configuration.
// This is designed to be embedded or reused across different config structures.
type Config struct {
	// Level is the minimum log level: debug, info, warn, error
	Level string `yaml:"level" envconfig:"LEVEL"`
	// Format is the output format: json or text
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
	}
}

// NewLogger creates a new zap logger based on the configuration
func NewLogger(cfg Config) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	zapCfg.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Level))

	return zapCfg.Build()
}

// ParseLevel converts a string level to zapcore.Level
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
