package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Service is attached to every entry so logs from several deployments can be
// told apart after aggregation.
const Service = "dzibridge"

// New creates a new zap logger. Development loggers write coloured console
// output at debug level; production loggers write JSON at info level.
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config

	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.InitialFields = map[string]any{"service": Service}

	return cfg.Build()
}

// Must creates a logger or panics
func Must(development bool) *zap.Logger {
	log, err := New(development)
	if err != nil {
		panic(err)
	}
	return log
}
