// Package logger - zap logger construction shared by the command line tools.
package logger

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger.
//
// Production loggers write JSON at info level; development loggers write
// human-readable console output at debug level. Both use ISO 8601 timestamps
// under the "timestamp" key.
//
// Arguments:
//   - development: Whether to build a development logger.
//
// Returns:
//   - *zap.Logger: The logger.
//   - error: An error if the logger cannot be built.
func New(development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}
