package logging

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
)

// NewLogger builds the process logger. Debug level switches to the
// human-readable development encoder.
func NewLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "parse log level %q", cfg.LogLevel)
	}

	zc := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	l, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build zap logger")
	}
	return l.Sugar(), nil
}
