package logger

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger initializes the global zap logger. Logs go to stderr so
// they never interleave with a child's inherited stdout; logPath, when
// set, adds a file sink.
func InitLogger(debug bool, logPath string) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	cfg.OutputPaths = []string{"stderr"}
	if logPath != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, logPath)
	}

	logger, err := cfg.Build()
	if err != nil {
		return errors.Wrap(err, "failed to build logger")
	}

	zap.ReplaceGlobals(logger)
	return nil
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = zap.L().Sync()
}
