package logutil

import (
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap/zapcore"
)

// DefaultFileMaxSize is the size in MB at which a log file is rotated.
const DefaultFileMaxSize = 300

// Config configures the global logger.
type Config struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// File, if set, receives the logs instead of stderr.
	File string
	// FileMaxSize is the rotation size in MB. Zero means DefaultFileMaxSize.
	FileMaxSize int
	// FileMaxBackups is the number of rotated files kept. Zero keeps all.
	FileMaxBackups int
}

// InitLogger replaces the global logger according to cfg.
func InitLogger(cfg *Config) error {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return errors.Annotatef(err, "invalid log level %q", level)
	}

	logCfg := &log.Config{Level: level}
	if cfg.File != "" {
		maxSize := cfg.FileMaxSize
		if maxSize == 0 {
			maxSize = DefaultFileMaxSize
		}
		logCfg.File = log.FileLogConfig{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: cfg.FileMaxBackups,
		}
	}

	lg, props, err := log.InitLogger(logCfg)
	if err != nil {
		return errors.Trace(err)
	}
	log.ReplaceGlobals(lg, props)
	return nil
}
