package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mms-notify/app/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Build the process logger, writing to stdout and to a size rotated log
// file. The returned func flushes and closes the file, call it on exit.
// If the log file can't be created the logger falls back to stdout only.
func NewLogger(cfg config.LogConfig) (*zap.SugaredLogger, func(), error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	})

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}

	var rotator *lumberjack.Logger
	fileErr := ensureLogDir(cfg.File)
	if fileErr == nil {
		rotator = &lumberjack.Logger{ // change file at MaxSizeMB, keep Backups old files
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB, // in MB
			MaxBackups: cfg.Backups,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	logger := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).Sugar()

	if fileErr != nil {
		logger.Errorf("logger : unable to create log file %s, %v", cfg.File, fileErr)
		logger.Warnf("logger : only logging to stdout")
	}

	cleanup := func() {
		_ = logger.Sync()
		if rotator != nil {
			rotator.Close()
		}
	}

	logger.Infof("logger : === logging started ===")
	logger.Infof("logger : level %s", level.CapitalString())
	logger.Infof("logger : file %s", cfg.File)
	logger.Infof("logger : timestamp %s", time.Now().Format("2006-01-02 15:04:05"))

	return logger, cleanup, nil
}

// parse a LOG_LEVEL value. Accepts WARNING and CRITICAL
// alongside zaps own level names.
func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WARNING":
		return zapcore.WarnLevel, nil
	case "CRITICAL":
		return zapcore.ErrorLevel, nil
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return level, fmt.Errorf("%w: unknown LOG_LEVEL %q", config.ErrInvalid, s)
	}
	return level, nil
}

func ensureLogDir(file string) error {
	dir := filepath.Dir(file)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
