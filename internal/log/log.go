// Package log sets up the default slog logger and carries loggers through contexts.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Debug enables debug level logging and additional diagnostic output.
var Debug bool

type loggerCtxKey struct{}

// FileConfig configures an optional rotating log file that receives the same
// records as stdout.
type FileConfig struct {
	File       string `yaml:"file" env:"FORMWALK_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env-default:"10"`
	MaxBackups int    `yaml:"max_backups" env-default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" env-default:"28"`
}

func InitializeDefaultLogger(fc *FileConfig) {
	level := slog.LevelInfo
	if Debug {
		level = slog.LevelDebug
	}
	var w io.Writer = os.Stdout
	if fc != nil && fc.File != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   fc.File,
			MaxSize:    fc.MaxSizeMB,
			MaxBackups: fc.MaxBackups,
			MaxAge:     fc.MaxAgeDays,
		})
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerCtxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
