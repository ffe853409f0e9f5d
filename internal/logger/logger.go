package logger

import (
	"io"
	"log/slog"
	"os"

	"property-chatbot-api/internal/config"
)

var Logger *slog.Logger

// InitLogger initializes structured logging based on configuration
func InitLogger(cfg *config.Config) {
	InitWithWriter(cfg.GinMode, os.Stdout)
}

// InitWithWriter installs a JSON logger writing to w. Debug mode lowers the
// level and adds source locations.
func InitWithWriter(mode string, w io.Writer) {
	level := slog.LevelInfo
	if mode == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: mode == "debug",
	}

	Logger = slog.New(slog.NewJSONHandler(w, opts))
	Logger.Debug("Structured logging initialized", "level", level.String())
}

// Helper functions for common log operations
func Info(msg string, args ...any) {
	if Logger != nil {
		Logger.Info(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if Logger != nil {
		Logger.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) {
	if Logger != nil {
		Logger.Debug(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if Logger != nil {
		Logger.Warn(msg, args...)
	}
}
