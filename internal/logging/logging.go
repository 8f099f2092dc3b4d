// Package logging sets up the process-wide slog logger. Logs go to a rotating
// file so that interactive output on stdout stays clean.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kalambet/ollamakit/internal/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultLogFile = "ollamakit.log"

const (
	maxLogSizeMB  = 5
	maxLogBackups = 3
	maxLogAgeDays = 14
)

// Init configures slog from cfg and installs it as the default logger.
// The returned closer flushes and closes the log file. When the log
// directory cannot be created, logs are discarded and the error returned.
func Init(cfg config.Config) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Log.Level)}

	path := LogPath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		logger := slog.New(newHandler(cfg.Log.Format, io.Discard, opts))
		slog.SetDefault(logger)
		return logger, io.NopCloser(nil), err
	}

	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	}

	logger := slog.New(newHandler(cfg.Log.Format, writer, opts))
	slog.SetDefault(logger)
	return logger, writer, nil
}

// LogPath is log.file, or ollamakit.log in the data directory.
func LogPath(cfg config.Config) string {
	if p := strings.TrimSpace(cfg.Log.File); p != "" {
		return p
	}
	return filepath.Join(cfg.Storage.DataDir, defaultLogFile)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(format string, out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return slog.NewJSONHandler(out, opts)
	default:
		return slog.NewTextHandler(out, opts)
	}
}
