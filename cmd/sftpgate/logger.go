package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"gitlab.bluewillows.net/root/sftpgate/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setupLogger builds the process logger. Output goes to a rotated file when
// one is configured, otherwise to out. The returned closer releases the file.
func setupLogger(cfg *config.GlobalConfig, out io.Writer) (*slog.Logger, io.Closer, error) {
	var (
		w      = out
		closer io.Closer = nopCloser{}
	)

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o750); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   cfg.LogCompress,
		}
		w = rotating
		closer = rotating
	}

	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler), closer, nil
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
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
