package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config describes one logger destination.
type Config struct {
	// Level is the minimum record level: debug, info, warn or error.
	Level string

	// FilePath is the log file. Rotated siblings carry numeric suffixes.
	FilePath string

	// MaxSizeMB caps the file size before a rotation.
	MaxSizeMB int

	// MaxFiles is how many rotated files survive.
	MaxFiles int

	// WriteToStderr additionally echoes every record to stderr.
	WriteToStderr bool
}

// DefaultConfig is the file-logging setup the CLI starts from.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// Setup opens the log file and builds a JSON logger over it. The
// returned cleanup flushes and closes the file; call it at process end.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = writer
	if cfg.WriteToStderr {
		out = io.MultiWriter(writer, os.Stderr)
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}))
	return logger, func() { _ = writer.Close() }, nil
}

// SetupStderr builds a stderr-only JSON logger. No filesystem access;
// the setup for one-shot commands and tests.
func SetupStderr(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// ParseLevel maps a config level string onto slog's scale. Unknown
// strings read as info.
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
