package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits of the log file.
const (
	maxSizeMB  = 10
	maxBackups = 5
	maxAgeDays = 14
)

// ParseLevel maps debug, info, warn and error to a
// slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level

	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}

	return l, nil
}

// Options configures New.
type Options struct {
	Level slog.Level

	// File, when set, receives JSON records through a
	// rotating writer instead of stderr.
	File string

	// Stderr overrides os.Stderr, for tests.
	Stderr io.Writer
}

// New returns a logger and a close function releasing
// the log file, if any.
func New(opts Options) (*slog.Logger, func() error, error) {
	const errCtx = "creating logger"

	hopts := &slog.HandlerOptions{Level: opts.Level}

	if opts.File == "" {
		w := opts.Stderr
		if w == nil {
			w = os.Stderr
		}

		return slog.New(slog.NewTextHandler(w, hopts)),
			func() error { return nil },
			nil
	}

	if err := os.MkdirAll(
		filepath.Dir(opts.File), 0o755,
	); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}

	return slog.New(slog.NewJSONHandler(lj, hopts)), lj.Close, nil
}

// Setup builds a logger with New and installs it as the
// slog default.
func Setup(opts Options) (func() error, error) {
	logger, closeFn, err := New(opts)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)

	return closeFn, nil
}
