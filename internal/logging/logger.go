// Package logging provides the process-wide structured logger for leshy.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Config carries the subset of the [log] TOML section the logger needs.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // console, json
	Output string // path, or "" for stderr
}

var (
	mu     sync.Mutex
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	file   *os.File
)

// Configure rebuilds the default logger from cfg. Safe to call again on
// reload; a previously opened log file is closed first.
func Configure(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return fmt.Errorf("logging: invalid level %q: %w", cfg.Level, err)
		}
		level = l
	}

	var out io.Writer = os.Stderr
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("logging: open %s: %w", cfg.Output, err)
		}
		if file != nil {
			file.Close()
		}
		file = f
		out = f
	}

	if strings.ToLower(cfg.Format) != "json" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: cfg.Output != ""}
	}

	logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return nil
}

// Close releases any open log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
}

// L returns the current process-wide logger.
func L() *zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return &logger
}

// With returns a child logger tagged with a component name, the way every
// package in leshy identifies its log lines.
func With(component string) zerolog.Logger {
	return L().With().Str("component", component).Logger()
}
