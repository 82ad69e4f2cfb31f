package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config captures options for configuring the process logger.
type Config struct {
	Level   string    // "debug", "info", ...; falls back to LOG_LEVEL then info
	Output  io.Writer // console writer, defaults to os.Stdout
	Console bool      // human readable console output instead of JSON
	Service string

	// File enables a rotating log file next to the console output.
	File       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

var (
	mu      sync.RWMutex
	base    = zerolog.New(os.Stdout).With().Timestamp().Logger()
	rotator *lumberjack.Logger
)

// Configure replaces the process logger. It may be called again after a
// settings reload; the previous rotating file, if any, is closed.
func Configure(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	lvl := cfg.Level
	if lvl == "" {
		lvl = os.Getenv("LOG_LEVEL")
	}
	if lvl != "" {
		if parsed, err := zerolog.ParseLevel(lvl); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer = os.Stdout
	if cfg.Output != nil {
		console = cfg.Output
	}
	if cfg.Console {
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.Kitchen}
	}

	mu.Lock()
	defer mu.Unlock()

	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}

	writer := console
	if cfg.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		writer = zerolog.MultiLevelWriter(console, rotator)
	}

	service := cfg.Service
	if service == "" {
		service = "cinemarathon"
	}
	base = zerolog.New(writer).With().Timestamp().Str("service", service).Logger()
	return base
}

// Base returns the configured process logger.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}

// Close flushes and closes the rotating file, if one is open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	return err
}
