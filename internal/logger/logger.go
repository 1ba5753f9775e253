// Package logger builds the manager's slog logger. Worker output never
// passes through it.
package logger

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// FileConfig enables a rotating log file. Rotation follows lumberjack semantics.
type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Config selects level, format and destination of the manager log.
type Config struct {
	Level  string     `mapstructure:"level"`  // debug|info|warn|error
	Format string     `mapstructure:"format"` // text|json
	Color  bool       `mapstructure:"color"`
	File   FileConfig `mapstructure:"file"`
}

// New builds a logger from cfg writing to w (os.Stderr when nil), or to a
// rotating file when cfg.File.Path is set. The returned closer releases the
// file and is never nil.
func New(cfg Config, w io.Writer) (*slog.Logger, io.Closer) {
	if w == nil {
		w = os.Stderr
	}
	var closer io.Closer = nopCloser{}
	color := cfg.Color
	if p := strings.TrimSpace(cfg.File.Path); p != "" {
		fl := &lj.Logger{
			Filename:   p,
			MaxSize:    valOr(cfg.File.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(cfg.File.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(cfg.File.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   cfg.File.Compress,
		}
		w, closer = fl, fl
		color = false
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	switch {
	case strings.EqualFold(cfg.Format, "json"):
		h = slog.NewJSONHandler(w, opts)
	case color:
		h = NewColorTextHandler(w, opts, true)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closer
}

// Install makes l the slog default and routes the standard log package
// (used by gin and the database drivers) through it.
func Install(l *slog.Logger) {
	slog.SetDefault(l)
	log.SetFlags(0)
	log.SetOutput(slogWriter{logger: l})
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

type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.logger.Info(msg)
	}
	return len(p), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
