package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for file output.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config drives both the daemon's structured logging and the rotating
// transcript files kept per capture source. When Dir is empty everything
// goes to stderr only and no transcripts are written.
type Config struct {
	Level      string `json:"level" mapstructure:"level"`   // debug|info|warn|error (default info)
	Format     string `json:"format" mapstructure:"format"` // text|json (default text)
	Color      bool   `json:"color" mapstructure:"color"`   // colorize text output
	Dir        string `json:"dir" mapstructure:"dir"`       // base directory for log files
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// ParseLevel maps a config string to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// NewSlogger builds the daemon logger. Text output goes to stderr
// (optionally colorized); when Dir is set the same records are mirrored
// into a rotating Dir/capturr.log.
func (c Config) NewSlogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}

	var w io.Writer = os.Stderr
	if c.Dir != "" {
		_ = os.MkdirAll(c.Dir, 0o750)
		w = io.MultiWriter(os.Stderr, c.rotatingWriter(filepath.Join(c.Dir, "capturr.log")))
	}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(c.Format)) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		if c.Color {
			h = NewColorTextHandler(w, opts, true)
		} else {
			h = slog.NewTextHandler(w, opts)
		}
	}
	return slog.New(h)
}

// TranscriptWriter returns a rotating writer for one source's capture
// process stderr, or nil when file logging is disabled.
func (c Config) TranscriptWriter(name string) io.WriteCloser {
	if c.Dir == "" {
		return nil
	}
	_ = os.MkdirAll(c.Dir, 0o750)
	return c.rotatingWriter(filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", name)))
}

func (c Config) rotatingWriter(path string) io.WriteCloser {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
