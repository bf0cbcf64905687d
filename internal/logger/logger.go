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

// Default rotation parameters for child process output files.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Format selects the slog output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// SlogConfig controls the supervisor's own structured logging.
type SlogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format Format `json:"format" mapstructure:"format"` // text or json
	Color  bool   `json:"color" mapstructure:"color"`   // colorize level names (text only)
}

// FileConfig describes stdout/stderr destinations for a supervised process.
// If StdoutPath/StderrPath are empty and Dir is set, files will be
// Dir/<name>.stdout.log and Dir/<name>.stderr.log.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Dir        string `json:"dir" mapstructure:"dir"`
	StdoutPath string `json:"stdout_path" mapstructure:"stdout_path"`
	StderrPath string `json:"stderr_path" mapstructure:"stderr_path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Config is the unified logging configuration: the supervisor's slog output
// plus file destinations for child process output.
type Config struct {
	Slog SlogConfig `json:"slog" mapstructure:"slog"`
	File FileConfig `json:"file" mapstructure:"file"`
}

// NewSlogger builds a *slog.Logger from the Slog section. Unknown levels
// fall back to info.
func (c Config) NewSlogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Slog.Level)}
	var h slog.Handler
	switch c.Slog.Format {
	case FormatJSON:
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		if c.Slog.Color {
			h = NewColorTextHandler(os.Stderr, opts)
		} else {
			h = slog.NewTextHandler(os.Stderr, opts)
		}
	}
	return slog.New(h)
}

func parseLevel(s string) slog.Level {
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

// Writers returns io.WriteClosers for stdout and stderr of the named process.
// Either writer may be nil when no destination is configured for it.
func (c FileConfig) Writers(name string) (io.WriteCloser, io.WriteCloser, error) {
	stdout := c.StdoutPath
	stderr := c.StderrPath
	if stdout == "" && c.Dir != "" {
		stdout = filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && c.Dir != "" {
		stderr = filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	var outW io.WriteCloser
	var errW io.WriteCloser
	if stdout != "" {
		outW = c.newRotatingWriter(stdout)
	}
	if stderr != "" {
		errW = c.newRotatingWriter(stderr)
	}
	return outW, errW, nil
}

func (c FileConfig) newRotatingWriter(path string) io.WriteCloser {
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
