// Package logging configures logrus for the CLI
package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how diagnostics are written
type Options struct {
	// Level is a logrus level name such as "info" or "debug"
	Level string
	// Format is "text" or "json"
	Format string
	// File, when set, receives a copy of every entry and is rotated by size
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Configure applies opts to logger. The returned closer releases the log file
// and is a no-op when no file was configured.
func Configure(logger *log.Logger, opts Options) (io.Closer, error) {
	if logger == nil {
		return nopCloser{}, nil
	}

	level := opts.Level
	if level == "" {
		level = "info"
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)

	switch opts.Format {
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		ConfigureLogrusJSON(logger)
	default:
		return nil, fmt.Errorf("invalid log format %q, must be text or json", opts.Format)
	}

	if opts.File == "" {
		logger.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, file))

	return file, nil
}

// ConfigureLogrusJSON sets the logger to emit JSON logs with a severity field
func ConfigureLogrusJSON(logger *log.Logger) {
	if logger == nil {
		return
	}

	logger.SetFormatter(&log.JSONFormatter{})
	logger.AddHook(SeverityHook{})
}

// SeverityHook adds a GCP-compatible severity field to log entries
type SeverityHook struct{}

func (SeverityHook) Levels() []log.Level {
	return log.AllLevels
}

func (SeverityHook) Fire(entry *log.Entry) error {
	if entry == nil {
		return nil
	}
	if _, ok := entry.Data["severity"]; ok {
		return nil
	}

	entry.Data["severity"] = severityForLevel(entry.Level)
	return nil
}

func severityForLevel(level log.Level) string {
	switch level {
	case log.PanicLevel:
		return "EMERGENCY"
	case log.FatalLevel:
		return "CRITICAL"
	case log.ErrorLevel:
		return "ERROR"
	case log.WarnLevel:
		return "WARNING"
	case log.InfoLevel:
		return "INFO"
	case log.DebugLevel, log.TraceLevel:
		return "DEBUG"
	default:
		return "DEFAULT"
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
