package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSeverityForLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		level log.Level
		want  string
	}{
		{name: "panic", level: log.PanicLevel, want: "EMERGENCY"},
		{name: "fatal", level: log.FatalLevel, want: "CRITICAL"},
		{name: "error", level: log.ErrorLevel, want: "ERROR"},
		{name: "warn", level: log.WarnLevel, want: "WARNING"},
		{name: "info", level: log.InfoLevel, want: "INFO"},
		{name: "debug", level: log.DebugLevel, want: "DEBUG"},
		{name: "trace", level: log.TraceLevel, want: "DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := severityForLevel(tt.level)
			if got != tt.want {
				t.Errorf("severityForLevel(%v) = %q, want %q", tt.level, got, tt.want)
			}
		})
	}
}

func TestConfigureLogrusJSONAddsSeverity(t *testing.T) {
	t.Parallel()

	logger := log.New()
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	ConfigureLogrusJSON(logger)
	logger.WithField("component", "test").Info("hello")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal log payload: %v", err)
	}

	got, ok := payload["severity"]
	if !ok {
		t.Fatalf("expected severity field in log payload, got: %#v", payload)
	}
	if got != "INFO" {
		t.Fatalf("expected severity %q, got %v", "INFO", got)
	}
}

func TestConfigureLogrusJSONRespectsExistingSeverity(t *testing.T) {
	t.Parallel()

	logger := log.New()
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	ConfigureLogrusJSON(logger)
	logger.WithField("severity", "NOTICE").Info("hello")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal log payload: %v", err)
	}

	got, ok := payload["severity"]
	if !ok {
		t.Fatalf("expected severity field in log payload, got: %#v", payload)
	}
	if got != "NOTICE" {
		t.Fatalf("expected severity %q, got %v", "NOTICE", got)
	}
}

func TestConfigure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    Options
		level   log.Level
		wantErr bool
	}{
		{name: "defaults", opts: Options{}, level: log.InfoLevel},
		{name: "debug json", opts: Options{Level: "debug", Format: "json"}, level: log.DebugLevel},
		{name: "bad level", opts: Options{Level: "loud"}, wantErr: true},
		{name: "bad format", opts: Options{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger := log.New()
			closer, err := Configure(logger, tt.opts)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer closer.Close()

			if logger.GetLevel() != tt.level {
				t.Errorf("expected level %v, got %v", tt.level, logger.GetLevel())
			}
		})
	}
}

func TestConfigureWritesLogFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "awsdbmon.log")

	logger := log.New()
	closer, err := Configure(logger, Options{Format: "json", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.WithField("service", "orders").Warn("probe failed")

	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &payload); err != nil {
		t.Fatalf("unmarshal log payload: %v", err)
	}

	if payload["severity"] != "WARNING" {
		t.Errorf("expected severity WARNING, got %v", payload["severity"])
	}
	if payload["service"] != "orders" {
		t.Errorf("expected service field, got %v", payload["service"])
	}
}
