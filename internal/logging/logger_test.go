package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"warning level", "warning", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"mixed case Info", "Info", slog.LevelInfo},
		{"invalid level", "invalid", slog.LevelInfo},
		{"empty string", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]string{
		"json": FormatJSON,
		"JSON": FormatJSON,
		"text": FormatText,
		"":     FormatText,
		"xml":  FormatText,
	}
	for input, want := range tests {
		if got := ParseFormat(input); got != want {
			t.Errorf("ParseFormat(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != slog.LevelInfo {
		t.Errorf("Default level = %v, want %v", cfg.Level, slog.LevelInfo)
	}
	if cfg.Format != FormatText {
		t.Errorf("Default format = %q, want %q", cfg.Format, FormatText)
	}
	if cfg.FilePath != "" {
		t.Errorf("Default FilePath = %q, want empty", cfg.FilePath)
	}
	if cfg.MaxSize != 100 {
		t.Errorf("Default MaxSize = %d, want 100", cfg.MaxSize)
	}
	if cfg.MaxBackups != 5 {
		t.Errorf("Default MaxBackups = %d, want 5", cfg.MaxBackups)
	}
	if !cfg.Console {
		t.Errorf("Default Console = %v, want true", cfg.Console)
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings("debug", "json", "/tmp/seosnap.log")
	if cfg.Level != slog.LevelDebug {
		t.Errorf("Level = %v, want debug", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("Format = %q, want json", cfg.Format)
	}
	if cfg.FilePath != "/tmp/seosnap.log" {
		t.Errorf("FilePath = %q", cfg.FilePath)
	}
	if cfg.MaxBackups != 5 || !cfg.Console {
		t.Errorf("defaults not carried over: %+v", cfg)
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		logger, err := NewLogger(Config{Level: slog.LevelInfo, Console: true})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger returned nil logger")
		}
	})

	t.Run("json file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "nested", "test.log")

		logger, err := NewLogger(Config{
			Level:      slog.LevelDebug,
			Format:     FormatJSON,
			FilePath:   logFile,
			MaxSize:    10,
			MaxBackups: 3,
		})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}

		logger.Info("page processed", "path", "/circular")

		content, err := os.ReadFile(logFile)
		if err != nil {
			t.Fatalf("Log file was not created: %v", err)
		}
		var record map[string]any
		if err := json.Unmarshal(content, &record); err != nil {
			t.Fatalf("log line is not JSON: %v (%q)", err, content)
		}
		if record["path"] != "/circular" {
			t.Errorf("path attribute = %v", record["path"])
		}
	})

	t.Run("text file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "test.log")

		logger, err := NewLogger(Config{Level: slog.LevelInfo, Format: FormatText, FilePath: logFile, MaxSize: 10})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.Debug("hidden")
		logger.Warn("shown", "url", "http://example.com/")

		content, err := os.ReadFile(logFile)
		if err != nil {
			t.Fatalf("Log file was not created: %v", err)
		}
		if strings.Contains(string(content), "hidden") {
			t.Errorf("debug record written at info level: %q", content)
		}
		if !strings.Contains(string(content), "url=http://example.com/") {
			t.Errorf("text record missing attribute: %q", content)
		}
	})

	t.Run("no outputs configured defaults to console", func(t *testing.T) {
		logger, err := NewLogger(Config{Level: slog.LevelInfo})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger returned nil logger")
		}
	})
}

func TestSetDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logFile := filepath.Join(t.TempDir(), "test.log")

	err := SetDefault(Config{
		Level:      slog.LevelDebug,
		FilePath:   logFile,
		MaxSize:    10,
		MaxBackups: 3,
	})
	if err != nil {
		t.Fatalf("SetDefault failed: %v", err)
	}

	slog.Info("test message from default logger")

	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Errorf("Log file was not created at %s", logFile)
	}
}
