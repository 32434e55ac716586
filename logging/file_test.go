package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(content)
}

func TestNewFileLogger(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("appends to existing file", func(t *testing.T) {
		path := filepath.Join(tmpDir, "append.log")
		if err := os.WriteFile(path, []byte("earlier run\n"), 0644); err != nil {
			t.Fatalf("failed to seed file: %v", err)
		}

		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log("read %d tags from %s", 3, "10.0.0.5")
		logger.Close()

		str := readFile(t, path)
		if !strings.Contains(str, "earlier run") {
			t.Error("existing content was overwritten")
		}
		if !strings.Contains(str, "read 3 tags from 10.0.0.5") {
			t.Errorf("message missing: %s", str)
		}
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		if _, err := NewFileLogger("/nonexistent/directory/file.log"); err == nil {
			t.Error("expected error for invalid path")
		}
	})
}

func TestFileLogger_AfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.log")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	logger.Log("should not appear")
	if n, err := logger.Write([]byte("nor this\n")); err != nil || n != 9 {
		t.Errorf("Write after close = %d, %v", n, err)
	}
	if str := readFile(t, path); str != "" {
		t.Errorf("wrote after close: %q", str)
	}
}

func TestFileLogger_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.log")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Log("request %d", n)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(readFile(t, path)), "\n")
	if len(lines) != 50 {
		t.Errorf("expected 50 lines, got %d", len(lines))
	}
}

func TestNewLogger_TeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	file, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var sb strings.Builder
	log := NewLogger(slog.LevelInfo, &sb, file)
	log.Debug("hidden")
	log.Info("scan finished", "ip", "10.0.0.5", "tags", 12)
	file.Close()

	for _, out := range []string{sb.String(), readFile(t, path)} {
		if !strings.Contains(out, "scan finished") || !strings.Contains(out, "ip=10.0.0.5") {
			t.Errorf("output missing record: %q", out)
		}
		if strings.Contains(out, "hidden") {
			t.Errorf("debug record written at info level: %q", out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
