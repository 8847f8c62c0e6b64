package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/satriahrh/lextale/config"
)

func TestNewWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(config.LoggingConfig{Level: "info", Directory: dir, MaxSize: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Debug("hidden")
	logger.Info("Trial logged", zap.Int("trial", 3))
	_ = logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "lextale.log"))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line above debug level, got %d: %s", len(lines), data)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["message"] != "Trial logged" || entry["level"] != "INFO" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["trial"] != float64(3) {
		t.Errorf("expected trial field 3, got %v", entry["trial"])
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
