package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agentkit.log")
	logger, closer, err := New(Config{Level: "debug", Format: "json", OutputPath: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.WithField("action", "swap").Info("invoked")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(buf))), &entry); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf, err)
	}
	if entry["action"] != "swap" || entry["msg"] != "invoked" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
}

func TestNewDefaultsAndValidation(t *testing.T) {
	logger, _, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn default, got %s", logger.GetLevel())
	}
	if _, _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected invalid level error")
	}
	if _, _, err := New(Config{Format: "xml"}); err == nil {
		t.Fatal("expected invalid format error")
	}
}
