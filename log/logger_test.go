package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriterEmitsPeerContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(3, "debug", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter failed: %v", err)
	}

	logger.Info("worker started")
	_ = logger.Sync()

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["message"] != "worker started" {
		t.Errorf("message = %v, want %q", entry["message"], "worker started")
	}
	if entry["peer_id"] != float64(3) {
		t.Errorf("peer_id = %v, want 3", entry["peer_id"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(0, "warn", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter failed: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept")
	_ = logger.Sync()

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info entry emitted at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn entry missing at warn level")
	}
}

func TestUnknownLevelRejected(t *testing.T) {
	if _, err := New(0, "loud"); err == nil {
		t.Fatal("unknown level should be rejected")
	}
}
