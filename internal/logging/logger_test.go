package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewWithOutputWritesJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("debug", &buf)
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}

	Component(logger, "gateway").Info("run started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "gateway" {
		t.Fatalf("expected component field, got %#v", entry)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	logger := NewWithOutput("chatty", &bytes.Buffer{})
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level fallback, got %s", logger.GetLevel())
	}
}

func TestComponentWithNilLogger(t *testing.T) {
	entry := Component(nil, "x")
	entry.Info("discarded")
}
