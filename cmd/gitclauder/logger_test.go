package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLogger_AutoIsJSONWhenNotTTY(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "info", "auto")
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hello")
	_ = log.Sync()

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("want JSON line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "hello" {
		t.Errorf("msg = %v", line["msg"])
	}
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "debug", "console")
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("details")
	if !strings.Contains(buf.String(), "details") || strings.HasPrefix(buf.String(), "{") {
		t.Errorf("console output = %q", buf.String())
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatal(err)
	}
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
}

func TestNewLogger_Invalid(t *testing.T) {
	if _, err := newLogger(&bytes.Buffer{}, "loud", "json"); err == nil {
		t.Error("expected error for bad level")
	}
	if _, err := newLogger(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Error("expected error for bad format")
	}
}
