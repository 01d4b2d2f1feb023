package logger

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "driver.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Close()

	Info("session %s created", "abc")
	Warn("context %q rejected", "")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "session abc created") {
		t.Errorf("log missing info line: %s", out)
	}
	if !strings.Contains(out, "level=warning") {
		t.Errorf("log missing warning level: %s", out)
	}
	if GetWriter() == io.Discard {
		t.Error("GetWriter() should return the log file after Init")
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	if err := SetLevel("error"); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	Info("hidden")
	Error("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("info line should be filtered at error level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("error line should be written")
	}

	if err := SetLevel("nope"); err == nil {
		t.Error("expected error for unknown level")
	}
	_ = SetLevel("warn")
}

func TestWithSession(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	WithSession("s-1").Warn("release failed")
	if !strings.Contains(buf.String(), "session=s-1") {
		t.Errorf("expected session field, got %s", buf.String())
	}
}

func TestGetWriter_NoFile(t *testing.T) {
	Close()
	if GetWriter() != io.Discard {
		t.Error("GetWriter() should be io.Discard without a log file")
	}
}
