package shared

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	logger.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, "value") {
		t.Errorf("unexpected log output: %s", out)
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := WithLogger(NewLogger(&buf), "component", "test")

	logger.Info("hello")

	if !strings.Contains(buf.String(), "component") {
		t.Errorf("expected bound key in output: %s", buf.String())
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	SetLogLevel(logger, log.ErrorLevel)
	logger.Info("suppressed")

	if buf.Len() != 0 {
		t.Errorf("expected info to be suppressed: %s", buf.String())
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()

	if a == b {
		t.Error("expected unique IDs")
	}

	if len(a) != 36 {
		t.Errorf("expected a UUID string, got %q", a)
	}
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// 16 random bytes, hex encoded.
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}

	b, _ := GenerateState()
	if a == b {
		t.Error("expected unique state tokens")
	}
}
