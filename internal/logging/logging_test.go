package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLoggerFiltersBelowMinLevel(t *testing.T) {
	sink := NewMemorySink()
	l := New(WarnLevel, sink)

	l.Debug("should not appear")
	l.Info("also filtered")
	l.Warn("kept")

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Message != "kept" {
		t.Fatalf("unexpected message: %q", events[0].Message)
	}
}

func TestWithMergesProperties(t *testing.T) {
	sink := NewMemorySink()
	l := New(DebugLevel, sink).With("characteristic_id", "c1")

	l.Info("sample processed", "sample_id", "s1")

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	props := events[0].Properties
	if props["characteristic_id"] != "c1" || props["sample_id"] != "s1" {
		t.Fatalf("unexpected properties: %#v", props)
	}
}

func TestWriteCapturesErrorProperty(t *testing.T) {
	sink := NewMemorySink()
	l := New(DebugLevel, sink)

	cause := errors.New("boom")
	l.Error("processing failed", "error", cause)

	events := sink.Events()
	if events[0].Err == nil || events[0].Err.Error() != "boom" {
		t.Fatalf("expected captured error, got %v", events[0].Err)
	}
}

func TestConsoleSinkFormatsLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSinkWithWriter(&buf)
	l := New(InfoLevel, sink)

	l.Info("window appended", "characteristic_id", "c1")

	out := buf.String()
	if !strings.Contains(out, "[INF]") || !strings.Contains(out, "window appended") || !strings.Contains(out, "characteristic_id=c1") {
		t.Fatalf("unexpected console line: %q", out)
	}
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	l := Nop()
	if l.IsEnabled(ErrorLevel) {
		t.Fatal("nop logger should not be enabled at any level")
	}
	l.Error("should be discarded")
}
