package mqtt

import (
	"testing"
	"time"
)

func TestNewAppliesDefaultBackoffCap(t *testing.T) {
	tr := New(Config{Host: "broker.local", Port: 1883}, nil)
	if tr.cfg.ReconnectMaxBackoff != 60*time.Second {
		t.Fatalf("expected default 60s backoff cap, got %v", tr.cfg.ReconnectMaxBackoff)
	}
}

func TestNewPreservesConfiguredBackoffCap(t *testing.T) {
	tr := New(Config{Host: "broker.local", Port: 1883, ReconnectMaxBackoff: 5 * time.Second}, nil)
	if tr.cfg.ReconnectMaxBackoff != 5*time.Second {
		t.Fatalf("expected configured 5s backoff cap preserved, got %v", tr.cfg.ReconnectMaxBackoff)
	}
}

func TestNewWithNilLoggerDoesNotPanic(t *testing.T) {
	tr := New(Config{Host: "broker.local"}, nil)
	if tr.log == nil {
		t.Fatal("expected a no-op logger to be installed")
	}
}
