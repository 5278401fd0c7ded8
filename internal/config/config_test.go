package config

import (
	"testing"

	"github.com/openspc/engine/internal/logging"
)

func TestLoadFromJSONAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromJSON([]byte(`{"MQTT":{"Host":"broker.local"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Window.Size != 25 {
		t.Fatalf("expected default window size 25, got %d", cfg.Window.Size)
	}
	if cfg.Window.ManagerCapacity != 1000 {
		t.Fatalf("expected default manager capacity 1000, got %d", cfg.Window.ManagerCapacity)
	}
	if cfg.MQTT.Port != 1883 {
		t.Fatalf("expected default MQTT port 1883, got %d", cfg.MQTT.Port)
	}
	if cfg.MQTT.Host != "broker.local" {
		t.Fatalf("expected configured host preserved, got %q", cfg.MQTT.Host)
	}
}

func TestLoadFromJSONAppliesTagDefaults(t *testing.T) {
	cfg, err := LoadFromJSON([]byte(`{"Tags":[{"CharacteristicID":"c1","Topic":"spBv1.0/plant/NDATA/edge1","SubgroupSize":3}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Tags) != 1 {
		t.Fatalf("expected 1 tag config, got %d", len(cfg.Tags))
	}
	if cfg.Tags[0].TriggerStrategy != "ON_CHANGE" {
		t.Fatalf("expected default trigger strategy ON_CHANGE, got %q", cfg.Tags[0].TriggerStrategy)
	}
	if cfg.Tags[0].BufferTimeoutSeconds != 300 {
		t.Fatalf("expected default buffer timeout 300, got %d", cfg.Tags[0].BufferTimeoutSeconds)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]logging.Level{
		"debug":   logging.DebugLevel,
		"Warning": logging.WarnLevel,
		"ERROR":   logging.ErrorLevel,
		"info":    logging.InfoLevel,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		if err != nil {
			t.Fatalf("ParseLevel(%q): unexpected error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
	if _, err := ParseLevel("nonsense"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/path/config.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
