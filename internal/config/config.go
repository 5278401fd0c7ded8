// Package config implements the engine's JSON-driven configuration
// document: a root object unmarshaled from JSON, with defaults applied
// after parse rather than via struct tags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/openspc/engine/internal/logging"
)

// WindowConfiguration controls the rolling-window cache's capacity
// knobs.
type WindowConfiguration struct {
	Size            int `json:"Size,omitempty"`
	ManagerCapacity int `json:"ManagerCapacity,omitempty"`
}

// LoggingConfiguration selects the ambient logger's verbosity and sinks.
type LoggingConfiguration struct {
	MinimumLevel string `json:"MinimumLevel,omitempty"`
	Console      bool   `json:"Console,omitempty"`
}

// MQTTConfiguration is the MQTT transport contract.
type MQTTConfiguration struct {
	Host                       string `json:"Host"`
	Port                       int    `json:"Port,omitempty"`
	Username                   string `json:"Username,omitempty"`
	Password                   string `json:"Password,omitempty"`
	ClientID                   string `json:"ClientID,omitempty"`
	KeepaliveSeconds           int    `json:"KeepaliveSeconds,omitempty"`
	TLS                        bool   `json:"TLS,omitempty"`
	ReconnectMaxBackoffSeconds int    `json:"ReconnectMaxBackoffSeconds,omitempty"`
}

// TagConfiguration binds one characteristic to its Sparkplug-B carrier
// topic and buffering policy.
type TagConfiguration struct {
	CharacteristicID     string `json:"CharacteristicID"`
	Topic                string `json:"Topic"`
	MetricName           string `json:"MetricName"`
	SubgroupSize         int    `json:"SubgroupSize"`
	TriggerStrategy      string `json:"TriggerStrategy,omitempty"` // ON_CHANGE | ON_TRIGGER
	TriggerTag           string `json:"TriggerTag,omitempty"`
	BufferTimeoutSeconds int    `json:"BufferTimeoutSeconds,omitempty"`
}

// EngineConfiguration is the root configuration document.
type EngineConfiguration struct {
	Window  WindowConfiguration  `json:"Window,omitempty"`
	Logging LoggingConfiguration `json:"Logging,omitempty"`
	MQTT    MQTTConfiguration    `json:"MQTT,omitempty"`
	Tags    []TagConfiguration   `json:"Tags,omitempty"`
}

// LoadFromFile loads an EngineConfiguration from a JSON file.
func LoadFromFile(filename string) (*EngineConfiguration, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}
	return LoadFromJSON(data)
}

// LoadFromJSON parses an EngineConfiguration from JSON data and applies
// defaults.
func LoadFromJSON(data []byte) (*EngineConfiguration, error) {
	var cfg EngineConfiguration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse JSON: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *EngineConfiguration) {
	if cfg.Window.Size <= 0 {
		cfg.Window.Size = 25
	}
	if cfg.Window.ManagerCapacity <= 0 {
		cfg.Window.ManagerCapacity = 1000
	}
	if cfg.Logging.MinimumLevel == "" {
		cfg.Logging.MinimumLevel = "Information"
	}
	if cfg.MQTT.Port <= 0 {
		cfg.MQTT.Port = 1883
	}
	if cfg.MQTT.KeepaliveSeconds <= 0 {
		cfg.MQTT.KeepaliveSeconds = 60
	}
	if cfg.MQTT.ReconnectMaxBackoffSeconds <= 0 {
		cfg.MQTT.ReconnectMaxBackoffSeconds = 60
	}
	for i := range cfg.Tags {
		if cfg.Tags[i].TriggerStrategy == "" {
			cfg.Tags[i].TriggerStrategy = "ON_CHANGE"
		}
		if cfg.Tags[i].BufferTimeoutSeconds <= 0 {
			cfg.Tags[i].BufferTimeoutSeconds = 300
		}
	}
}

// ParseLevel parses a logging level string into logging.Level.
func ParseLevel(levelStr string) (logging.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug", "dbg":
		return logging.DebugLevel, nil
	case "information", "info", "inf":
		return logging.InfoLevel, nil
	case "warning", "warn", "wrn":
		return logging.WarnLevel, nil
	case "error", "err":
		return logging.ErrorLevel, nil
	default:
		return logging.InfoLevel, fmt.Errorf("config: unknown log level %q", levelStr)
	}
}
