// Package sparkplug implements the Sparkplug-B topic namespace and wire
// codec used by the tag-intake adapter: topic parsing and
// MQTT wildcard matching, a protobuf/JSON payload codec, and an encoder
// for publishing SPC state back onto the bus.
package sparkplug

import (
	"fmt"
	"strings"

	"github.com/openspc/engine/internal/errs"
)

// TopicParts is a parsed Sparkplug-B topic:
// spBv1.0/{group_id}/{message_type}/{edge_node_id}[/{device_id}].
type TopicParts struct {
	Namespace   string
	GroupID     string
	MessageType string
	EdgeNodeID  string
	DeviceID    string // empty for node-level messages
	HasDeviceID bool
}

const namespace = "spBv1.0"

// messageTypes is the fixed Sparkplug-B message-type set.
var messageTypes = map[string]bool{
	"NBIRTH": true, "NDEATH": true, "NDATA": true, "NCMD": true,
	"DBIRTH": true, "DDEATH": true, "DDATA": true, "DCMD": true,
}

// ParseTopic splits a Sparkplug-B topic into its components.
func ParseTopic(topic string) (TopicParts, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != namespace {
		return TopicParts{}, fmt.Errorf("sparkplug: invalid topic %q, expected %s/{group}/{msg}/{edge}[/{device}]: %w", topic, namespace, errs.ErrDecode)
	}
	if !messageTypes[parts[2]] {
		return TopicParts{}, fmt.Errorf("sparkplug: unknown message type %q in topic %q: %w", parts[2], topic, errs.ErrDecode)
	}

	tp := TopicParts{
		Namespace:   parts[0],
		GroupID:     parts[1],
		MessageType: parts[2],
		EdgeNodeID:  parts[3],
	}
	if len(parts) > 5 {
		return TopicParts{}, fmt.Errorf("sparkplug: too many levels in topic %q: %w", topic, errs.ErrDecode)
	}
	if len(parts) == 5 {
		tp.DeviceID = parts[4]
		tp.HasDeviceID = true
	}
	return tp, nil
}

// BuildTopic constructs a Sparkplug-B topic string. deviceID may be empty
// for node-level messages.
func BuildTopic(groupID, messageType, edgeNodeID, deviceID string) string {
	parts := []string{namespace, groupID, messageType, edgeNodeID}
	if deviceID != "" {
		parts = append(parts, deviceID)
	}
	return strings.Join(parts, "/")
}

// MatchTopic reports whether topic matches the MQTT-style filter: "+"
// matches exactly one level, "#" matches zero or more trailing levels
// and is only valid as the filter's last segment.
func MatchTopic(filter, topic string) bool {
	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, fp := range filterParts {
		if fp == "#" {
			return i == len(filterParts)-1
		}
		if i >= len(topicParts) {
			return false
		}
		if fp == "+" {
			continue
		}
		if fp != topicParts[i] {
			return false
		}
	}
	return len(filterParts) == len(topicParts)
}
