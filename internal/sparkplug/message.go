package sparkplug

import (
	"strings"
	"sync"
	"time"
)

// Message is a fully parsed Sparkplug-B message: topic plus decoded
// payload.
type Message struct {
	Topic       string
	MessageType string
	GroupID     string
	EdgeNodeID  string
	DeviceID    string // empty for node-level messages
	Timestamp   time.Time
	Metrics     []Metric
	Seq         *int
}

// DecodeMessage parses topic and payload into a Message, trying protobuf
// then JSON when format is FormatProtobuf.
func DecodeMessage(topic string, payload []byte, format Format) (Message, error) {
	tp, err := ParseTopic(topic)
	if err != nil {
		return Message{}, err
	}
	dp, err := DecodePayload(payload, format)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Topic:       topic,
		MessageType: tp.MessageType,
		GroupID:     tp.GroupID,
		EdgeNodeID:  tp.EdgeNodeID,
		DeviceID:    tp.DeviceID,
		Timestamp:   dp.Timestamp,
		Metrics:     dp.Metrics,
		Seq:         dp.Seq,
	}, nil
}

// MetricValue returns the named metric's value as a float64, or false if
// no such metric exists or it cannot be converted.
func (m Message) MetricValue(name string) (float64, bool) {
	for _, metric := range m.Metrics {
		if metric.Name != name {
			continue
		}
		switch v := metric.Value.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int32:
			return float64(v), true
		case int64:
			return float64(v), true
		default:
			return 0, false
		}
	}
	return 0, false
}

// Encoder builds Sparkplug-B topics and payloads for publishing. It owns
// the session sequence counter: a birth resets it to 0, and every data
// payload encoded through EncodeData is stamped with the next value.
type Encoder struct {
	GroupID    string
	EdgeNodeID string
	Format     Format

	mu  sync.Mutex
	seq int
}

// NewEncoder builds an Encoder bound to a group/edge-node identity, with
// the payload format selected at construction.
func NewEncoder(groupID, edgeNodeID string, format Format) *Encoder {
	return &Encoder{GroupID: groupID, EdgeNodeID: edgeNodeID, Format: format}
}

// Topic builds the publish topic for a message type, optionally scoped
// to a device.
func (e *Encoder) Topic(messageType, deviceID string) string {
	return BuildTopic(e.GroupID, messageType, e.EdgeNodeID, deviceID)
}

// EncodeMetrics encodes metrics to this encoder's configured format.
func (e *Encoder) EncodeMetrics(metrics []Metric, timestamp time.Time, seq *int) []byte {
	return EncodePayload(metrics, timestamp, seq, e.Format)
}

// EncodeBirth resets the session sequence to 0 and builds an NBIRTH
// payload carrying seq=0 and a Node Control/Rebirth metric ahead of any
// caller-supplied metrics.
func (e *Encoder) EncodeBirth(metrics []Metric, timestamp time.Time) []byte {
	e.mu.Lock()
	e.seq = 0
	seq := e.seq
	e.seq++
	e.mu.Unlock()

	all := append([]Metric{{Name: "Node Control/Rebirth", Value: false, DataType: Boolean}}, metrics...)
	return EncodePayload(all, timestamp, &seq, e.Format)
}

// EncodeDeath builds the minimal NDEATH payload that is registered with
// the broker as the MQTT Last-Will-and-Testament at connect time.
func (e *Encoder) EncodeDeath(timestamp time.Time) []byte {
	return EncodePayload(nil, timestamp, nil, e.Format)
}

// EncodeData builds a data payload stamped with the next session
// sequence number.
func (e *Encoder) EncodeData(metrics []Metric, timestamp time.Time) []byte {
	e.mu.Lock()
	seq := e.seq
	e.seq++
	e.mu.Unlock()
	return EncodePayload(metrics, timestamp, &seq, e.Format)
}

// EncodeViolationMetrics builds the standard SPC-state metric set:
// Value, Control/UCL, Control/LCL, State/InControl,
// State/ActiveRules, and optional Context/Operator.
func (e *Encoder) EncodeViolationMetrics(value, ucl, lcl float64, inControl bool, activeRules []string, operator string, timestamp time.Time, seq *int) []byte {
	metrics := []Metric{
		{Name: "Value", Value: value, DataType: Float},
		{Name: "Control/UCL", Value: ucl, DataType: Float},
		{Name: "Control/LCL", Value: lcl, DataType: Float},
		{Name: "State/InControl", Value: inControl, DataType: Boolean},
		{Name: "State/ActiveRules", Value: strings.Join(activeRules, ", "), DataType: String},
	}
	if operator != "" {
		metrics = append(metrics, Metric{Name: "Context/Operator", Value: operator, DataType: String})
	}
	return e.EncodeMetrics(metrics, timestamp, seq)
}

// NDataTopic is the per-characteristic state topic: the device slot
// carries the characteristic name.
func (e *Encoder) NDataTopic(characteristicName string) string {
	return e.Topic("NDATA", characteristicName)
}
