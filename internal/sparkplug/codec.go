package sparkplug

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/openspc/engine/internal/errs"
)

// Wire field numbers for the Payload message: field 1 is the timestamp
// varint, 2 the seq varint, 3 the repeated Metric submessage. There is
// no .proto file in this system to compile against, so the codec is
// hand-written directly on protowire, the
// low-level reader/writer the protobuf module ships for exactly this.
const (
	payloadFieldTimestamp protowire.Number = 1
	payloadFieldSeq       protowire.Number = 2
	payloadFieldMetrics   protowire.Number = 3
)

// Wire field numbers for the nested Metric message.
const (
	metricFieldName         protowire.Number = 1
	metricFieldDataType     protowire.Number = 2
	metricFieldTimestamp    protowire.Number = 3
	metricFieldIntValue     protowire.Number = 4
	metricFieldLongValue    protowire.Number = 5
	metricFieldFloatValue   protowire.Number = 6
	metricFieldDoubleValue  protowire.Number = 7
	metricFieldBooleanValue protowire.Number = 8
	metricFieldStringValue  protowire.Number = 9
	metricFieldBytesValue   protowire.Number = 10
)

// decodedPayload is the intermediate form shared by both wire formats.
type decodedPayload struct {
	Timestamp time.Time
	Metrics   []Metric
	Seq       *int
}

// Format selects the wire encoding for a Sparkplug payload.
type Format string

const (
	FormatProtobuf Format = "protobuf"
	FormatJSON     Format = "json"
)

// DecodePayload decodes a Sparkplug payload. With FormatProtobuf it
// tries the protobuf codec first and falls back to JSON before surfacing
// a decode error.
func DecodePayload(payload []byte, format Format) (decodedPayload, error) {
	if format == FormatJSON {
		return decodeJSON(payload)
	}
	if p, err := decodeProtobuf(payload); err == nil {
		return p, nil
	}
	if p, err := decodeJSON(payload); err == nil {
		return p, nil
	}
	return decodedPayload{}, fmt.Errorf("sparkplug: payload is neither valid protobuf nor JSON: %w", errs.ErrDecode)
}

func decodeProtobuf(payload []byte) (decodedPayload, error) {
	var out decodedPayload
	b := payload
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return decodedPayload{}, fmt.Errorf("sparkplug: malformed protobuf tag: %w", errs.ErrDecode)
		}
		b = b[n:]

		switch num {
		case payloadFieldTimestamp:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return decodedPayload{}, fmt.Errorf("sparkplug: malformed timestamp: %w", errs.ErrDecode)
			}
			out.Timestamp = time.UnixMilli(int64(v)).UTC()
			b = b[n:]
		case payloadFieldSeq:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return decodedPayload{}, fmt.Errorf("sparkplug: malformed seq: %w", errs.ErrDecode)
			}
			seq := int(v)
			out.Seq = &seq
			b = b[n:]
		case payloadFieldMetrics:
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return decodedPayload{}, fmt.Errorf("sparkplug: malformed metric submessage: %w", errs.ErrDecode)
			}
			m, err := decodeMetric(msg)
			if err != nil {
				return decodedPayload{}, err
			}
			out.Metrics = append(out.Metrics, m)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return decodedPayload{}, fmt.Errorf("sparkplug: malformed field %d: %w", num, errs.ErrDecode)
			}
			b = b[n:]
		}
	}
	return out, nil
}

func decodeMetric(b []byte) (Metric, error) {
	var m Metric
	var hasTimestamp bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Metric{}, fmt.Errorf("sparkplug: malformed metric tag: %w", errs.ErrDecode)
		}
		b = b[n:]

		switch num {
		case metricFieldName:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return Metric{}, fmt.Errorf("sparkplug: malformed metric name: %w", errs.ErrDecode)
			}
			m.Name = s
			b = b[n:]
		case metricFieldDataType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Metric{}, fmt.Errorf("sparkplug: malformed metric datatype: %w", errs.ErrDecode)
			}
			m.DataType = DataType(v)
			b = b[n:]
		case metricFieldTimestamp:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Metric{}, fmt.Errorf("sparkplug: malformed metric timestamp: %w", errs.ErrDecode)
			}
			m.Timestamp = time.UnixMilli(int64(v)).UTC()
			hasTimestamp = true
			b = b[n:]
		case metricFieldIntValue:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Metric{}, fmt.Errorf("sparkplug: malformed int_value: %w", errs.ErrDecode)
			}
			m.Value = int32(v)
			b = b[n:]
		case metricFieldLongValue:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Metric{}, fmt.Errorf("sparkplug: malformed long_value: %w", errs.ErrDecode)
			}
			m.Value = int64(v)
			b = b[n:]
		case metricFieldFloatValue:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return Metric{}, fmt.Errorf("sparkplug: malformed float_value: %w", errs.ErrDecode)
			}
			m.Value = math.Float32frombits(v)
			b = b[n:]
		case metricFieldDoubleValue:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return Metric{}, fmt.Errorf("sparkplug: malformed double_value: %w", errs.ErrDecode)
			}
			m.Value = math.Float64frombits(v)
			b = b[n:]
		case metricFieldBooleanValue:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Metric{}, fmt.Errorf("sparkplug: malformed boolean_value: %w", errs.ErrDecode)
			}
			m.Value = v != 0
			b = b[n:]
		case metricFieldStringValue:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return Metric{}, fmt.Errorf("sparkplug: malformed string_value: %w", errs.ErrDecode)
			}
			m.Value = s
			b = b[n:]
		case metricFieldBytesValue:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Metric{}, fmt.Errorf("sparkplug: malformed bytes_value: %w", errs.ErrDecode)
			}
			m.Value = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Metric{}, fmt.Errorf("sparkplug: malformed metric field %d: %w", num, errs.ErrDecode)
			}
			b = b[n:]
		}
	}
	if !hasTimestamp {
		m.Timestamp = time.Time{}
	}
	return m, nil
}

// EncodePayload encodes metrics to a Sparkplug payload in the given
// format. timestamp defaults to now if zero.
func EncodePayload(metrics []Metric, timestamp time.Time, seq *int, format Format) []byte {
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	if format == FormatJSON {
		return encodeJSON(metrics, timestamp, seq)
	}
	return encodeProtobuf(metrics, timestamp, seq)
}

func encodeProtobuf(metrics []Metric, timestamp time.Time, seq *int) []byte {
	var b []byte
	b = protowire.AppendTag(b, payloadFieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(timestamp.UnixMilli()))

	if seq != nil {
		b = protowire.AppendTag(b, payloadFieldSeq, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*seq))
	}

	for _, m := range metrics {
		mb := encodeMetric(m, timestamp)
		b = protowire.AppendTag(b, payloadFieldMetrics, protowire.BytesType)
		b = protowire.AppendBytes(b, mb)
	}
	return b
}

func encodeMetric(m Metric, messageTimestamp time.Time) []byte {
	var b []byte
	b = protowire.AppendTag(b, metricFieldName, protowire.BytesType)
	b = protowire.AppendString(b, m.Name)

	b = protowire.AppendTag(b, metricFieldDataType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.DataType))

	ts := m.Timestamp
	if ts.IsZero() {
		ts = messageTimestamp
	}
	b = protowire.AppendTag(b, metricFieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(ts.UnixMilli()))

	switch m.DataType.valueKind() {
	case kindInt:
		v, _ := toInt64(m.Value)
		b = protowire.AppendTag(b, metricFieldIntValue, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(v)))
	case kindLong:
		v, _ := toInt64(m.Value)
		b = protowire.AppendTag(b, metricFieldLongValue, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	case kindFloat:
		v, _ := toFloat64(m.Value)
		b = protowire.AppendTag(b, metricFieldFloatValue, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(float32(v)))
	case kindDouble:
		v, _ := toFloat64(m.Value)
		b = protowire.AppendTag(b, metricFieldDoubleValue, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	case kindBool:
		v, _ := m.Value.(bool)
		b = protowire.AppendTag(b, metricFieldBooleanValue, protowire.VarintType)
		if v {
			b = protowire.AppendVarint(b, 1)
		} else {
			b = protowire.AppendVarint(b, 0)
		}
	case kindBytes:
		v, _ := m.Value.([]byte)
		b = protowire.AppendTag(b, metricFieldBytesValue, protowire.BytesType)
		b = protowire.AppendBytes(b, v)
	default: // kindString
		b = protowire.AppendTag(b, metricFieldStringValue, protowire.BytesType)
		b = protowire.AppendString(b, fmt.Sprint(m.Value))
	}
	return b
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return int64(t), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

// jsonPayload mirrors the JSON fallback wire format.
type jsonPayload struct {
	Timestamp int64        `json:"timestamp"`
	Seq       *int         `json:"seq,omitempty"`
	Metrics   []jsonMetric `json:"metrics"`
}

type jsonMetric struct {
	Name       string            `json:"name"`
	Type       string            `json:"type,omitempty"`
	Value      any               `json:"value"`
	Properties map[string]string `json:"properties,omitempty"`
}

func decodeJSON(payload []byte) (decodedPayload, error) {
	var jp jsonPayload
	if err := json.Unmarshal(payload, &jp); err != nil {
		return decodedPayload{}, fmt.Errorf("sparkplug: invalid JSON payload: %w: %w", err, errs.ErrDecode)
	}
	if jp.Timestamp == 0 {
		return decodedPayload{}, fmt.Errorf("sparkplug: JSON payload missing timestamp: %w", errs.ErrDecode)
	}
	if jp.Metrics == nil {
		return decodedPayload{}, fmt.Errorf("sparkplug: JSON payload missing metrics: %w", errs.ErrDecode)
	}

	ts := time.UnixMilli(jp.Timestamp).UTC()
	out := decodedPayload{Timestamp: ts, Seq: jp.Seq}
	for _, jm := range jp.Metrics {
		dt := Float
		if jm.Type != "" {
			dt = DataTypeFromName(jm.Type)
		}
		out.Metrics = append(out.Metrics, Metric{
			Name:       jm.Name,
			Value:      jm.Value,
			DataType:   dt,
			Timestamp:  ts,
			Properties: jm.Properties,
		})
	}
	return out, nil
}

func encodeJSON(metrics []Metric, timestamp time.Time, seq *int) []byte {
	// Metrics is always emitted as an array, even when empty (a death
	// certificate has none), so the payload stays decodable.
	jp := jsonPayload{Timestamp: timestamp.UnixMilli(), Seq: seq, Metrics: []jsonMetric{}}
	for _, m := range metrics {
		jp.Metrics = append(jp.Metrics, jsonMetric{
			Name:       m.Name,
			Type:       m.DataType.String(),
			Value:      m.Value,
			Properties: m.Properties,
		})
	}
	b, _ := json.Marshal(jp)
	return b
}
