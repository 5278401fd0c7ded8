package sparkplug

import "time"

// DataType is a Sparkplug-B metric datatype.
type DataType int

const (
	Int8     DataType = 1
	Int16    DataType = 2
	Int32    DataType = 3
	Int64    DataType = 4
	UInt8    DataType = 5
	UInt16   DataType = 6
	UInt32   DataType = 7
	UInt64   DataType = 8
	Float    DataType = 9
	Double   DataType = 10
	Boolean  DataType = 11
	String   DataType = 12
	DateTime DataType = 13
	Text     DataType = 14
	UUID     DataType = 15
	Bytes    DataType = 17
	File     DataType = 18
)

var dataTypeNames = map[DataType]string{
	Int8: "Int8", Int16: "Int16", Int32: "Int32", Int64: "Int64",
	UInt8: "UInt8", UInt16: "UInt16", UInt32: "UInt32", UInt64: "UInt64",
	Float: "Float", Double: "Double", Boolean: "Boolean", String: "String",
	DateTime: "DateTime", Text: "Text", UUID: "UUID", Bytes: "Bytes", File: "File",
}

var dataTypeByName = func() map[string]DataType {
	m := make(map[string]DataType, len(dataTypeNames))
	for k, v := range dataTypeNames {
		m[v] = k
	}
	return m
}()

// String returns the Sparkplug type name, or "Float" for an
// unrecognized enumerant.
func (d DataType) String() string {
	if name, ok := dataTypeNames[d]; ok {
		return name
	}
	return "Float"
}

// DataTypeFromName resolves a type name back to its enumerant, defaulting
// to Float for unknown names.
func DataTypeFromName(name string) DataType {
	if dt, ok := dataTypeByName[name]; ok {
		return dt
	}
	return Float
}

// valueKind buckets a DataType into the wire representation its value
// oneof uses.
type valueKind int

const (
	kindInt valueKind = iota
	kindLong
	kindFloat
	kindDouble
	kindBool
	kindString
	kindBytes
)

func (d DataType) valueKind() valueKind {
	switch d {
	case Int8, Int16, Int32, UInt8, UInt16, UInt32:
		return kindInt
	case Int64, UInt64, DateTime:
		return kindLong
	case Float:
		return kindFloat
	case Double:
		return kindDouble
	case Boolean:
		return kindBool
	case String, Text, UUID:
		return kindString
	case Bytes, File:
		return kindBytes
	default:
		return kindFloat
	}
}

// Metric is a single Sparkplug name/value/type tuple.
type Metric struct {
	Name       string
	Value      any
	DataType   DataType
	Timestamp  time.Time // zero means "use the message timestamp"
	Properties map[string]string
}
