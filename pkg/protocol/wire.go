package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// This package hand-writes its protobuf marshal/unmarshal code against
// protowire, the low-level wire-format primitives underneath
// google.golang.org/protobuf's generated code, instead of depending on
// .proto-generated types. Each message below plays the role a protoc-gen-go
// struct would: a fixed field-number table, proto3 zero-value omission on
// encode, and unknown-field skipping on decode.

func consumeTag(b []byte) (num protowire.Number, typ protowire.Type, rest []byte, err error) {
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return 0, 0, nil, protowire.ParseError(n)
	}
	return num, typ, b[n:], nil
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendEnumField(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(uint32(v)))
}

func appendFloatField(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendMessageField(b []byte, num protowire.Number, body []byte) []byte {
	if body == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func consumeString(field string, b []byte) (string, []byte, error) {
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", nil, fmt.Errorf("decoding %s: %w", field, protowire.ParseError(n))
	}
	return v, b[n:], nil
}

func consumeBytes(field string, b []byte) ([]byte, []byte, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, nil, fmt.Errorf("decoding %s: %w", field, protowire.ParseError(n))
	}
	return v, b[n:], nil
}

func consumeVarint(field string, b []byte) (uint64, []byte, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, nil, fmt.Errorf("decoding %s: %w", field, protowire.ParseError(n))
	}
	return v, b[n:], nil
}

func consumeFixed32(field string, b []byte) (uint32, []byte, error) {
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return 0, nil, fmt.Errorf("decoding %s: %w", field, protowire.ParseError(n))
	}
	return v, b[n:], nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return nil, fmt.Errorf("skipping field %d: %w", num, protowire.ParseError(n))
	}
	return b[n:], nil
}

// joinModeWire/target wire enums. The exported Go API keeps these as
// strings; only the wire encoding uses small integers.
const (
	wireModeFresh = int32(iota)
	wireModeReconnectQuick
	wireModeReconnectFull
)

var joinModeToWire = map[JoinMode]int32{
	JoinModeFresh:          wireModeFresh,
	JoinModeReconnectQuick: wireModeReconnectQuick,
	JoinModeReconnectFull:  wireModeReconnectFull,
}

var wireToJoinMode = map[int32]JoinMode{
	wireModeFresh:          JoinModeFresh,
	wireModeReconnectQuick: JoinModeReconnectQuick,
	wireModeReconnectFull:  JoinModeReconnectFull,
}

const (
	wireTargetPublisher = int32(iota)
	wireTargetSubscriber
)

var targetToWire = map[Target]int32{
	TargetPublisher:  wireTargetPublisher,
	TargetSubscriber: wireTargetSubscriber,
}

var wireToTarget = map[int32]Target{
	wireTargetPublisher:  TargetPublisher,
	wireTargetSubscriber: TargetSubscriber,
}

const (
	wireKindReliable = int32(iota)
	wireKindLossy
)

var dataKindToWire = map[DataKind]int32{
	DataKindReliable: wireKindReliable,
	DataKindLossy:    wireKindLossy,
}

var wireToDataKind = map[int32]DataKind{
	wireKindReliable: DataKindReliable,
	wireKindLossy:    DataKindLossy,
}
