package protocol

import (
	"fmt"
	"math"
)

// DataKind tags a DataPacket with the reliability of the channel it
// travelled on.
type DataKind string

const (
	DataKindReliable DataKind = "RELIABLE"
	DataKindLossy    DataKind = "LOSSY"
)

// UserPacket is an application-defined payload sent over a publisher data
// channel.
type UserPacket struct {
	Payload         []byte
	DestinationSIDs []string
	Topic           string
}

func (m *UserPacket) marshalPB() []byte {
	var b []byte
	b = appendBytesField(b, 1, m.Payload)
	for _, sid := range m.DestinationSIDs {
		b = appendStringField(b, 2, sid)
	}
	b = appendStringField(b, 3, m.Topic)
	return b
}

func (m *UserPacket) unmarshalPB(b []byte) error {
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch num {
		case 1:
			if m.Payload, b, err = consumeBytes("UserPacket.payload", b); err != nil {
				return err
			}
		case 2:
			var v string
			if v, b, err = consumeString("UserPacket.destination_sids", b); err != nil {
				return err
			}
			m.DestinationSIDs = append(m.DestinationSIDs, v)
		case 3:
			if m.Topic, b, err = consumeString("UserPacket.topic", b); err != nil {
				return err
			}
		default:
			if b, err = skipField(num, typ, b); err != nil {
				return err
			}
		}
	}
	return nil
}

// SpeakerInfo reports one active speaker's audio level.
type SpeakerInfo struct {
	SID    string
	Level  float32
	Active bool
}

func (m *SpeakerInfo) marshalPB() []byte {
	var b []byte
	b = appendStringField(b, 1, m.SID)
	b = appendFloatField(b, 2, m.Level)
	b = appendBoolField(b, 3, m.Active)
	return b
}

func (m *SpeakerInfo) unmarshalPB(b []byte) error {
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch num {
		case 1:
			if m.SID, b, err = consumeString("SpeakerInfo.sid", b); err != nil {
				return err
			}
		case 2:
			var v uint32
			if v, b, err = consumeFixed32("SpeakerInfo.level", b); err != nil {
				return err
			}
			m.Level = math.Float32frombits(v)
		case 3:
			var v uint64
			if v, b, err = consumeVarint("SpeakerInfo.active", b); err != nil {
				return err
			}
			m.Active = v != 0
		default:
			if b, err = skipField(num, typ, b); err != nil {
				return err
			}
		}
	}
	return nil
}

// SpeakerUpdate carries the current set of active speakers.
type SpeakerUpdate struct {
	Speakers []SpeakerInfo
}

func (m *SpeakerUpdate) marshalPB() []byte {
	var b []byte
	for i := range m.Speakers {
		b = appendMessageField(b, 1, m.Speakers[i].marshalPB())
	}
	return b
}

func (m *SpeakerUpdate) unmarshalPB(b []byte) error {
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch num {
		case 1:
			var body []byte
			if body, b, err = consumeBytes("SpeakerUpdate.speakers", b); err != nil {
				return err
			}
			var s SpeakerInfo
			if err := s.unmarshalPB(body); err != nil {
				return err
			}
			m.Speakers = append(m.Speakers, s)
		default:
			if b, err = skipField(num, typ, b); err != nil {
				return err
			}
		}
	}
	return nil
}

// DataPacket is the oneof-style envelope carried over the "_reliable" and
// "_lossy" publisher data channels. Exactly one of User or Speaker is set;
// Kind must match the channel the packet travelled on.
type DataPacket struct {
	Kind    DataKind
	User    *UserPacket
	Speaker *SpeakerUpdate
}

func (m *DataPacket) marshalPB() []byte {
	var b []byte
	b = appendEnumField(b, 1, dataKindToWire[m.Kind])
	if m.User != nil {
		b = appendMessageField(b, 2, m.User.marshalPB())
	}
	if m.Speaker != nil {
		b = appendMessageField(b, 3, m.Speaker.marshalPB())
	}
	return b
}

func (m *DataPacket) unmarshalPB(b []byte) error {
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch num {
		case 1:
			var v uint64
			if v, b, err = consumeVarint("DataPacket.kind", b); err != nil {
				return err
			}
			m.Kind = wireToDataKind[int32(v)]
		case 2:
			var body []byte
			if body, b, err = consumeBytes("DataPacket.user", b); err != nil {
				return err
			}
			m.User = &UserPacket{}
			if err := m.User.unmarshalPB(body); err != nil {
				return err
			}
		case 3:
			var body []byte
			if body, b, err = consumeBytes("DataPacket.speaker", b); err != nil {
				return err
			}
			m.Speaker = &SpeakerUpdate{}
			if err := m.Speaker.unmarshalPB(body); err != nil {
				return err
			}
		default:
			if b, err = skipField(num, typ, b); err != nil {
				return err
			}
		}
	}
	if m.Kind == "" {
		m.Kind = DataKindReliable
	}
	return nil
}

// SerializeDataPacket encodes a DataPacket for transmission on a data
// channel, byte-identical to a direct protobuf encoding of the same fields.
func SerializeDataPacket(p *DataPacket) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("serializing data packet: nil packet")
	}
	return p.marshalPB(), nil
}

// ParseDataPacket decodes a frame received on a data channel. Unknown
// fields are skipped for forward compatibility; callers should treat a
// DataPacket with neither User nor Speaker set as an unknown variant and
// ignore it silently, per the wire contract.
func ParseDataPacket(data []byte) (*DataPacket, error) {
	var p DataPacket
	if err := p.unmarshalPB(data); err != nil {
		return nil, fmt.Errorf("parsing data packet: %w", err)
	}
	return &p, nil
}
