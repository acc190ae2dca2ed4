// Package protocol defines the signaling messages exchanged between the
// session engine and a selective-forwarding media server, and the data
// packets exchanged over the publisher's data channels.
//
// Every message is a length-delimited protobuf frame: an Envelope carrying
// a type discriminator and the message's own protobuf-encoded body. This
// package is intentionally free of dependencies beyond the protobuf wire
// format itself, so it can be reused by anything that needs to speak the
// wire format without pulling in the engine.
package protocol

import "fmt"

// Message is the interface implemented by all signaling protocol messages.
// Each message type corresponds to one Envelope payload tagged with a type
// discriminator string.
type Message interface {
	// MessageType returns the wire-format type string (e.g. "join_response", "offer").
	MessageType() string
}

// Target names which peer connection a Trickle candidate or stat report
// belongs to.
type Target string

const (
	TargetPublisher  Target = "publisher"
	TargetSubscriber Target = "subscriber"
)

// JoinMode tells the server whether this join starts a fresh session or
// resumes an existing one after a reconnect.
type JoinMode string

const (
	JoinModeFresh          JoinMode = "fresh"
	JoinModeReconnectQuick JoinMode = "reconnect_quick"
	JoinModeReconnectFull  JoinMode = "reconnect_full"
)

// ICEServer mirrors a WebRTC ICE server descriptor as carried over the wire.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

func (m *ICEServer) marshalPB() []byte {
	var b []byte
	for _, u := range m.URLs {
		b = appendStringField(b, 1, u)
	}
	b = appendStringField(b, 2, m.Username)
	b = appendStringField(b, 3, m.Credential)
	return b
}

func (m *ICEServer) unmarshalPB(b []byte) error {
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch num {
		case 1:
			var v string
			if v, b, err = consumeString("ICEServer.urls", b); err != nil {
				return err
			}
			m.URLs = append(m.URLs, v)
		case 2:
			if m.Username, b, err = consumeString("ICEServer.username", b); err != nil {
				return err
			}
		case 3:
			if m.Credential, b, err = consumeString("ICEServer.credential", b); err != nil {
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

// TrackInfo describes a track the server has accepted for publishing.
type TrackInfo struct {
	CID    string
	SID    string
	Name   string
	Type   string
	Source string
	Muted  bool
}

func (m *TrackInfo) marshalPB() []byte {
	var b []byte
	b = appendStringField(b, 1, m.CID)
	b = appendStringField(b, 2, m.SID)
	b = appendStringField(b, 3, m.Name)
	b = appendStringField(b, 4, m.Type)
	b = appendStringField(b, 5, m.Source)
	b = appendBoolField(b, 6, m.Muted)
	return b
}

func (m *TrackInfo) unmarshalPB(b []byte) error {
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch num {
		case 1:
			if m.CID, b, err = consumeString("TrackInfo.cid", b); err != nil {
				return err
			}
		case 2:
			if m.SID, b, err = consumeString("TrackInfo.sid", b); err != nil {
				return err
			}
		case 3:
			if m.Name, b, err = consumeString("TrackInfo.name", b); err != nil {
				return err
			}
		case 4:
			if m.Type, b, err = consumeString("TrackInfo.type", b); err != nil {
				return err
			}
		case 5:
			if m.Source, b, err = consumeString("TrackInfo.source", b); err != nil {
				return err
			}
		case 6:
			var v uint64
			if v, b, err = consumeVarint("TrackInfo.muted", b); err != nil {
				return err
			}
			m.Muted = v != 0
		default:
			if b, err = skipField(num, typ, b); err != nil {
				return err
			}
		}
	}
	return nil
}

// JoinRequest is the first frame the client sends on a signaling connection,
// fresh or reconnecting.
type JoinRequest struct {
	Token string
	Mode  JoinMode
}

func (JoinRequest) MessageType() string { return "join_request" }

func (m *JoinRequest) marshalPB() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Token)
	b = appendEnumField(b, 2, joinModeToWire[m.Mode])
	return b
}

func (m *JoinRequest) unmarshalPB(b []byte) error {
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch num {
		case 1:
			if m.Token, b, err = consumeString("JoinRequest.token", b); err != nil {
				return err
			}
		case 2:
			var v uint64
			if v, b, err = consumeVarint("JoinRequest.mode", b); err != nil {
				return err
			}
			m.Mode = wireToJoinMode[int32(v)]
		default:
			if b, err = skipField(num, typ, b); err != nil {
				return err
			}
		}
	}
	if m.Mode == "" {
		m.Mode = JoinModeFresh
	}
	return nil
}

// JoinResponse is the first frame the server sends after a successful join.
type JoinResponse struct {
	ICEServers        []ICEServer
	SubscriberPrimary bool
	ServerVersion     string
}

func (JoinResponse) MessageType() string { return "join_response" }

func (m *JoinResponse) marshalPB() []byte {
	var b []byte
	for i := range m.ICEServers {
		b = appendMessageField(b, 1, m.ICEServers[i].marshalPB())
	}
	b = appendBoolField(b, 2, m.SubscriberPrimary)
	b = appendStringField(b, 3, m.ServerVersion)
	return b
}

func (m *JoinResponse) unmarshalPB(b []byte) error {
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch num {
		case 1:
			var body []byte
			if body, b, err = consumeBytes("JoinResponse.ice_servers", b); err != nil {
				return err
			}
			var server ICEServer
			if err := server.unmarshalPB(body); err != nil {
				return err
			}
			m.ICEServers = append(m.ICEServers, server)
		case 2:
			var v uint64
			if v, b, err = consumeVarint("JoinResponse.subscriber_primary", b); err != nil {
				return err
			}
			m.SubscriberPrimary = v != 0
		case 3:
			if m.ServerVersion, b, err = consumeString("JoinResponse.server_version", b); err != nil {
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

// Offer carries an SDP offer: the server sends one to negotiate the
// subscriber transport, and the client sends the publisher transport's.
type Offer struct {
	SDP string
}

func (Offer) MessageType() string { return "offer" }

func (m *Offer) marshalPB() []byte { return appendStringField(nil, 1, m.SDP) }

func (m *Offer) unmarshalPB(b []byte) error { return unmarshalSingleSDP(&m.SDP, "Offer.sdp", b) }

// Answer carries an SDP answer: the server answers the publisher
// transport's offer, and the client sends the subscriber transport's.
type Answer struct {
	SDP string
}

func (Answer) MessageType() string { return "answer" }

func (m *Answer) marshalPB() []byte { return appendStringField(nil, 1, m.SDP) }

func (m *Answer) unmarshalPB(b []byte) error { return unmarshalSingleSDP(&m.SDP, "Answer.sdp", b) }

func unmarshalSingleSDP(dst *string, field string, b []byte) error {
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		if num == 1 {
			if *dst, b, err = consumeString(field, b); err != nil {
				return err
			}
			continue
		}
		if b, err = skipField(num, typ, b); err != nil {
			return err
		}
	}
	return nil
}

// Trickle carries a single ICE candidate for one of the two transports.
type Trickle struct {
	Candidate string
	Target    Target
}

func (Trickle) MessageType() string { return "trickle" }

func (m *Trickle) marshalPB() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Candidate)
	b = appendEnumField(b, 2, targetToWire[m.Target])
	return b
}

func (m *Trickle) unmarshalPB(b []byte) error {
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch num {
		case 1:
			if m.Candidate, b, err = consumeString("Trickle.candidate", b); err != nil {
				return err
			}
		case 2:
			var v uint64
			if v, b, err = consumeVarint("Trickle.target", b); err != nil {
				return err
			}
			m.Target = wireToTarget[int32(v)]
		default:
			if b, err = skipField(num, typ, b); err != nil {
				return err
			}
		}
	}
	if m.Target == "" {
		m.Target = TargetPublisher
	}
	return nil
}

// Leave tells the client the session is ending, optionally permitting
// reconnection.
type Leave struct {
	CanReconnect bool
}

func (Leave) MessageType() string { return "leave" }

func (m *Leave) marshalPB() []byte { return appendBoolField(nil, 1, m.CanReconnect) }

func (m *Leave) unmarshalPB(b []byte) error {
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		if num == 1 {
			var v uint64
			if v, b, err = consumeVarint("Leave.can_reconnect", b); err != nil {
				return err
			}
			m.CanReconnect = v != 0
			continue
		}
		if b, err = skipField(num, typ, b); err != nil {
			return err
		}
	}
	return nil
}

// AddTrackRequest asks the server to accept a new published track.
type AddTrackRequest struct {
	CID    string
	Name   string
	Type   string
	Source string
}

func (AddTrackRequest) MessageType() string { return "add_track_request" }

func (m *AddTrackRequest) marshalPB() []byte {
	var b []byte
	b = appendStringField(b, 1, m.CID)
	b = appendStringField(b, 2, m.Name)
	b = appendStringField(b, 3, m.Type)
	b = appendStringField(b, 4, m.Source)
	return b
}

func (m *AddTrackRequest) unmarshalPB(b []byte) error {
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch num {
		case 1:
			if m.CID, b, err = consumeString("AddTrackRequest.cid", b); err != nil {
				return err
			}
		case 2:
			if m.Name, b, err = consumeString("AddTrackRequest.name", b); err != nil {
				return err
			}
		case 3:
			if m.Type, b, err = consumeString("AddTrackRequest.type", b); err != nil {
				return err
			}
		case 4:
			if m.Source, b, err = consumeString("AddTrackRequest.source", b); err != nil {
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

// TrackPublishedResponse answers a prior AddTrackRequest by cid.
type TrackPublishedResponse struct {
	CID   string
	Track TrackInfo
}

func (TrackPublishedResponse) MessageType() string { return "track_published_response" }

func (m *TrackPublishedResponse) marshalPB() []byte {
	var b []byte
	b = appendStringField(b, 1, m.CID)
	b = appendMessageField(b, 2, m.Track.marshalPB())
	return b
}

func (m *TrackPublishedResponse) unmarshalPB(b []byte) error {
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch num {
		case 1:
			if m.CID, b, err = consumeString("TrackPublishedResponse.cid", b); err != nil {
				return err
			}
		case 2:
			var body []byte
			if body, b, err = consumeBytes("TrackPublishedResponse.track", b); err != nil {
				return err
			}
			if err := m.Track.unmarshalPB(body); err != nil {
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

// RefreshToken delivers a rotated session token.
type RefreshToken struct {
	Token string
}

func (RefreshToken) MessageType() string { return "refresh_token" }

func (m *RefreshToken) marshalPB() []byte { return appendStringField(nil, 1, m.Token) }

func (m *RefreshToken) unmarshalPB(b []byte) error {
	return unmarshalSingleSDP(&m.Token, "RefreshToken.token", b)
}

// messageTypes maps wire-format type strings to factory functions
// that produce zero-value pointers of the corresponding message type.
var messageTypes = map[string]func() Message{
	"join_request":             func() Message { return &JoinRequest{} },
	"join_response":            func() Message { return &JoinResponse{} },
	"offer":                    func() Message { return &Offer{} },
	"answer":                   func() Message { return &Answer{} },
	"trickle":                  func() Message { return &Trickle{} },
	"leave":                    func() Message { return &Leave{} },
	"add_track_request":        func() Message { return &AddTrackRequest{} },
	"track_published_response": func() Message { return &TrackPublishedResponse{} },
	"refresh_token":            func() Message { return &RefreshToken{} },
}

// pbMessage is implemented by every concrete Message above; it is kept
// unexported so Message itself stays a one-method interface for consumers
// that only need to read MessageType().
type pbMessage interface {
	marshalPB() []byte
}

type pbUnmarshaler interface {
	unmarshalPB([]byte) error
}

// Marshal serializes a Message to a protobuf-encoded Envelope frame: field 1
// is the type discriminator, field 2 is the message's own protobuf body.
func Marshal(msg Message) ([]byte, error) {
	pm, ok := msg.(pbMessage)
	if !ok {
		return nil, fmt.Errorf("protocol: %T has no protobuf codec", msg)
	}
	var b []byte
	b = appendStringField(b, 1, msg.MessageType())
	b = appendMessageField(b, 2, pm.marshalPB())
	return b, nil
}

// Unmarshal deserializes a protobuf-encoded Envelope frame, using the type
// discriminator to decode the payload into the correct concrete Message.
func Unmarshal(data []byte) (Message, error) {
	var typ string
	var body []byte
	b := data
	for len(b) > 0 {
		num, wtyp, rest, err := consumeTag(b)
		if err != nil {
			return nil, fmt.Errorf("decoding message envelope: %w", err)
		}
		b = rest
		switch num {
		case 1:
			if typ, b, err = consumeString("Envelope.type", b); err != nil {
				return nil, err
			}
		case 2:
			if body, b, err = consumeBytes("Envelope.payload", b); err != nil {
				return nil, err
			}
		default:
			if b, err = skipField(num, wtyp, b); err != nil {
				return nil, err
			}
		}
	}

	factory, ok := messageTypes[typ]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %q", typ)
	}
	msg := factory()
	if um, ok := msg.(pbUnmarshaler); ok && len(body) > 0 {
		if err := um.unmarshalPB(body); err != nil {
			return nil, fmt.Errorf("decoding %q message: %w", typ, err)
		}
	}
	return msg, nil
}
