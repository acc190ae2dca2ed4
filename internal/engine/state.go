package engine

import "github.com/kuuji/pulsewire/internal/enginerr"

// ReconnectMode distinguishes how a (re)connection was or is being
// established.
type ReconnectMode int

const (
	ReconnectNone ReconnectMode = iota
	ReconnectQuick
	ReconnectFull
)

func (m ReconnectMode) String() string {
	switch m {
	case ReconnectQuick:
		return "quick"
	case ReconnectFull:
		return "full"
	default:
		return "normal"
	}
}

// stateTag identifies the coarse phase of a ConnectionState, ignoring the
// associated ReconnectMode. Gating checks ("are we already connected?")
// compare tags; change-detection compares the full State via Equal.
type stateTag int

const (
	tagDisconnected stateTag = iota
	tagConnecting
	tagConnected
)

// DisconnectReason explains why the engine transitioned to Disconnected.
type DisconnectReason struct {
	Kind DisconnectKind
	// Err carries the underlying error when the disconnect was caused by
	// one (a network failure, or a transport set-up failure reported as
	// DisconnectSDK); it is nil for a user Disconnect or a server leave.
	Err error
}

type DisconnectKind int

const (
	DisconnectSDK DisconnectKind = iota
	DisconnectNetwork
	DisconnectUser
	DisconnectServerLeave
)

func (k DisconnectKind) String() string {
	switch k {
	case DisconnectNetwork:
		return "network"
	case DisconnectUser:
		return "user"
	case DisconnectServerLeave:
		return "server_leave"
	default:
		return "sdk"
	}
}

// State is the tagged ConnectionState variant described in §3: Disconnected
// carries a reason; Connecting and Connected both carry a ReconnectMode.
type State struct {
	tag    stateTag
	Reason DisconnectReason // meaningful only when tag == tagDisconnected
	Mode   ReconnectMode    // meaningful only when tag != tagDisconnected
}

// Disconnected constructs a terminal/initial state.
func Disconnected(reason DisconnectReason) State {
	return State{tag: tagDisconnected, Reason: reason}
}

// Connecting constructs a Connecting(mode) state.
func Connecting(mode ReconnectMode) State {
	return State{tag: tagConnecting, Mode: mode}
}

// Connected constructs a Connected(mode) state.
func Connected(mode ReconnectMode) State {
	return State{tag: tagConnected, Mode: mode}
}

func (s State) IsDisconnected() bool { return s.tag == tagDisconnected }
func (s State) IsConnecting() bool   { return s.tag == tagConnecting }
func (s State) IsConnected() bool    { return s.tag == tagConnected }
func (s State) IsReconnecting() bool { return s.tag == tagConnecting && s.Mode != ReconnectNone }

// EqualTag reports gating equality: same coarse phase, ignoring Mode/Reason.
// Used for checks like "already connected".
func (s State) EqualTag(o State) bool { return s.tag == o.tag }

// Equal reports deep equality, used for change detection: a transition from
// Connecting(Reconnect(Quick)) to Connecting(Reconnect(Full)) must still be
// treated as a change even though both are "Connecting".
func (s State) Equal(o State) bool {
	if s.tag != o.tag {
		return false
	}
	if s.tag == tagDisconnected {
		return s.Reason.Kind == o.Reason.Kind
	}
	return s.Mode == o.Mode
}

func (s State) String() string {
	switch s.tag {
	case tagConnecting:
		return "connecting(" + s.Mode.String() + ")"
	case tagConnected:
		return "connected(" + s.Mode.String() + ")"
	default:
		return "disconnected(" + s.Reason.Kind.String() + ")"
	}
}

// Reliability selects which publisher data channel a packet travels on.
type Reliability int

const (
	Reliable Reliability = iota
	Lossy
)

// stateErr builds a KindState engine error for invariant violations (e.g.
// sending before the publisher exists, reconnecting while already
// reconnecting).
func stateErr(op, msg string) error {
	return enginerr.New(enginerr.KindState, op, errString(msg))
}

type errString string

func (e errString) Error() string { return string(e) }
