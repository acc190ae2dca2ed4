// Package enginerr defines the closed set of error kinds the session engine
// uses to decide how a failure should be handled (retried, surfaced as a
// disconnect, or ignored).
package enginerr

import "errors"

// Kind classifies an engine error for dispatch purposes. The set is closed —
// callers switch exhaustively on it rather than string-matching messages.
type Kind int

const (
	// KindUnknown is never produced by this package; it is the zero value
	// returned by Of when the error carries no Kind.
	KindUnknown Kind = iota

	// KindState means an operation was attempted from a ConnectionState that
	// does not permit it (e.g. Send before Connected).
	KindState

	// KindTimeout means a Completer wait reached its deadline.
	KindTimeout

	// KindWebRTC means a failure originated in ICE/SDP negotiation or a
	// peer connection/data channel.
	KindWebRTC

	// KindNetwork means the signaling socket or transport link failed.
	KindNetwork

	// KindCancelled means the caller's context was cancelled.
	KindCancelled

	// KindAborted means a reconnection sequence exhausted its retry budget.
	KindAborted
)

func (k Kind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindTimeout:
		return "timeout"
	case KindWebRTC:
		return "webrtc"
	case KindNetwork:
		return "network"
	case KindCancelled:
		return "cancelled"
	case KindAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Error is an engine error tagged with a Kind, wrapping an underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind and the operation name that observed it. If err
// is nil, New returns nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Of extracts the Kind from err, walking the Unwrap chain. It returns
// KindUnknown if err is nil or carries no *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}
