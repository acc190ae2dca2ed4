package rtc

import "github.com/pion/webrtc/v4"

// Data channel labels are wire-compatible constants: the server and every
// client must agree on these exact bytes.
const (
	ReliableDataChannelLabel = "_reliable"
	LossyDataChannelLabel    = "_lossy"
)

// ReliableDataChannelConfig returns the ordered, unlimited-retransmit
// configuration for the "_reliable" publisher data channel.
func ReliableDataChannelConfig() *webrtc.DataChannelInit {
	ordered := true
	return &webrtc.DataChannelInit{
		Ordered: &ordered,
		// MaxRetransmits left nil: unset means unlimited retransmits.
	}
}

// LossyDataChannelConfig returns the ordered, zero-retransmit configuration
// for the "_lossy" publisher data channel.
func LossyDataChannelConfig() *webrtc.DataChannelInit {
	ordered := true
	maxRetransmits := uint16(0)
	return &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
	}
}
