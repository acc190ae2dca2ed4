package turn

import (
	"time"

	"github.com/kuuji/pulsewire/pkg/protocol"
)

// Refresher recomputes TURN REST credentials for a fixed set of TURN server
// URLs, keyed by a shared secret held by the engine's operator.
type Refresher struct {
	Secret   string
	Lifetime time.Duration
}

// Refresh returns a copy of servers with fresh TURN credentials applied to
// every entry whose URL scheme is "turn" or "turns". STUN-only entries pass
// through unchanged. peerID identifies the requesting session for the
// REST API username convention.
func (r *Refresher) Refresh(servers []protocol.ICEServer, peerID string) []protocol.ICEServer {
	out := make([]protocol.ICEServer, len(servers))
	for i, s := range servers {
		out[i] = s
		if !hasTURNURL(s.URLs) {
			continue
		}
		username, password := GenerateCredentials(r.Secret, peerID, r.Lifetime)
		out[i].Username = username
		out[i].Credential = password
	}
	return out
}

func hasTURNURL(urls []string) bool {
	for _, u := range urls {
		if len(u) >= 4 && (u[:4] == "turn") {
			return true
		}
	}
	return false
}
