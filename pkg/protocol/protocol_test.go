package protocol

import (
	"bytes"
	"testing"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	cases := []Message{
		&JoinRequest{Token: "tok", Mode: JoinModeReconnectQuick},
		&JoinResponse{
			ICEServers: []ICEServer{
				{URLs: []string{"stun:stun.example.com:3478"}},
				{URLs: []string{"turn:turn.example.com:3478"}, Username: "u", Credential: "p"},
			},
			SubscriberPrimary: true,
			ServerVersion:     "1.2.3",
		},
		&Offer{SDP: "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"},
		&Answer{SDP: "v=0\r\n"},
		&Trickle{Candidate: "candidate:1 1 UDP 1 127.0.0.1 1 typ host", Target: TargetSubscriber},
		&Leave{CanReconnect: true},
		&AddTrackRequest{CID: "cid-1", Name: "cam", Type: "video", Source: "camera"},
		&TrackPublishedResponse{CID: "cid-1", Track: TrackInfo{CID: "cid-1", SID: "sid-1", Name: "cam", Type: "video"}},
		&RefreshToken{Token: "new-tok"},
	}

	for _, msg := range cases {
		data, err := Marshal(msg)
		if err != nil {
			t.Fatalf("Marshal(%T): %v", msg, err)
		}
		got, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("Unmarshal(%T): %v", msg, err)
		}
		if got.MessageType() != msg.MessageType() {
			t.Fatalf("MessageType mismatch: got %q want %q", got.MessageType(), msg.MessageType())
		}

		redata, err := Marshal(got)
		if err != nil {
			t.Fatalf("re-Marshal(%T): %v", msg, err)
		}
		if !bytes.Equal(data, redata) {
			t.Fatalf("%T did not round-trip byte-exact:\n  first:  %x\n  second: %x", msg, data, redata)
		}
	}
}

func TestUnmarshalUnknownType(t *testing.T) {
	var b []byte
	b = appendStringField(b, 1, "not_a_real_type")
	if _, err := Unmarshal(b); err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

func TestJoinRequestDefaultsModeToFresh(t *testing.T) {
	data, err := Marshal(&JoinRequest{Token: "tok", Mode: JoinModeFresh})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	jr := got.(*JoinRequest)
	if jr.Mode != JoinModeFresh {
		t.Fatalf("Mode = %q, want %q (proto3 zero value omitted on the wire)", jr.Mode, JoinModeFresh)
	}
}
