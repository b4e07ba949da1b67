package pipeline

import (
	"github.com/pkg/errors"

	"github.com/wattcap/wattcap/internal/event"
)

// ErrMalformedUDPFrame is returned when a UDP datagram is too short to
// contain its own skip header and trailer.
var ErrMalformedUDPFrame = errors.New("malformed UDP frame: shorter than skip+trailer")

// StripUDPEnvelope converts a UDP datagram's payload into a bare protobuf
// byte slice. Inbound datagrams (from the game server, src_port ==
// P_UDP) are already bare and pass through unchanged. Outbound datagrams
// (to the game server) are wrapped in a short variable-length header
// followed by a 4-byte opaque trailer (a hash/MAC, discarded).
//
// This heuristic is an empirically-derived compatibility contract; it must
// be reproduced exactly, never "simplified":
//
//	default skip = 5
//	if p[5] == 0x08, skip stays 5   (typical: 5-byte header, tag 0x08 at offset 5)
//	else if p[0] == 0x08, skip = 0  (no header, protobuf at offset 0)
//	else skip = p[0] - 1            (first byte encodes the header length)
func StripUDPEnvelope(p []byte, dir event.Direction) ([]byte, error) {
	if dir == event.Inbound {
		return p, nil
	}

	skip := 5
	if len(p) > 5 && p[5] == 0x08 {
		skip = 5
	} else if len(p) > 0 && p[0] == 0x08 {
		skip = 0
	} else if len(p) > 0 {
		skip = int(p[0]) - 1
	}

	if skip < 0 || len(p) < skip+4 {
		return nil, ErrMalformedUDPFrame
	}

	return p[skip : len(p)-4], nil
}
