package pipeline

import (
	"github.com/wattcap/wattcap/internal/event"
)

// Ports. Fixed constants per the external interface contract.
const (
	PortUDP       = 3022 // game UDP
	PortTCP       = 3023 // game TCP
	PortCompanion = 21587
)

// Lane identifiers for the three TCP reassembly lanes.
const (
	LaneGameInbound         = "game-inbound"
	LaneCompanionOutbound   = "companion-outbound" // companion app -> desktop
	LaneCompanionInbound    = "companion-inbound"  // desktop -> companion app
)

// Segment is one TCP/UDP packet's payload as handed to the demultiplexer,
// already parsed down to its L3/L4 essentials.
type Segment struct {
	Proto      string // "tcp" or "udp"
	SrcPort    uint16
	DstPort    uint16
	Payload    []byte
	CaptureMs  int64
}

// Demux routes a classified segment/datagram to its destination: either
// a TCP lane ID (for reassembly) or directly to the UDP path.
type Demux struct {
	onTCP func(laneID string, dir event.Direction, payload []byte, captureMs int64)
	onUDP func(dir event.Direction, payload []byte, captureMs int64)
}

func NewDemux(
	onTCP func(laneID string, dir event.Direction, payload []byte, captureMs int64),
	onUDP func(dir event.Direction, payload []byte, captureMs int64),
) *Demux {
	return &Demux{onTCP: onTCP, onUDP: onUDP}
}

// Dispatch classifies one segment by (protocol, port) into one of five
// lanes. Segments matching none of the rules are dropped silently.
func (d *Demux) Dispatch(s Segment) {
	switch s.Proto {
	case "tcp":
		switch {
		case s.SrcPort == PortTCP:
			d.onTCP(LaneGameInbound, event.Inbound, s.Payload, s.CaptureMs)
		case s.DstPort == PortTCP:
			// handshake/ACK-only traffic to the game server never carries
			// payload worth reassembling.
			return
		case s.SrcPort == PortCompanion:
			d.onTCP(LaneCompanionOutbound, event.Outbound, s.Payload, s.CaptureMs)
		case s.DstPort == PortCompanion:
			d.onTCP(LaneCompanionInbound, event.Inbound, s.Payload, s.CaptureMs)
		}
	case "udp":
		switch {
		case s.SrcPort == PortUDP:
			d.onUDP(event.Inbound, s.Payload, s.CaptureMs)
		case s.DstPort == PortUDP:
			d.onUDP(event.Outbound, s.Payload, s.CaptureMs)
		}
	}
}
