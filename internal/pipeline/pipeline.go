// Package pipeline implements the packet ingestion and decoding core:
// frame source handling, L3/L4 demultiplexing, per-lane TCP reassembly,
// UDP envelope stripping, and dispatch into the game/companion decoders.
package pipeline

import (
	"time"

	"github.com/google/gopacket"

	"github.com/wattcap/wattcap/internal/diag"
	"github.com/wattcap/wattcap/internal/event"
	"github.com/wattcap/wattcap/printer"
)

// Pipeline wires together C2 through C7 around a single capture session.
// It owns the three TCP lane reassemblers and both protocol decoders, and
// runs entirely on the calling goroutine -- no two stages ever run
// concurrently within one Pipeline.
type Pipeline struct {
	Router *event.Router
	Diag   diag.Sink

	game      *GameDecoder
	companion *CompanionDecoder
	demux     *Demux

	gameInboundLane       *Reassembler
	companionOutboundLane *Reassembler
	companionInboundLane  *Reassembler
}

// New constructs a Pipeline. If sink is nil, a no-op sink is used.
func New(router *event.Router, sink diag.Sink) *Pipeline {
	if sink == nil {
		sink = diag.Nop{}
	}

	p := &Pipeline{
		Router: router,
		Diag:   sink,
		game:   &GameDecoder{Router: router, Diag: sink},
		companion: &CompanionDecoder{
			Router: router,
			Diag:   sink,
		},
	}

	p.gameInboundLane = NewReassembler(LaneGameInbound, p.onGameInboundPayload)
	p.companionOutboundLane = NewReassembler(LaneCompanionOutbound, p.onCompanionOutboundPayload)
	p.companionInboundLane = NewReassembler(LaneCompanionInbound, p.onCompanionInboundPayload)

	p.demux = NewDemux(p.onTCPSegment, p.onUDPDatagram)
	return p
}

func (p *Pipeline) onTCPSegment(laneID string, dir event.Direction, payload []byte, captureMs int64) {
	switch laneID {
	case LaneGameInbound:
		p.gameInboundLane.Feed(payload, captureMs)
	case LaneCompanionOutbound:
		p.companionOutboundLane.Feed(payload, captureMs)
	case LaneCompanionInbound:
		p.companionInboundLane.Feed(payload, captureMs)
	}
}

func (p *Pipeline) onUDPDatagram(dir event.Direction, payload []byte, captureMs int64) {
	body, err := StripUDPEnvelope(payload, dir)
	if err != nil {
		printer.Stderr.Debugf("udp %s: %v\n", dir, err)
		return
	}
	if dir == event.Outbound {
		p.game.DecodeOutbound(body, 0)
	} else {
		p.game.DecodeInbound(body, 0)
	}
}

func (p *Pipeline) onGameInboundPayload(lp LanePayload) {
	p.game.DecodeInbound(lp.Bytes, lp.SequenceNr)
}

func (p *Pipeline) onCompanionOutboundPayload(lp LanePayload) {
	p.companion.DecodeOutbound(lp.Bytes, lp.SequenceNr)
}

func (p *Pipeline) onCompanionInboundPayload(lp LanePayload) {
	p.companion.DecodeInbound(lp.Bytes, lp.SequenceNr)
}

// HandlePacket extracts a Segment from a captured packet and runs it
// through the demultiplexer. Packets matching none of the five lanes are
// dropped silently.
func (p *Pipeline) HandlePacket(packet gopacket.Packet, epoch time.Time) {
	captureMs := packet.Metadata().Timestamp.Sub(epoch).Milliseconds()
	seg, ok := SegmentFromPacket(packet, captureMs)
	if !ok {
		return
	}
	p.demux.Dispatch(seg)
}

// Reset forces all three TCP lanes back to Fresh state, discarding any
// in-flight reassembly. Used on session Stop: in-flight buffers are never
// flushed.
func (p *Pipeline) Reset() {
	p.gameInboundLane.Reset()
	p.companionOutboundLane.Reset()
	p.companionInboundLane.Reset()
}

// LaneStats returns a snapshot of every TCP lane's lifetime counters, keyed
// by lane id. Introspection only -- the CLI's periodic stats log line is the
// only consumer.
func (p *Pipeline) LaneStats() map[string]LaneStats {
	return map[string]LaneStats{
		LaneGameInbound:       p.gameInboundLane.Stats(),
		LaneCompanionOutbound: p.companionOutboundLane.Stats(),
		LaneCompanionInbound:  p.companionInboundLane.Stats(),
	}
}
