package pipeline

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wattcap/wattcap/internal/diag"
	"github.com/wattcap/wattcap/internal/event"
	"github.com/wattcap/wattcap/internal/gamewire"
)

func gwAppendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func gwAppendBytes(b []byte, num protowire.Number, payload []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}

func gwUpdateRecord(tag int32, payload []byte) []byte {
	var record []byte
	record = gwAppendVarint(record, 1, uint64(tag))
	record = gwAppendBytes(record, 2, payload)
	return record
}

func TestGameDecoderOutboundPublishesOutgoingPlayerState(t *testing.T) {
	var raw []byte
	raw = gwAppendBytes(raw, 1, []byte{0x01, 0x02})

	var published []event.Envelope
	router := &event.Router{}
	router.Subscribe(event.KindOutgoingPlayerState, func(env event.Envelope) { published = append(published, env) })

	d := &GameDecoder{Router: router, Diag: diag.Nop{}}
	d.DecodeOutbound(raw, 3)

	if len(published) != 1 {
		t.Fatalf("expected one event, got %d", len(published))
	}
	if published[0].SequenceNr != 3 {
		t.Errorf("expected sequence 3, got %d", published[0].SequenceNr)
	}
}

func TestGameDecoderInboundDispatchesRideOnGiven(t *testing.T) {
	rideOn := gwAppendVarint(nil, 1, 88)
	record := gwUpdateRecord(gamewire.UpdateRideOnGiven, rideOn)

	var raw []byte
	raw = gwAppendBytes(raw, 3, record)

	var published []event.Envelope
	router := &event.Router{}
	router.Subscribe(event.KindRideOnGiven, func(env event.Envelope) { published = append(published, env) })

	d := &GameDecoder{Router: router, Diag: diag.Nop{}}
	d.DecodeInbound(raw, 0)

	if len(published) != 1 {
		t.Fatalf("expected one event, got %d", len(published))
	}
	msg := published[0].Message.(event.RideOnGivenMsg)
	if msg.FromPlayerID != 88 {
		t.Errorf("expected from_player_id 88, got %d", msg.FromPlayerID)
	}
}

func TestGameDecoderKnownOpaqueTagGoesToDiag(t *testing.T) {
	record := gwUpdateRecord(102, []byte{0xAA})

	var raw []byte
	raw = gwAppendBytes(raw, 3, record)

	var stored [][]byte
	router := &event.Router{}
	d := &GameDecoder{Router: router, Diag: recordingSink(&stored)}
	d.DecodeInbound(raw, 0)

	if len(stored) != 1 {
		t.Fatalf("expected one diagnostic sample, got %d", len(stored))
	}
}

func TestGameDecoderUnknownTagGoesToDiagAndWarns(t *testing.T) {
	record := gwUpdateRecord(9999, []byte{0xAA})

	var raw []byte
	raw = gwAppendBytes(raw, 3, record)

	var stored [][]byte
	router := &event.Router{}
	d := &GameDecoder{Router: router, Diag: recordingSink(&stored)}
	d.DecodeInbound(raw, 0)

	if len(stored) != 1 {
		t.Fatalf("expected one diagnostic sample, got %d", len(stored))
	}
}

type recordingSinkImpl struct {
	stored *[][]byte
}

func (r recordingSinkImpl) Store(kind string, raw []byte, dir event.Direction, seq uint32) {
	*r.stored = append(*r.stored, raw)
}

func recordingSink(stored *[][]byte) diag.Sink {
	return recordingSinkImpl{stored: stored}
}
