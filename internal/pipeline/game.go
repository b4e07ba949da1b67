package pipeline

import (
	"encoding/hex"

	"github.com/wattcap/wattcap/internal/diag"
	"github.com/wattcap/wattcap/internal/event"
	"github.com/wattcap/wattcap/internal/gamewire"
	"github.com/wattcap/wattcap/printer"
)

// GameDecoder implements C5: it parses inbound/outbound game messages,
// walks player-update subrecords, and publishes the corresponding typed
// events.
type GameDecoder struct {
	Router *event.Router
	Diag   diag.Sink
}

// DecodeOutbound handles an outbound game message (player -> server): at
// most one PlayerState sub-message.
func (d *GameDecoder) DecodeOutbound(raw []byte, seq uint32) {
	env, err := gamewire.ParseEnvelope(raw)
	if err != nil {
		printer.Stderr.Debugf("game outbound: failed to parse envelope: %v\n", err)
		return
	}
	if len(env.PlayerStates) == 0 {
		return
	}
	d.Router.Publish(event.Envelope{
		Kind:       event.KindOutgoingPlayerState,
		Direction:  event.Outbound,
		SequenceNr: seq,
		Message:    event.OutgoingPlayerStateMsg{Raw: env.PlayerStates[0]},
	})
}

// DecodeInbound handles an inbound game message (server -> player): zero
// or more PlayerState sub-messages, an optional EventPositions block, and
// a sequence of tagged update records.
func (d *GameDecoder) DecodeInbound(raw []byte, seq uint32) {
	env, err := gamewire.ParseEnvelope(raw)
	if err != nil {
		printer.Stderr.Debugf("game inbound: failed to parse envelope: %v\n", err)
		return
	}

	for _, ps := range env.PlayerStates {
		d.Router.Publish(event.Envelope{
			Kind:       event.KindIncomingPlayerState,
			Direction:  event.Inbound,
			SequenceNr: seq,
			Message:    event.IncomingPlayerStateMsg{Raw: ps},
		})
	}

	if env.EventPositions != nil {
		d.Router.Publish(event.Envelope{
			Kind:       event.KindEventPositions,
			Direction:  event.Inbound,
			SequenceNr: seq,
			Message:    event.EventPositionsMsg{Raw: env.EventPositions},
		})
	}

	for _, rec := range env.UpdateRecords {
		d.decodeUpdateRecord(rec, seq)
	}
}

// decodeUpdateRecord re-parses one {update_type_tag, payload_bytes} pair
// by its tag. A failure to parse a single sub-record is isolated: it logs
// the offending bytes in hex and the decoder continues with the next
// sub-record.
func (d *GameDecoder) decodeUpdateRecord(rec gamewire.UpdateRecord, seq uint32) {
	if rec.Tag < 0 {
		printer.Stderr.Warningf("game update record: failed to parse: %s\n", hex.EncodeToString(rec.Payload))
		return
	}

	switch rec.Tag {
	case gamewire.UpdateTimeSync:
		t, err := gamewire.ParseTimeSync(rec.Payload)
		if err != nil {
			d.isolatedFailure(rec, err)
			return
		}
		d.Router.Publish(event.Envelope{Kind: event.KindPlayerTimeSync, Direction: event.Inbound, SequenceNr: seq,
			Message: event.PlayerTimeSyncMsg{Time: t}})

	case gamewire.UpdateRideOnGiven:
		from, err := gamewire.ParseRideOnGiven(rec.Payload)
		if err != nil {
			d.isolatedFailure(rec, err)
			return
		}
		d.Router.Publish(event.Envelope{Kind: event.KindRideOnGiven, Direction: event.Inbound, SequenceNr: seq,
			Message: event.RideOnGivenMsg{FromPlayerID: from}})

	case gamewire.UpdateChatMessage:
		playerID, text, err := gamewire.ParseChat(rec.Payload)
		if err != nil {
			d.isolatedFailure(rec, err)
			return
		}
		d.Router.Publish(event.Envelope{Kind: event.KindChatMessage, Direction: event.Inbound, SequenceNr: seq,
			Message: event.ChatMessageMsg{PlayerID: playerID, Text: text}})

	case gamewire.UpdateMeetupCreate, gamewire.UpdateMeetupJoin:
		d.Router.Publish(event.Envelope{Kind: event.KindMeetupUpdate, Direction: event.Inbound, SequenceNr: seq,
			Message: event.MeetupUpdateMsg{Raw: rec.Payload}})

	case gamewire.UpdatePlayerEnteredWorld:
		playerID, err := gamewire.ParsePlayerEnteredWorld(rec.Payload)
		if err != nil {
			d.isolatedFailure(rec, err)
			return
		}
		d.Router.Publish(event.Envelope{Kind: event.KindPlayerEnteredWorld, Direction: event.Inbound, SequenceNr: seq,
			Message: event.PlayerEnteredWorldMsg{PlayerID: playerID}})

	default:
		if gamewire.KnownOpaque[rec.Tag] {
			d.Diag.Store("game-opaque", rec.Payload, event.Inbound, seq)
			return
		}
		printer.Stderr.Warningf("game update record: unknown tag %d: %s\n", rec.Tag, hex.EncodeToString(rec.Payload))
		d.Diag.Store("game-unknown", rec.Payload, event.Inbound, seq)
	}
}

func (d *GameDecoder) isolatedFailure(rec gamewire.UpdateRecord, err error) {
	printer.Stderr.Warningf("game update record tag %d: %v: %s\n", rec.Tag, err, hex.EncodeToString(rec.Payload))
}
