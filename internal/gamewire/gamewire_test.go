package gamewire

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, payload []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}

func TestParseEnvelopeRideOnGivenUpdateRecord(t *testing.T) {
	rideOn := appendVarintField(nil, 1, 42) // from_player_id = 42

	var record []byte
	record = appendVarintField(record, fieldUpdateType, UpdateRideOnGiven)
	record = appendBytesField(record, fieldUpdatePayload, rideOn)

	var raw []byte
	raw = appendBytesField(raw, fieldUpdateRecords, record)

	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.UpdateRecords) != 1 {
		t.Fatalf("expected one update record, got %d", len(env.UpdateRecords))
	}
	rec := env.UpdateRecords[0]
	if rec.Tag != UpdateRideOnGiven {
		t.Fatalf("expected tag %d, got %d", UpdateRideOnGiven, rec.Tag)
	}
	fromID, err := ParseRideOnGiven(rec.Payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fromID != 42 {
		t.Errorf("expected from_player_id 42, got %d", fromID)
	}
}

func TestParseEnvelopeChatMessage(t *testing.T) {
	chat := appendVarintField(nil, 1, 7)
	chat = appendBytesField(chat, 2, []byte("hello"))

	var record []byte
	record = appendVarintField(record, fieldUpdateType, UpdateChatMessage)
	record = appendBytesField(record, fieldUpdatePayload, chat)

	var raw []byte
	raw = appendBytesField(raw, fieldUpdateRecords, record)

	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	playerID, text, err := ParseChat(env.UpdateRecords[0].Payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if playerID != 7 || text != "hello" {
		t.Errorf("got playerID=%d text=%q", playerID, text)
	}
}

func TestParseEnvelopeUnparseableUpdateRecordGetsSentinelTag(t *testing.T) {
	var raw []byte
	// Not a well-formed nested message: a lone continuation byte.
	raw = appendBytesField(raw, fieldUpdateRecords, []byte{0xFF})

	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.UpdateRecords) != 1 || env.UpdateRecords[0].Tag != -1 {
		t.Fatalf("expected a sentinel -1 tag record, got %+v", env.UpdateRecords)
	}
}

func TestParseEnvelopePlayerStatesAndEventPositions(t *testing.T) {
	playerState := appendVarintField(nil, fieldPlayerID, 99)

	var raw []byte
	raw = appendBytesField(raw, fieldPlayerStates, playerState)
	raw = appendBytesField(raw, fieldEventPositions, []byte{0xAA, 0xBB})

	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.PlayerStates) != 1 {
		t.Fatalf("expected one player state, got %d", len(env.PlayerStates))
	}
	id, err := PlayerID(env.PlayerStates[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 99 {
		t.Errorf("expected player id 99, got %d", id)
	}
	if len(env.EventPositions) != 2 {
		t.Errorf("expected event positions payload, got %v", env.EventPositions)
	}
}
