// Package gamewire decodes the game protocol's wire messages. Field
// numbers below are chosen by this package, not taken from a generated
// schema -- it plays the role of that generated code, built on the
// low-level field walker in internal/wireutil since no .proto source is
// available to codegen from.
package gamewire

import (
	"github.com/pkg/errors"

	"github.com/wattcap/wattcap/internal/wireutil"
)

// Outer envelope field numbers.
const (
	fieldPlayerStates    = 1
	fieldEventPositions  = 2
	fieldUpdateRecords   = 3
)

// Update record field numbers (the {update_type_tag, payload_bytes} pair).
const (
	fieldUpdateType = 1
	fieldUpdatePayload = 2
)

// Update-type tags, per the update-record dispatch table.
const (
	UpdateTimeSync           = 3
	UpdateRideOnGiven        = 4
	UpdateChatMessage        = 5
	UpdateMeetupCreate       = 6
	UpdateMeetupJoin         = 10
	UpdatePlayerEnteredWorld = 105
)

// KnownOpaque tags are recognised but carry no event -- recorded for
// diagnostics only.
var KnownOpaque = map[int32]bool{102: true, 106: true, 109: true, 110: true, 116: true}

// UpdateRecord is one tagged sub-message inside a game inbound envelope.
type UpdateRecord struct {
	Tag     int32
	Payload []byte
}

// Envelope is the outer inbound/outbound game message, walked one level
// deep. For an outbound envelope, PlayerStates is empty unless it carried
// a PlayerState.
type Envelope struct {
	PlayerStates    [][]byte // raw PlayerState sub-messages, caller decodes further
	EventPositions  []byte   // raw EventPositions sub-message, nil if absent
	UpdateRecords   []UpdateRecord
}

// ParseEnvelope decodes the outer game message envelope. A failure here
// discards the whole payload: the outer envelope is the unit of recovery,
// individual update records are not.
func ParseEnvelope(raw []byte) (Envelope, error) {
	fields, err := wireutil.Walk(raw)
	if err != nil {
		return Envelope{}, errors.Wrap(err, "failed to parse game envelope")
	}

	var env Envelope
	for _, f := range fields {
		switch f.Number {
		case fieldPlayerStates:
			env.PlayerStates = append(env.PlayerStates, f.Bytes)
		case fieldEventPositions:
			env.EventPositions = f.Bytes
		case fieldUpdateRecords:
			rec, err := parseUpdateRecord(f.Bytes)
			if err != nil {
				// A failure to parse a single sub-record is isolated: the
				// caller logs and continues with the next record. We
				// surface it as a record with tag -1 so the caller can
				// detect and log it without losing position in the list.
				env.UpdateRecords = append(env.UpdateRecords, UpdateRecord{Tag: -1, Payload: f.Bytes})
				continue
			}
			env.UpdateRecords = append(env.UpdateRecords, rec)
		}
	}
	return env, nil
}

func parseUpdateRecord(raw []byte) (UpdateRecord, error) {
	fields, err := wireutil.Walk(raw)
	if err != nil {
		return UpdateRecord{}, err
	}
	var rec UpdateRecord
	if f, ok := wireutil.First(fields, fieldUpdateType); ok {
		rec.Tag = int32(f.Varint)
	}
	if f, ok := wireutil.First(fields, fieldUpdatePayload); ok {
		rec.Payload = f.Bytes
	}
	return rec, nil
}

// PlayerState field numbers.
const (
	fieldPlayerID = 1
)

func PlayerID(playerState []byte) (int64, error) {
	fields, err := wireutil.Walk(playerState)
	if err != nil {
		return 0, err
	}
	f, ok := wireutil.First(fields, fieldPlayerID)
	if !ok {
		return 0, nil
	}
	return int64(f.Varint), nil
}

// RideOnGiven payload fields: { from_player_id: 1 }.
func ParseRideOnGiven(payload []byte) (fromPlayerID int64, err error) {
	fields, err := wireutil.Walk(payload)
	if err != nil {
		return 0, err
	}
	if f, ok := wireutil.First(fields, 1); ok {
		fromPlayerID = int64(f.Varint)
	}
	return fromPlayerID, nil
}

// Chat payload fields: { player_id: 1, text: 2 }.
func ParseChat(payload []byte) (playerID int64, text string, err error) {
	fields, err := wireutil.Walk(payload)
	if err != nil {
		return 0, "", err
	}
	if f, ok := wireutil.First(fields, 1); ok {
		playerID = int64(f.Varint)
	}
	if f, ok := wireutil.First(fields, 2); ok {
		text = string(f.Bytes)
	}
	return playerID, text, nil
}

// PlayerEnteredWorld payload fields: { player_id: 1 }.
func ParsePlayerEnteredWorld(payload []byte) (playerID int64, err error) {
	fields, err := wireutil.Walk(payload)
	if err != nil {
		return 0, err
	}
	if f, ok := wireutil.First(fields, 1); ok {
		playerID = int64(f.Varint)
	}
	return playerID, nil
}

// TimeSync payload fields: { time: 1 }.
func ParseTimeSync(payload []byte) (t int64, err error) {
	fields, err := wireutil.Walk(payload)
	if err != nil {
		return 0, err
	}
	if f, ok := wireutil.First(fields, 1); ok {
		t = int64(f.Varint)
	}
	return t, nil
}
