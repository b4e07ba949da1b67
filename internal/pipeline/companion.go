package pipeline

import (
	"encoding/hex"

	"github.com/wattcap/wattcap/internal/companionwire"
	"github.com/wattcap/wattcap/internal/diag"
	"github.com/wattcap/wattcap/internal/event"
	"github.com/wattcap/wattcap/printer"
)

// CompanionDecoder implements C6: it parses inbound/outbound companion
// messages and publishes heartbeats, command-sent, command-available,
// power-up, activity-detail, rider-position, and device-info events.
type CompanionDecoder struct {
	Router *event.Router
	Diag   diag.Sink
}

// DecodeOutbound handles a companion -> desktop message.
func (d *CompanionDecoder) DecodeOutbound(raw []byte, seq uint32) {
	if len(raw) <= 10 {
		d.Router.Publish(event.Envelope{Kind: event.KindHeartBeat, Direction: event.Outbound, SequenceNr: seq,
			Message: event.HeartBeatMsg{}})
		return
	}

	msg, err := companionwire.ParseRiderMessage(raw)
	if err != nil {
		printer.Stderr.Debugf("companion outbound: failed to parse rider message: %v\n", err)
		return
	}

	if !msg.HasDetail && msg.Tag10Present && msg.Tag10 == 0 {
		// ClockSync carries its time in the same payload under the clock
		// field; the envelope itself has no detail sub-message here.
		t, err := companionwire.ClockTime(raw)
		if err != nil {
			printer.Stderr.Debugf("companion outbound: failed to parse clock sync: %v\n", err)
			return
		}
		d.Router.Publish(event.Envelope{Kind: event.KindPlayerTimeSync, Direction: event.Outbound, SequenceNr: seq,
			Message: event.PlayerTimeSyncMsg{Time: t}})
		return
	}

	if !msg.HasDetail {
		printer.Stderr.Warningf("companion outbound: unrecognised rider message: %s\n", hex.EncodeToString(raw))
		return
	}

	d.dispatchOutboundDetail(msg.Detail, seq)
}

func (d *CompanionDecoder) dispatchOutboundDetail(detail companionwire.Detail, seq uint32) {
	switch detail.Type {
	case 16:
		// Ride-on candidate: too frequent to emit as a user ride-on, record
		// only.
		d.Diag.Store("companion-rideon-candidate", detail.Data.Raw, event.Outbound, seq)

	case 22:
		if !detail.CommandSet {
			return
		}
		name, known := event.CommandName(detail.CommandType)
		d.Router.Publish(event.Envelope{Kind: event.KindCommandSent, Direction: event.Outbound, SequenceNr: seq,
			Message: event.CommandSentMsg{Code: detail.CommandType, Name: name, Unknown: !known}})

	case 29:
		if !detail.HasData {
			return
		}
		switch detail.Data.Tag1 {
		case 4:
			d.Router.Publish(event.Envelope{Kind: event.KindActivityDetails, Direction: event.Outbound, SequenceNr: seq,
				Message: event.DeviceInfoMsg{Raw: detail.Data.Raw}})
		case 15:
			name, err := companionwire.ActivityEndedName(detail.Data.Raw)
			if err != nil {
				printer.Stderr.Debugf("companion outbound: failed to parse activity-ended: %v\n", err)
				return
			}
			d.Router.Publish(event.Envelope{Kind: event.KindActivityDetails, Direction: event.Outbound, SequenceNr: seq,
				Message: event.ActivityEndedMsg{Name: name}})
		default:
			printer.Stderr.Debugf("companion outbound: unknown type-29 inner tag %d\n", detail.Data.Tag1)
		}

	case 14, 20, 28:
		d.Diag.Store("companion-diagnostic", detail.Data.Raw, event.Outbound, seq)

	default:
		printer.Stderr.Warningf("companion outbound: unknown detail type %d\n", detail.Type)
		d.Diag.Store("companion-unknown", detail.Data.Raw, event.Outbound, seq)
	}
}

// DecodeInbound handles a desktop -> companion message: a sequence of
// items, dispatched by item.type.
func (d *CompanionDecoder) DecodeInbound(raw []byte, seq uint32) {
	items, err := companionwire.ParseInboundItems(raw)
	if err != nil {
		printer.Stderr.Debugf("companion inbound: failed to parse envelope: %v\n", err)
		return
	}

	for _, item := range items {
		d.dispatchInboundItem(item, seq)
	}
}

func (d *CompanionDecoder) dispatchInboundItem(item companionwire.InboundItem, seq uint32) {
	switch item.Type {
	case 2:
		kind, err := companionwire.ParsePowerUpGranted(item.Raw)
		if err != nil {
			printer.Stderr.Debugf("companion inbound: failed to parse power-up: %v\n", err)
			return
		}
		d.Router.Publish(event.Envelope{Kind: event.KindPowerUpGranted, Direction: event.Inbound, SequenceNr: seq,
			Message: event.PowerUpGrantedMsg{Kind: kind}})

	case 4:
		code, title, err := companionwire.ParseCommandAvailable(item.Raw)
		if err != nil {
			printer.Stderr.Debugf("companion inbound: failed to parse command-available: %v\n", err)
			return
		}
		name, known := event.CommandName(code)
		d.Router.Publish(event.Envelope{Kind: event.KindCommandAvailable, Direction: event.Inbound, SequenceNr: seq,
			Message: event.CommandAvailableMsg{Code: code, Name: name, Title: title, Unknown: !known}})

	case 13:
		d.dispatchActivityDetails(item.Raw, seq)

	case 1, 3, 6, 9:
		// Empty or unknown filler items, ignored.

	default:
		printer.Stderr.Warningf("companion inbound: unknown item type %d\n", item.Type)
		d.Diag.Store("companion-unknown", item.Raw, event.Inbound, seq)
	}
}

func (d *CompanionDecoder) dispatchActivityDetails(raw []byte, seq uint32) {
	details, err := companionwire.ParseActivityDetails(raw)
	if err != nil {
		printer.Stderr.Debugf("companion inbound: failed to parse activity details: %v\n", err)
		return
	}

	switch details.Type {
	case 3:
		d.Router.Publish(event.Envelope{Kind: event.KindActivityDetails, Direction: event.Inbound, SequenceNr: seq,
			Message: event.ActivityDetailsMsg{ActivityID: details.ActivityID, Started: true}})

	case 5:
		for _, g := range details.RiderGroups {
			if g.Index == 10 && len(g.Riders) == 1 {
				r := g.Riders[0]
				d.Router.Publish(event.Envelope{Kind: event.KindRiderPosition, Direction: event.Inbound, SequenceNr: seq,
					Message: event.RiderPositionMsg{Lat: r.Lat, Lon: r.Lon, Alt: r.Alt}})
				continue
			}
			d.Diag.Store("companion-other-rider", nil, event.Inbound, seq)
		}

	case 17, 19:
		d.Diag.Store("companion-nearby-rider", raw, event.Inbound, seq)

	case 6, 7, 10, 18, 20, 21, 23:
		d.Diag.Store("companion-activity-known-opaque", raw, event.Inbound, seq)

	default:
		printer.Stderr.Warningf("companion inbound: unknown activity-details type %d\n", details.Type)
	}
}
