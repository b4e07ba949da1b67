// Package companionwire decodes the companion app protocol's wire
// messages, grounded on the same field-walking approach as
// internal/gamewire.
package companionwire

import (
	"github.com/pkg/errors"

	"github.com/wattcap/wattcap/internal/wireutil"
)

// RiderMessage is the outbound (companion -> desktop) envelope.
type RiderMessage struct {
	// Tag10Present/Tag10 correspond to the envelope's top-level tag10
	// field used for the clock-sync heuristic.
	Tag10Present bool
	Tag10        int64

	HasDetail bool
	Detail    Detail
}

// Detail is the outbound envelope's detail sub-message.
type Detail struct {
	Type        int32
	CommandType int32
	CommandSet  bool
	Data        Data
	HasData     bool
}

// Data is the detail sub-message's nested data field, used by the
// device-info and activity-ended branches.
type Data struct {
	Tag1 int32
	Raw  []byte
}

const (
	fieldRiderTag10  = 10
	fieldRiderDetail = 1

	fieldDetailType        = 1
	fieldDetailCommandType = 2
	fieldDetailData        = 3

	fieldDataTag1 = 1
)

// ParseRiderMessage decodes the outbound rider envelope. Short payloads
// (<=10 bytes) are the caller's responsibility to treat as HeartBeat
// before calling this -- that check needs only the raw length.
func ParseRiderMessage(raw []byte) (RiderMessage, error) {
	fields, err := wireutil.Walk(raw)
	if err != nil {
		return RiderMessage{}, errors.Wrap(err, "failed to parse rider message")
	}

	var msg RiderMessage
	if f, ok := wireutil.First(fields, fieldRiderTag10); ok {
		msg.Tag10Present = true
		msg.Tag10 = int64(f.Varint)
	}
	if f, ok := wireutil.First(fields, fieldRiderDetail); ok {
		detail, err := parseDetail(f.Bytes)
		if err != nil {
			return RiderMessage{}, errors.Wrap(err, "failed to parse rider detail")
		}
		msg.HasDetail = true
		msg.Detail = detail
	}
	return msg, nil
}

func parseDetail(raw []byte) (Detail, error) {
	fields, err := wireutil.Walk(raw)
	if err != nil {
		return Detail{}, err
	}
	var d Detail
	if f, ok := wireutil.First(fields, fieldDetailType); ok {
		d.Type = int32(f.Varint)
	}
	if f, ok := wireutil.First(fields, fieldDetailCommandType); ok {
		d.CommandType = int32(f.Varint)
		d.CommandSet = true
	}
	if f, ok := wireutil.First(fields, fieldDetailData); ok {
		data, err := parseData(f.Bytes)
		if err == nil {
			d.Data = data
			d.HasData = true
		}
	}
	return d, nil
}

func parseData(raw []byte) (Data, error) {
	fields, err := wireutil.Walk(raw)
	if err != nil {
		return Data{}, err
	}
	d := Data{Raw: raw}
	if f, ok := wireutil.First(fields, fieldDataTag1); ok {
		d.Tag1 = int32(f.Varint)
	}
	return d, nil
}

// ClockTime parses the clock-sync payload carried when tag10 == 0.
func ClockTime(raw []byte) (int64, error) {
	fields, err := wireutil.Walk(raw)
	if err != nil {
		return 0, err
	}
	if f, ok := wireutil.First(fields, 1); ok {
		return int64(f.Varint), nil
	}
	return 0, nil
}

// ActivityEndedName extracts the activity name from a device-info data
// sub-message's nested payload (data.tag1 == 15 branch).
func ActivityEndedName(raw []byte) (string, error) {
	fields, err := wireutil.Walk(raw)
	if err != nil {
		return "", err
	}
	if f, ok := wireutil.First(fields, 2); ok {
		return string(f.Bytes), nil
	}
	return "", nil
}

// InboundItem is one item in the desktop-to-companion item sequence.
type InboundItem struct {
	Type int32
	Raw  []byte
}

const fieldItemType = 1
const fieldItemData = 2

// ParseInboundItems decodes the inbound (desktop -> companion) envelope's
// item sequence.
func ParseInboundItems(raw []byte) ([]InboundItem, error) {
	fields, err := wireutil.Walk(raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse inbound companion envelope")
	}
	var items []InboundItem
	for _, f := range fields {
		sub, err := wireutil.Walk(f.Bytes)
		if err != nil {
			continue
		}
		var item InboundItem
		if tf, ok := wireutil.First(sub, fieldItemType); ok {
			item.Type = int32(tf.Varint)
		}
		if df, ok := wireutil.First(sub, fieldItemData); ok {
			item.Raw = df.Bytes
		}
		items = append(items, item)
	}
	return items, nil
}

// PowerUpGranted payload: { kind: 1 }.
func ParsePowerUpGranted(raw []byte) (kind int32, err error) {
	fields, err := wireutil.Walk(raw)
	if err != nil {
		return 0, err
	}
	if f, ok := wireutil.First(fields, 1); ok {
		kind = int32(f.Varint)
	}
	return kind, nil
}

// CommandAvailable payload: { code: 1, title: 2 }.
func ParseCommandAvailable(raw []byte) (code int32, title string, err error) {
	fields, err := wireutil.Walk(raw)
	if err != nil {
		return 0, "", err
	}
	if f, ok := wireutil.First(fields, 1); ok {
		code = int32(f.Varint)
	}
	if f, ok := wireutil.First(fields, 2); ok {
		title = string(f.Bytes)
	}
	return code, title, nil
}

// ActivityDetails payload, dispatched further on its own Type field.
type ActivityDetails struct {
	Type       int32
	ActivityID int64
	RiderGroups []RiderGroup
}

// RiderGroup is one group within an activity-details rider-data walk.
type RiderGroup struct {
	Index int32
	Riders []RiderPosition
}

// RiderPosition is a single rider's reported location.
type RiderPosition struct {
	Lat, Lon, Alt float64
}

const (
	fieldDetailsType       = 1
	fieldDetailsActivityID = 2
	fieldDetailsGroups     = 3

	fieldGroupIndex  = 1
	fieldGroupRiders = 2

	fieldRiderLat = 1
	fieldRiderLon = 2
	fieldRiderAlt = 3
)

func ParseActivityDetails(raw []byte) (ActivityDetails, error) {
	fields, err := wireutil.Walk(raw)
	if err != nil {
		return ActivityDetails{}, err
	}
	var d ActivityDetails
	if f, ok := wireutil.First(fields, fieldDetailsType); ok {
		d.Type = int32(f.Varint)
	}
	if f, ok := wireutil.First(fields, fieldDetailsActivityID); ok {
		d.ActivityID = int64(f.Varint)
	}
	for _, gf := range wireutil.All(fields, fieldDetailsGroups) {
		groupFields, err := wireutil.Walk(gf.Bytes)
		if err != nil {
			continue
		}
		var g RiderGroup
		if f, ok := wireutil.First(groupFields, fieldGroupIndex); ok {
			g.Index = int32(f.Varint)
		}
		for _, rf := range wireutil.All(groupFields, fieldGroupRiders) {
			riderFields, err := wireutil.Walk(rf.Bytes)
			if err != nil {
				continue
			}
			var r RiderPosition
			if f, ok := wireutil.First(riderFields, fieldRiderLat); ok {
				r.Lat = fixedToFloat(f.Varint)
			}
			if f, ok := wireutil.First(riderFields, fieldRiderLon); ok {
				r.Lon = fixedToFloat(f.Varint)
			}
			if f, ok := wireutil.First(riderFields, fieldRiderAlt); ok {
				r.Alt = fixedToFloat(f.Varint)
			}
			g.Riders = append(g.Riders, r)
		}
		d.RiderGroups = append(d.RiderGroups, g)
	}
	return d, nil
}

func fixedToFloat(bits uint64) float64 {
	return float64(int64(bits)) / 1000.0
}
