package pipeline

import (
	"bytes"
	"io"

	"github.com/mel2oo/go-pcap/memview"

	"github.com/wattcap/wattcap/printer"
)

// bytesOf materialises a MemView's contents. MemView intentionally exposes
// no public byte-slice accessor (it exists to let callers avoid copying),
// but a completed LanePayload is handed to decoders that expect []byte, so
// the one copy happens here, at the lane boundary, not while the payload
// is still accumulating.
func bytesOf(mv memview.MemView) []byte {
	var buf bytes.Buffer
	io.Copy(&buf, mv.CreateReader())
	return buf.Bytes()
}

// maxFrameLen bounds the length a reassembler will ever accumulate towards.
// A length prefix larger than this is treated as lane corruption rather
// than a legitimately large message.
const maxFrameLen = 16 * 1024 * 1024

// LanePayload is one complete, length-delimited message body produced by a
// Reassembler, with its length prefix already stripped.
type LanePayload struct {
	LaneID     string
	SequenceNr uint32
	Bytes      []byte
}

// laneState names where a Reassembler sits in its state machine: Fresh or
// Partial(expected_len). Lane corruption has no state of its own: corrupt
// resets the lane to Fresh within the same call.
type laneState int

const (
	stateFresh laneState = iota
	statePartial
)

// LaneStats is a snapshot of one Reassembler's lifetime counters, exposed
// for introspection only -- it carries no semantics of its own and is never
// published as an event.
type LaneStats struct {
	SegmentsSeen    int64
	PayloadsEmitted int64
	Resets          int64
	OversizeDrops   int64
}

// Reassembler turns a stream of TCP segments on one lane into a sequence
// of complete length-prefixed payloads. Each logical payload is preceded
// by a 2-byte big-endian length header; multiple payloads may be
// concatenated in one segment, and a single payload may span several
// segments. Completion is detected purely by byte count -- the TCP PUSH
// flag carries no meaning here, by design: PUSH can be absent on the final
// segment of a large payload.
//
// Not safe for concurrent use; a Reassembler is owned exclusively by the
// pipeline thread that feeds it segments.
type Reassembler struct {
	LaneID string

	state       laneState
	buf         memview.MemView
	expectedLen int64 // only meaningful in statePartial

	epochSet bool
	epochMs  int64

	stats LaneStats

	emit func(LanePayload)
}

// NewReassembler constructs a fresh lane. emit is invoked once per complete
// payload, in the order payloads complete within a segment.
func NewReassembler(laneID string, emit func(LanePayload)) *Reassembler {
	return &Reassembler{LaneID: laneID, emit: emit}
}

// Feed processes one TCP segment's payload bytes, captured at captureMs
// (milliseconds since an arbitrary epoch, monotonic within a capture
// session). It may emit zero, one, or several LanePayloads.
func (r *Reassembler) Feed(payload []byte, captureMs int64) {
	if !r.epochSet {
		r.epochMs = captureMs
		r.epochSet = true
	}
	r.stats.SegmentsSeen++

	switch r.state {
	case stateFresh:
		r.feedFresh(payload, captureMs)
	case statePartial:
		r.feedPartial(payload, captureMs)
	}
}

func (r *Reassembler) feedFresh(payload []byte, captureMs int64) {
	if len(payload) == 0 {
		return
	}
	if len(payload) < 2 {
		// Length not yet known: buffer the bytes and wait rather than
		// treating a sub-2-byte fresh segment as an error. expectedLen
		// stays 0 as the "not yet known" sentinel; feedPartial's combine
		// branch below picks this back up once more bytes arrive.
		r.buf = memview.New(payload)
		r.state = statePartial
		return
	}

	mv := memview.New(payload)
	want := int64(mv.GetUint16(0))
	if want > maxFrameLen {
		r.corrupt(want)
		return
	}
	r.expectedLen = want
	r.buf = mv.SubView(2, mv.Len())
	r.state = statePartial
	r.tryComplete(captureMs)
}

func (r *Reassembler) feedPartial(payload []byte, captureMs int64) {
	// The lane may have been left holding fewer than 2 bytes by a previous
	// fresh-state short-segment case; once more bytes arrive the length
	// becomes knowable.
	if r.expectedLen == 0 && r.buf.Len() > 0 && r.buf.Len() < 2 {
		combined := r.buf
		combined.Append(memview.New(payload))
		if combined.Len() < 2 {
			r.buf = combined
			return
		}
		want := int64(combined.GetUint16(0))
		if want > maxFrameLen {
			r.corrupt(want)
			return
		}
		r.expectedLen = want
		r.buf = combined.SubView(2, combined.Len())
		r.tryComplete(captureMs)
		return
	}

	r.buf.Append(memview.New(payload))
	if r.expectedLen > maxFrameLen {
		r.corrupt(r.expectedLen)
		return
	}
	r.tryComplete(captureMs)
}

// tryComplete emits completed payloads and iteratively re-enters fresh
// state on any overflow, so a single segment carrying several coalesced
// frames produces one LanePayload per frame, in order.
func (r *Reassembler) tryComplete(captureMs int64) {
	for r.state == statePartial && r.buf.Len() >= r.expectedLen {
		want := r.expectedLen
		body := r.buf.SubView(0, want)
		overflow := r.buf.SubView(want, r.buf.Len())

		seq := r.sequenceNr(captureMs)
		r.stats.PayloadsEmitted++
		r.emit(LanePayload{LaneID: r.LaneID, SequenceNr: seq, Bytes: bytesOf(body)})

		r.buf = memview.Empty()
		r.expectedLen = 0
		r.state = stateFresh

		if overflow.Len() == 0 {
			return
		}
		r.reenterFreshWithOverflow(overflow, captureMs)
		return // reenterFreshWithOverflow recurses via tryComplete itself
	}
}

func (r *Reassembler) reenterFreshWithOverflow(overflow memview.MemView, captureMs int64) {
	if overflow.Len() < 2 {
		r.buf = overflow
		r.state = statePartial
		return
	}
	want := int64(overflow.GetUint16(0))
	if want > maxFrameLen {
		r.corrupt(want)
		return
	}
	r.expectedLen = want
	r.buf = overflow.SubView(2, overflow.Len())
	r.state = statePartial
	r.tryComplete(captureMs)
}

func (r *Reassembler) sequenceNr(captureMs int64) uint32 {
	delta := captureMs - r.epochMs
	if delta < 0 {
		delta = 0
	}
	return uint32(delta)
}

// corrupt treats an oversize length prefix as lane corruption: log and
// reset to Fresh, discarding the accumulator. All failures within a lane
// are recoverable this way so one bad segment never corrupts the rest of
// the capture session.
func (r *Reassembler) corrupt(want int64) {
	printer.Stderr.Warningf("lane %s: frame length %d exceeds max %d, resetting lane\n", r.LaneID, want, maxFrameLen)
	r.stats.OversizeDrops++
	r.Reset()
}

// Reset forces the lane back to Fresh state, discarding any partial
// accumulator. Used by tests and by external recovery paths; behaviourally
// indistinguishable from a freshly constructed Reassembler, except that
// the lane epoch (and therefore future sequence numbers) is preserved.
func (r *Reassembler) Reset() {
	r.state = stateFresh
	r.buf = memview.Empty()
	r.expectedLen = 0
	r.stats.Resets++
}

// Stats returns a snapshot of this lane's lifetime counters.
func (r *Reassembler) Stats() LaneStats {
	return r.stats
}
