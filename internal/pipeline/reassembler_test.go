package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReassemblerSingleCompleteFrame(t *testing.T) {
	var got [][]byte
	r := NewReassembler("test", func(lp LanePayload) {
		got = append(got, lp.Bytes)
	})
	r.Feed([]byte{0x00, 0x01, 0xAA}, 0)

	want := [][]byte{{0xAA}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected payloads (-want +got):\n%s", diff)
	}
}

func TestReassemblerTwoSegmentFragmentation(t *testing.T) {
	var got [][]byte
	r := NewReassembler("test", func(lp LanePayload) {
		got = append(got, lp.Bytes)
	})
	r.Feed([]byte{0x00, 0x02, 0xAA}, 0)
	r.Feed([]byte{0xBB}, 1)

	want := [][]byte{{0xAA, 0xBB}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected payloads (-want +got):\n%s", diff)
	}
	if r.state != stateFresh {
		t.Errorf("expected lane to be Fresh after completion, got state %v", r.state)
	}
}

func TestReassemblerThreeSegmentFragmentation(t *testing.T) {
	var got [][]byte
	r := NewReassembler("test", func(lp LanePayload) {
		got = append(got, lp.Bytes)
	})
	r.Feed([]byte{0x00, 0x03, 0xAA}, 0)
	r.Feed([]byte{0xBB}, 1)
	r.Feed([]byte{0xCC}, 2)

	want := [][]byte{{0xAA, 0xBB, 0xCC}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected payloads (-want +got):\n%s", diff)
	}
}

func TestReassemblerCoalescedFrames(t *testing.T) {
	var got [][]byte
	r := NewReassembler("test", func(lp LanePayload) {
		got = append(got, lp.Bytes)
	})
	r.Feed([]byte{0x00, 0x01, 0xAA, 0x00, 0x01, 0xBB, 0x00, 0x01, 0xCC}, 0)

	want := [][]byte{{0xAA}, {0xBB}, {0xCC}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected payloads (-want +got):\n%s", diff)
	}
}

func TestReassemblerFramingRoundTrip(t *testing.T) {
	messages := [][]byte{
		{0x01},
		{0x01, 0x02, 0x03},
		{},
		make([]byte, 300),
	}
	for i := range messages[3] {
		messages[3][i] = byte(i)
	}

	var concatenated []byte
	for _, m := range messages {
		concatenated = append(concatenated, byte(len(m)>>8), byte(len(m)))
		concatenated = append(concatenated, m...)
	}

	// Skip the zero-length message for this property, which covers
	// non-empty messages only; zero-length frames, which the reassembler
	// emits as empty payloads, are exercised directly in
	// TestReassemblerZeroLengthFrame instead.
	nonEmpty := [][]byte{messages[0], messages[1], messages[3]}
	concatenated = nil
	for _, m := range nonEmpty {
		concatenated = append(concatenated, byte(len(m)>>8), byte(len(m)))
		concatenated = append(concatenated, m...)
	}

	splits := [][]int{
		{len(concatenated)},                 // single segment
		{1, len(concatenated) - 1},          // split at byte 1
		{3, 3, len(concatenated) - 6},       // split mid-frame
	}

	for _, split := range splits {
		var got [][]byte
		r := NewReassembler("test", func(lp LanePayload) {
			got = append(got, append([]byte(nil), lp.Bytes...))
		})

		offset := 0
		for _, n := range split {
			if offset+n > len(concatenated) {
				n = len(concatenated) - offset
			}
			if n <= 0 {
				continue
			}
			r.Feed(concatenated[offset:offset+n], int64(offset))
			offset += n
		}

		if diff := cmp.Diff(nonEmpty, got); diff != "" {
			t.Errorf("split %v: unexpected payloads (-want +got):\n%s", split, diff)
		}
	}
}

func TestReassemblerZeroLengthFrame(t *testing.T) {
	var got [][]byte
	r := NewReassembler("test", func(lp LanePayload) {
		got = append(got, lp.Bytes)
	})
	// A zero-length frame followed by a real one, coalesced.
	r.Feed([]byte{0x00, 0x00, 0x00, 0x01, 0xAA}, 0)

	if len(got) != 2 {
		t.Fatalf("expected 2 payloads, got %d: %v", len(got), got)
	}
	if len(got[0]) != 0 {
		t.Errorf("expected an empty first payload, got %v", got[0])
	}
	if diff := cmp.Diff([]byte{0xAA}, got[1]); diff != "" {
		t.Errorf("unexpected second payload (-want +got):\n%s", diff)
	}
}

func TestReassemblerShortFreshSegmentBuffers(t *testing.T) {
	var got [][]byte
	r := NewReassembler("test", func(lp LanePayload) {
		got = append(got, lp.Bytes)
	})
	// A single byte in fresh state: length not yet known, must not error.
	r.Feed([]byte{0x00}, 0)
	if len(got) != 0 {
		t.Fatalf("expected no payload yet, got %v", got)
	}
	r.Feed([]byte{0x01, 0xAA}, 1)

	want := [][]byte{{0xAA}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected payloads (-want +got):\n%s", diff)
	}
}

func TestReassemblerStatsTracksLifetimeCounters(t *testing.T) {
	r := NewReassembler("test", func(LanePayload) {})
	r.Feed([]byte{0x00, 0x01, 0xAA}, 0)
	r.Feed([]byte{0x00, 0x01, 0xBB}, 1)

	stats := r.Stats()
	if stats.SegmentsSeen != 2 || stats.PayloadsEmitted != 2 {
		t.Errorf("unexpected stats after two complete frames: %+v", stats)
	}

	// expectedLen exceeding maxFrameLen can only arise from internal state
	// corruption (a 2-byte length prefix can never itself encode a value
	// that large); feedPartial's oversize guard is exercised here by
	// forcing that state directly, the same way a defensive guard for an
	// otherwise-unreachable invariant has to be tested.
	r.expectedLen = maxFrameLen + 1
	r.state = statePartial
	r.Feed([]byte{0x00}, 2)

	stats = r.Stats()
	if stats.OversizeDrops != 1 || stats.Resets != 1 {
		t.Errorf("unexpected stats after oversize drop: %+v", stats)
	}
}

func TestReassemblerOversizeIsTreatedAsCorruption(t *testing.T) {
	var got [][]byte
	r := NewReassembler("test", func(lp LanePayload) {
		got = append(got, lp.Bytes)
	})
	r.expectedLen = maxFrameLen + 1
	r.state = statePartial
	r.Feed([]byte{0x00}, 0)

	if r.state != stateFresh {
		t.Errorf("expected lane reset to Fresh after oversize detection, got %v", r.state)
	}
	if len(got) != 0 {
		t.Errorf("expected no payload emitted for corrupted lane, got %v", got)
	}
}

func TestReassemblerResetIdempotence(t *testing.T) {
	var got [][]byte
	r := NewReassembler("test", func(lp LanePayload) { got = append(got, lp.Bytes) })
	r.Feed([]byte{0x00, 0x05, 0xAA, 0xBB}, 0) // partial: wants 5, has 2
	if r.state != statePartial {
		t.Fatalf("expected partial state, got %v", r.state)
	}

	r.Reset()
	if r.state != stateFresh || r.buf.Len() != 0 || r.expectedLen != 0 {
		t.Errorf("expected lane fully reset, got state=%v buf.Len=%d expectedLen=%d", r.state, r.buf.Len(), r.expectedLen)
	}

	// Behaves like a freshly constructed lane afterwards.
	var gotFresh [][]byte
	r2 := NewReassembler("test", func(lp LanePayload) { gotFresh = append(gotFresh, lp.Bytes) })
	r.Feed([]byte{0x00, 0x01, 0xCC}, 1)
	r2.Feed([]byte{0x00, 0x01, 0xCC}, 1)

	if diff := cmp.Diff(gotFresh, got); diff != "" {
		t.Errorf("reset lane diverged from freshly constructed lane (-fresh +reset): %s", diff)
	}
}
