package diag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wattcap/wattcap/internal/event"
)

func TestFileSinkCapsSamplesPerKindAndDirection(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 5; i++ {
		sink.Store("unknown-update", []byte{byte(i)}, event.Inbound, uint32(i))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected exactly 2 files written, got %d: %v", len(entries), entries)
	}
}

func TestFileSinkTracksDirectionsIndependently(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sink.Store("unknown-update", []byte{0x01}, event.Inbound, 0)
	sink.Store("unknown-update", []byte{0x02}, event.Outbound, 0)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected one file per direction, got %d: %v", len(entries), entries)
	}
}

func TestFileSinkWritesRawBytes(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	sink.Store("unknown-update", want, event.Inbound, 0)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one file, got %d", len(entries))
	}
	got, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("got %x want %x", got, want)
	}
}

func TestNopSinkDiscardsEverything(t *testing.T) {
	var sink Sink = Nop{}
	sink.Store("anything", []byte{0x01}, event.Inbound, 0)
}
