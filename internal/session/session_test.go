package session

import (
	"testing"

	"github.com/wattcap/wattcap/internal/event"
)

func TestSessionInitialStateIsIdle(t *testing.T) {
	s := New(&event.Router{})
	if s.State() != Idle {
		t.Errorf("expected Idle, got %v", s.State())
	}
}

func TestSessionStopBeforeRunIsIdempotentAndSafe(t *testing.T) {
	s := New(&event.Router{})
	// Stop is safe to call even with no cancel channel yet (Run never
	// called), and safe to call more than once.
	s.Stop()
	s.Stop()
}

func TestSessionRunWithMissingFileReturnsError(t *testing.T) {
	s := New(&event.Router{})
	err := s.Run(Config{File: "/nonexistent/path/does-not-exist.pcap"})
	if err == nil {
		t.Fatal("expected an error opening a nonexistent capture file")
	}
	if s.State() != Idle {
		t.Errorf("expected session to return to Idle after a failed open, got %v", s.State())
	}
}
