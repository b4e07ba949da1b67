// Package diag implements the optional diagnostic sink collaborator: a
// write-only destination for raw bytes the decoders could not classify,
// useful for extending the decoder without a live capture.
package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/wattcap/wattcap/internal/event"
)

// Sink is called by the decoders on messages they could not fully
// classify. Implementations must not block the decoder thread for long.
type Sink interface {
	Store(kind string, raw []byte, dir event.Direction, sequenceNr uint32)
}

// Nop discards everything. The zero value is ready to use and is the
// default sink for a Session that doesn't configure one.
type Nop struct{}

func (Nop) Store(string, []byte, event.Direction, uint32) {}

// FileSink writes up to PerKind samples (default 10) per (direction, kind)
// pair into Dir, one file per sample. Safe for concurrent use, though the
// pipeline only ever calls it from the single decoder thread.
type FileSink struct {
	Dir     string
	PerKind int

	mu     sync.Mutex
	counts map[string]int
	runID  string
}

// NewFileSink creates the sink's directory (if needed) and returns a sink
// that writes into it. runID disambiguates concurrent runs sharing a
// default directory.
func NewFileSink(dir string, perKind int) (*FileSink, error) {
	if perKind <= 0 {
		perKind = 10
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "failed to create diagnostic dump directory %s", dir)
	}
	return &FileSink{
		Dir:     dir,
		PerKind: perKind,
		counts:  make(map[string]int),
		runID:   uuid.New().String()[0:8],
	}, nil
}

func (f *FileSink) Store(kind string, raw []byte, dir event.Direction, sequenceNr uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := dir.String() + "-" + kind
	n := f.counts[key]
	if n >= f.PerKind {
		return
	}
	f.counts[key] = n + 1

	name := fmt.Sprintf("%s-%s-%s-%d.bin", kind, dir, f.runID, n)
	path := filepath.Join(f.Dir, name)
	if err := os.WriteFile(path, raw, 0600); err != nil {
		// Diagnostics are best-effort; a failure here must never affect the
		// capture session.
		return
	}
}
