// Package session implements the capture session state machine:
// Idle -> Running -> Stopping -> Idle, wiring a frame source to a
// pipeline.Pipeline and handling OS signal cancellation.
package session

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/wattcap/wattcap/internal/diag"
	"github.com/wattcap/wattcap/internal/event"
	"github.com/wattcap/wattcap/internal/pipeline"
	"github.com/wattcap/wattcap/printer"
)

// State names a position in the session state machine.
type State int

const (
	Idle State = iota
	Running
	Stopping
)

// Config parameterises a capture session.
type Config struct {
	// Interface is the device name, dotted-quad address, or friendly
	// display name to capture on. Empty selects the first interface with
	// an address. Ignored if File is set.
	Interface string
	// File, if set, replays a previously captured pcap file instead of
	// opening a live interface.
	File string
	// Companion widens the BPF filter to include the companion app's TCP
	// port.
	Companion bool
	// DiagSink receives raw bytes the decoders could not classify. A nil
	// sink defaults to a no-op.
	DiagSink diag.Sink
	// StatsInterval, if positive, logs a per-lane counter snapshot at this
	// cadence. Zero disables periodic stats logging.
	StatsInterval time.Duration
}

// Session runs one capture, driving a pipeline.Pipeline from a
// pipeline.FrameSource until cancelled or the source is exhausted.
type Session struct {
	Router *event.Router

	mu    sync.Mutex
	state State

	cancel chan struct{}
	once   sync.Once
}

func New(router *event.Router) *Session {
	return &Session{Router: router, state: Idle}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Stop requests cancellation. Safe to call multiple times and from any
// goroutine. Idempotent.
func (s *Session) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			close(s.cancel)
		}
	})
}

// Run opens the frame source described by cfg and drives the pipeline
// until Stop is called, the frame source is exhausted (replay mode), or a
// fatal session error occurs. Fatal session errors (no such interface,
// insufficient privilege, malformed capture file) are returned to the
// caller; everything else is absorbed internally and logged.
func (s *Session) Run(cfg Config) error {
	s.cancel = make(chan struct{})
	s.once = sync.Once{}

	sink := cfg.DiagSink
	if sink == nil {
		sink = diag.Nop{}
	}

	filter := pipeline.BPFFilter
	if cfg.Companion {
		filter = pipeline.CompanionBPFFilter
	}

	var source pipeline.FrameSource
	var err error
	if cfg.File != "" {
		source, err = pipeline.OpenFile(cfg.File)
	} else {
		source, err = pipeline.OpenInterface(cfg.Interface, filter)
	}
	if err != nil {
		return errors.Wrap(err, "failed to open frame source")
	}
	defer source.Close()

	s.setState(Running)
	defer s.setState(Idle)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			s.Stop()
		case <-s.cancel:
		}
	}()

	pl := pipeline.New(s.Router, sink)
	epoch := time.Now()

	var statsTick <-chan time.Time
	if cfg.StatsInterval > 0 {
		ticker := time.NewTicker(cfg.StatsInterval)
		defer ticker.Stop()
		statsTick = ticker.C
	}

	frames := source.Frames()
	for {
		select {
		case <-s.cancel:
			s.setState(Stopping)
			pl.Reset()
			printer.Stderr.Debugln("session cancelled, stopping")
			return nil
		case <-statsTick:
			logLaneStats(pl.LaneStats())
		case packet, ok := <-frames:
			if !ok {
				return nil
			}
			pl.HandlePacket(packet, epoch)
		}
	}
}

func logLaneStats(stats map[string]pipeline.LaneStats) {
	for lane, s := range stats {
		printer.Stderr.Infof("lane %s: segments=%d payloads=%d resets=%d oversize=%d\n",
			lane, s.SegmentsSeen, s.PayloadsEmitted, s.Resets, s.OversizeDrops)
	}
}
