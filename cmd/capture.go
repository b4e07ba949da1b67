package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/wattcap/wattcap/cfg"
	"github.com/wattcap/wattcap/cmd/internal/cmderr"
	"github.com/wattcap/wattcap/internal/diag"
	"github.com/wattcap/wattcap/internal/event"
	"github.com/wattcap/wattcap/internal/pipeline"
	"github.com/wattcap/wattcap/internal/session"
	"github.com/wattcap/wattcap/printer"
)

var (
	ifaceFlag         string
	fileFlag          string
	companionFlag     bool
	diagDirFlag       string
	diagPerKindFlag   int
	statsIntervalFlag time.Duration
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture and decode simulator traffic from a live interface or a saved pcap file.",
	RunE:  runCapture,
}

func init() {
	captureCmd.Flags().StringVar(&ifaceFlag, "interface", "", "Network interface to capture on (device name, address, or display name). Interactive picker if omitted and a terminal is attached.")
	captureCmd.Flags().StringVar(&fileFlag, "file", "", "Replay a previously captured pcap file instead of a live interface.")
	captureCmd.Flags().BoolVar(&companionFlag, "companion", false, "Also capture companion-app traffic (widens the BPF filter).")
	captureCmd.Flags().StringVar(&diagDirFlag, "diag-dir", "", "Directory for diagnostic dumps of unrecognised messages. Defaults to ~/.wattcap/diag.")
	captureCmd.Flags().IntVar(&diagPerKindFlag, "diag-per-kind", 10, "Maximum diagnostic samples to keep per (direction, kind) pair.")
	captureCmd.Flags().DurationVar(&statsIntervalFlag, "stats-interval", 0, "Log per-lane reassembly counters at this interval. Zero disables periodic stats logging.")
}

func runCapture(cmd *cobra.Command, args []string) error {
	iface := ifaceFlag
	if iface == "" && fileFlag == "" && isatty.IsTerminal(os.Stdin.Fd()) {
		picked, err := pickInterface()
		if err != nil {
			printer.Stderr.Debugf("interactive interface picker unavailable: %v\n", err)
		} else {
			iface = picked
		}
	}

	if fileFlag != "" {
		if _, err := os.Stat(fileFlag); err != nil {
			return cmderr.ExitError{ExitCode: 1, Err: fmt.Errorf("capture file not found: %s", fileFlag)}
		}
	}

	dir := diagDirFlag
	if dir == "" {
		d, err := cfg.DiagDir()
		if err != nil {
			printer.Stderr.Warningf("failed to create diagnostic directory: %v\n", err)
		}
		dir = d
	}

	var sink diag.Sink = diag.Nop{}
	if dir != "" {
		fs, err := diag.NewFileSink(dir, diagPerKindFlag)
		if err != nil {
			printer.Stderr.Warningf("diagnostic sink disabled: %v\n", err)
		} else {
			sink = fs
		}
	}

	router := &event.Router{}
	subscribeConsoleLogger(router)

	s := session.New(router)
	cfg := session.Config{
		Interface:     iface,
		File:          fileFlag,
		Companion:     companionFlag,
		DiagSink:      sink,
		StatsInterval: statsIntervalFlag,
	}

	if err := s.Run(cfg); err != nil {
		if iface == "" && fileFlag == "" {
			return cmderr.ExitError{ExitCode: 1, Err: err}
		}
		return cmderr.CLIError{Err: err}
	}
	return nil
}

func pickInterface() (string, error) {
	names, err := pipeline.ListAddressedInterfaces()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no addressed interfaces found")
	}
	if len(names) == 1 {
		return names[0], nil
	}

	var chosen string
	prompt := &survey.Select{
		Message: "Select a network interface to capture on:",
		Options: names,
	}
	if err := survey.AskOne(prompt, &chosen); err != nil {
		return "", err
	}
	return chosen, nil
}

// subscribeConsoleLogger wires a minimal subscriber to every event kind so
// `wattcap capture` is useful standalone, not just as a library. This is
// the reference consumer of the event surface; applications embedding the
// pipeline register their own handlers instead.
func subscribeConsoleLogger(router *event.Router) {
	kinds := []event.Kind{
		event.KindActivityDetails, event.KindChatMessage, event.KindCommandAvailable,
		event.KindCommandSent, event.KindEventPositions, event.KindHeartBeat,
		event.KindIncomingPlayerState, event.KindMeetupUpdate, event.KindOutgoingPlayerState,
		event.KindPlayerEnteredWorld, event.KindPlayerTimeSync, event.KindPowerUpGranted,
		event.KindRideOnGiven, event.KindRiderPosition,
	}
	for _, k := range kinds {
		router.Subscribe(k, func(env event.Envelope) {
			printer.Stdout.V(1).Infof("%s [%s seq=%d]: %+v\n", env.Kind, env.Direction, env.SequenceNr, env.Message)
		})
	}
}
