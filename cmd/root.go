// Package cmd implements wattcap's CLI surface.
package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wattcap/wattcap/cmd/internal/cmderr"
	"github.com/wattcap/wattcap/printer"
	"github.com/wattcap/wattcap/version"
)

var debugFlag bool
var verboseLevel int

var rootCmd = &cobra.Command{
	Use:           "wattcap",
	Short:         "Passive network observer for the cycling simulator protocol.",
	Long:          "wattcap attaches to a network interface or a saved capture file and emits a typed stream of decoded simulator events.",
	Version:       version.CLIDisplayString(),
	SilenceErrors: true, // Execute prints its own errors.
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the CLI, exiting the process with the appropriate code.
func Execute() {
	if cmd, err := rootCmd.ExecuteC(); err != nil {
		var cliErr cmderr.CLIError
		if !errors.As(err, &cliErr) {
			cmd.Println(cmd.UsageString())
		}

		exitCode := 1
		var exitErr cmderr.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode
		}
		printer.Stderr.Errorf("%s\n", err)
		os.Exit(exitCode)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Output detailed debug information.")
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "Verbosity level for V()-gated log lines.")
	viper.BindPFlag("verbose-level", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(captureCmd)
}
