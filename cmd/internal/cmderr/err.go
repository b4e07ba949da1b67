// Package cmderr provides the CLI's error-wrapping types: distinguishing
// a fatal session error (skip usage text) from a CLI usage error (print
// usage text), and carrying the process exit code.
package cmderr

import "fmt"

// CLIError wraps a session-level error. Execute checks for this type to
// decide whether to print command usage on failure: wrapped errors never
// get usage text, since the problem isn't how the command was invoked.
type CLIError struct {
	Err error
}

func (e CLIError) Error() string { return e.Err.Error() }

// github.com/pkg/errors causer interface
func (e CLIError) Cause() error { return e.Err }

// errors.Unwrap interface
func (e CLIError) Unwrap() error { return e.Err }

// ExitError carries the process exit code a failure should produce.
// 0 success, 1 missing arguments, 1 capture file not found, 1 interface
// not found.
type ExitError struct {
	ExitCode int
	Err      error
}

func (e ExitError) Error() string {
	return fmt.Sprintf("exit with code %d: %v", e.ExitCode, e.Err)
}

func (e ExitError) Unwrap() error { return e.Err }
