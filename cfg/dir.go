// Package cfg locates wattcap's on-disk configuration and diagnostic
// directories.
package cfg

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/wattcap/wattcap/printer"
)

var cfgDir string

func init() {
	home, err := homedir.Dir()
	if err != nil {
		printer.Stderr.Warningf("failed to find $HOME, defaulting to '.', error: %v\n", err)
		home = "."
	}
	cfgDir = filepath.Join(home, ".wattcap")
}

// Dir returns wattcap's configuration directory, creating it if it
// doesn't already exist.
func Dir() (string, error) {
	if stat, err := os.Stat(cfgDir); os.IsNotExist(err) {
		if err := os.MkdirAll(cfgDir, 0700); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	} else if !stat.IsDir() {
		return "", os.ErrExist
	}
	return cfgDir, nil
}

// DiagDir returns the default directory for diagnostic message dumps:
// <Dir()>/diag.
func DiagDir() (string, error) {
	base, err := Dir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "diag")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
