// Command ptyctl drives a running ptyhost over its Unix socket.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/PiranhaCodes/ptyhost/internal/api"
	"github.com/PiranhaCodes/ptyhost/internal/config"
	"github.com/PiranhaCodes/ptyhost/internal/pty"
	"github.com/spf13/cobra"
)

var socketFlag string

// exitCodeError carries a shell's exit code out of attach.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string { return fmt.Sprintf("session exited with code %d", e.code) }

func main() {
	root := &cobra.Command{
		Use:           "ptyctl",
		Short:         "Control a ptyhost daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&socketFlag, "socket", config.DefaultSocketPath, "path to the ptyhost Unix socket")

	root.AddCommand(
		createCmd(),
		writeCmd(),
		resizeCmd(),
		closeCmd(),
		listCmd(),
		statusCmd(),
		shutdownCmd(),
		attachCmd(),
	)

	if err := root.Execute(); err != nil {
		var exitErr exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func dial() (*api.Client, error) {
	path, err := config.ExpandPath(socketFlag)
	if err != nil {
		return nil, err
	}
	c, err := api.Dial(path)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	return c, nil
}

func parseID(raw string) (pty.ID, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid session id %q", raw)
	}
	return pty.ID(n), nil
}

func parseDim(name, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}
