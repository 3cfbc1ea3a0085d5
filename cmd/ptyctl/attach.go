package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/PiranhaCodes/ptyhost/internal/api"
	"github.com/PiranhaCodes/ptyhost/internal/pty"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func attachCmd() *cobra.Command {
	var closeOnDetach bool

	cmd := &cobra.Command{
		Use:   "attach [ID]",
		Short: "Connect the local terminal to a session (creates one when ID is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			fd := int(os.Stdin.Fd())
			interactive := term.IsTerminal(fd)
			rows, cols := 24, 80
			if interactive {
				if w, h, err := term.GetSize(fd); err == nil {
					rows, cols = h, w
				}
			}

			// Subscribe before creating so no early output is missed.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			events, err := c.Subscribe(ctx)
			if err != nil {
				return err
			}

			var id pty.ID
			if len(args) == 1 {
				if id, err = parseID(args[0]); err != nil {
					return err
				}
				if err := c.Resize(id, rows, cols); err != nil {
					return err
				}
			} else {
				if id, err = c.Create(rows, cols); err != nil {
					return err
				}
				closeOnDetach = true
			}

			if interactive {
				state, err := term.MakeRaw(fd)
				if err != nil {
					return fmt.Errorf("raw mode: %w", err)
				}
				defer term.Restore(fd, state)
			}

			code, exited, err := attach(ctx, c, id, fd, interactive, events)
			if closeOnDetach && !exited {
				c.CloseSession(id)
			}
			if err != nil {
				return err
			}
			if !exited {
				return nil
			}
			return shellExit(code)
		},
	}

	cmd.Flags().BoolVar(&closeOnDetach, "close", false, "close the session when stdin ends")
	return cmd
}

// signalledExit is the status ptyctl exits with when the shell died
// without an exit code, usually from a signal.
const signalledExit = 128

// shellExit maps a shell's exit code onto ptyctl's result.
func shellExit(code int) error {
	switch {
	case code == 0:
		return nil
	case code < 0:
		return exitCodeError{code: signalledExit}
	default:
		return exitCodeError{code: code}
	}
}

// attach pumps stdin into the session and its output to stdout. exited
// reports whether the shell ended; code is its exit code, -1 when unknown.
func attach(ctx context.Context, c *api.Client, id pty.ID, fd int, interactive bool, events <-chan api.Event) (code int, exited bool, err error) {
	winch := make(chan os.Signal, 1)
	if interactive {
		signal.Notify(winch, syscall.SIGWINCH)
		defer signal.Stop(winch)
	}

	stdinDone := make(chan error, 1)
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if werr := c.Write(id, buf[:n]); werr != nil {
					stdinDone <- werr
					return
				}
			}
			if err != nil {
				stdinDone <- nil
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return -1, false, fmt.Errorf("event stream closed")
			}
			if ev.ID != id {
				continue
			}
			switch ev.Type {
			case api.FrameOutput:
				os.Stdout.Write(ev.Data)
			case api.FrameExit:
				if ev.ExitCode != nil {
					return *ev.ExitCode, true, nil
				}
				return -1, true, nil
			}
		case <-winch:
			if w, h, err := term.GetSize(fd); err == nil {
				c.Resize(id, h, w)
			}
		case err := <-stdinDone:
			return -1, false, err
		case <-ctx.Done():
			return -1, false, ctx.Err()
		}
	}
}
