package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func createCmd() *cobra.Command {
	var rows, cols int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a new shell session and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			id, err := c.Create(rows, cols)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}

	cmd.Flags().IntVar(&rows, "rows", 24, "terminal rows")
	cmd.Flags().IntVar(&cols, "cols", 80, "terminal columns")
	return cmd
}

func writeCmd() *cobra.Command {
	var newline bool

	cmd := &cobra.Command{
		Use:   "write ID [TEXT]",
		Short: "Send input to a session (reads stdin when TEXT is omitted or -)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var data []byte
			if len(args) == 1 || args[1] == "-" {
				data, err = io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			} else {
				data = []byte(args[1])
			}
			if newline {
				data = append(data, '\n')
			}

			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Write(id, data)
		},
	}

	cmd.Flags().BoolVarP(&newline, "newline", "n", false, "append a newline")
	return cmd
}

func resizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resize ID ROWS COLS",
		Short: "Change a session's terminal size",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rows, err := parseDim("rows", args[1])
			if err != nil {
				return err
			}
			cols, err := parseDim("cols", args[2])
			if err != nil {
				return err
			}

			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Resize(id, rows, cols)
		},
	}
}

func closeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close ID",
		Short: "Terminate a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.CloseSession(id)
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.List()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATE\tSIZE\tPID\tSHELL\tAGE")
			for _, s := range resp.Sessions {
				fmt.Fprintf(w, "%d\t%s\t%dx%d\t%d\t%s\t%s\n",
					s.ID, s.State, s.Cols, s.Rows, s.PID, s.Shell,
					time.Since(s.CreatedAt).Round(time.Second))
			}
			return w.Flush()
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether any session is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			st, err := c.Status()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sessions: %d running: %t\n", st.Count, st.Running)
			return nil
		},
	}
}

func shutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Close every session on the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.Shutdown()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "closed %d session(s)\n", n)
			return nil
		},
	}
}
