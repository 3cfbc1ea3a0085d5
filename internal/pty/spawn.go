package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	ptylib "github.com/creack/pty"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

const (
	// maxDimension is the largest value a winsize field can carry.
	maxDimension = 1<<16 - 1

	// DefaultGracePeriod is how long Terminate waits after SIGHUP/SIGTERM
	// before sending SIGKILL.
	DefaultGracePeriod = 2 * time.Second

	// killWait bounds the wait for the reaper after SIGKILL.
	killWait = 5 * time.Second

	// DefaultTerm is the TERM value given to spawned shells.
	DefaultTerm = "xterm-256color"
)

// Options describe the shell a Transport spawns.
type Options struct {
	Rows  int
	Cols  int
	Shell string
	Args  []string
	Dir   string
	// Env entries are appended to the host environment as KEY=VALUE.
	Env         []string
	Term        string
	GracePeriod time.Duration
	Logger      zerolog.Logger
}

// Transport owns one pty master and the shell attached to its slave side.
type Transport struct {
	cmd   *exec.Cmd
	ptmx  *os.File
	shell string
	pid   int
	grace time.Duration
	log   zerolog.Logger

	terminated atomic.Bool
	termOnce   sync.Once
	termErr    error

	exited   chan struct{}
	exitCode atomic.Int32
}

// ValidateGeometry reports ErrInvalidArgument for sizes a pty cannot carry.
func ValidateGeometry(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("%w: rows and cols must be positive, got %dx%d", ErrInvalidArgument, rows, cols)
	}
	if rows > maxDimension || cols > maxDimension {
		return fmt.Errorf("%w: rows and cols must not exceed %d, got %dx%d", ErrInvalidArgument, maxDimension, rows, cols)
	}
	return nil
}

// Open allocates a pty sized rows x cols and starts the shell on its slave
// side. The returned Transport owns both the master descriptor and the
// child process.
func Open(opts Options) (*Transport, error) {
	if err := ValidateGeometry(opts.Rows, opts.Cols); err != nil {
		return nil, err
	}

	shellPath, err := ResolveShell(opts.Shell)
	if err != nil {
		return nil, fmt.Errorf("%w: shell detection failed: %w", ErrSpawn, err)
	}

	cmd := exec.Command(shellPath, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = buildEnv(opts)

	// StartWithSize puts the child in a new session with the slave as its
	// controlling terminal, so the shell's pid is also its process group id.
	ptmx, err := ptylib.StartWithSize(cmd, &ptylib.Winsize{
		Rows: uint16(opts.Rows),
		Cols: uint16(opts.Cols),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to start PTY: %w", ErrSpawn, err)
	}
	ptmx, err = pollable(ptmx)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("%w: pty master: %w", ErrSpawn, err)
	}

	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	t := &Transport{
		cmd:    cmd,
		ptmx:   ptmx,
		shell:  shellPath,
		pid:    cmd.Process.Pid,
		grace:  grace,
		log:    opts.Logger,
		exited: make(chan struct{}),
	}
	t.exitCode.Store(-1)

	go t.reap()

	return t, nil
}

// pollable replaces the master with a non-blocking duplicate registered
// with the runtime poller, so Close wakes a pending Read or Write.
// creack/pty hands the master back in blocking mode, and a blocking Read
// only returns once every holder of the slave has let go.
func pollable(f *os.File) (*os.File, error) {
	name := f.Name()
	fd, err := unix.FcntlInt(f.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	f.Close()
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return os.NewFile(uintptr(fd), name), nil
}

func buildEnv(opts Options) []string {
	term := opts.Term
	if term == "" {
		term = DefaultTerm
	}
	env := os.Environ()
	env = append(env, "TERM="+term, "COLORTERM=truecolor")
	return append(env, opts.Env...)
}

// reap waits for the child so it never lingers as a zombie.
func (t *Transport) reap() {
	err := t.cmd.Wait()
	if t.cmd.ProcessState != nil {
		t.exitCode.Store(int32(t.cmd.ProcessState.ExitCode()))
	}
	if err != nil {
		t.log.Debug().Int("pid", t.pid).Err(err).Msg("shell exited with error")
	}
	close(t.exited)
}

// PID returns the shell's process id.
func (t *Transport) PID() int { return t.pid }

// Shell returns the resolved shell path.
func (t *Transport) Shell() string { return t.shell }

// Exited is closed once the shell has been reaped.
func (t *Transport) Exited() <-chan struct{} { return t.exited }

// ExitCode returns the shell's exit code, or -1 while it is running or when
// it was killed by a signal.
func (t *Transport) ExitCode() int { return int(t.exitCode.Load()) }

func (t *Transport) hasExited() bool {
	select {
	case <-t.exited:
		return true
	default:
		return false
	}
}

// Read returns the next chunk of output from the master side. It reports
// io.EOF once the slave side is gone or the transport was terminated.
func (t *Transport) Read(p []byte) (int, error) {
	n, err := t.ptmx.Read(p)
	if err == nil {
		return n, nil
	}
	// Linux reports a hung-up slave as EIO rather than EOF.
	if errors.Is(err, io.EOF) || errors.Is(err, unix.EIO) || errors.Is(err, os.ErrClosed) {
		return n, io.EOF
	}
	return n, fmt.Errorf("%w: read: %w", ErrIO, err)
}

// Write sends raw bytes to the shell. It may block while the pty input
// buffer is full.
func (t *Transport) Write(p []byte) (int, error) {
	if t.terminated.Load() {
		return 0, ErrClosed
	}
	n, err := t.ptmx.Write(p)
	if err != nil {
		if t.terminated.Load() || errors.Is(err, os.ErrClosed) || errors.Is(err, unix.EIO) {
			return n, fmt.Errorf("%w: %w", ErrClosed, err)
		}
		return n, fmt.Errorf("%w: write: %w", ErrIO, err)
	}
	return n, nil
}

// Resize updates the pty window size. The kernel delivers SIGWINCH to the
// foreground process group when the size changes.
func (t *Transport) Resize(rows, cols int) error {
	if err := ValidateGeometry(rows, cols); err != nil {
		return err
	}
	if t.terminated.Load() || t.hasExited() {
		return ErrClosed
	}
	// Fd() would put the master back into blocking mode, so the ioctl goes
	// through the raw conn.
	rc, err := t.ptmx.SyscallConn()
	if err == nil {
		ws := &unix.Winsize{Row: uint16(rows), Col: uint16(cols)}
		cerr := rc.Control(func(fd uintptr) {
			err = unix.IoctlSetWinsize(int(fd), unix.TIOCSWINSZ, ws)
		})
		if cerr != nil {
			err = cerr
		}
	}
	if err != nil {
		if t.terminated.Load() || errors.Is(err, os.ErrClosed) {
			return fmt.Errorf("%w: %w", ErrClosed, err)
		}
		return fmt.Errorf("%w: resize: %w", ErrIO, err)
	}
	return nil
}

// Terminate hangs up the shell's process group, closes the master side and
// waits for the shell to be reaped, escalating to SIGKILL after the grace
// period. Safe to call more than once; later calls return the first result.
func (t *Transport) Terminate() error {
	t.termOnce.Do(func() {
		t.terminated.Store(true)
		t.termErr = t.terminate()
	})
	return t.termErr
}

func (t *Transport) terminate() error {
	var errs []error

	if !t.hasExited() {
		// Interactive shells ignore SIGTERM, so hang up first.
		t.signalGroup(unix.SIGHUP)
		t.signalGroup(unix.SIGTERM)
		t.signalGroup(unix.SIGCONT)
	}

	if err := t.ptmx.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, fmt.Errorf("close pty master: %w", err))
	}

	select {
	case <-t.exited:
	case <-time.After(t.grace):
		t.log.Warn().Int("pid", t.pid).Dur("grace", t.grace).Msg("shell ignored hangup, sending SIGKILL")
		t.signalGroup(unix.SIGKILL)
		select {
		case <-t.exited:
		case <-time.After(killWait):
			errs = append(errs, fmt.Errorf("process %d still running after SIGKILL", t.pid))
		}
	}

	return errors.Join(errs...)
}

// signalGroup signals the shell's process group, falling back to the shell
// alone. Nothing is sent once the shell is reaped since its pid may be
// reused.
func (t *Transport) signalGroup(sig unix.Signal) {
	if t.hasExited() {
		return
	}
	err := unix.Kill(-t.pid, sig)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return
	}
	if err := unix.Kill(t.pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		t.log.Warn().Int("pid", t.pid).Stringer("signal", sig).Err(err).Msg("failed to signal process")
	}
}
