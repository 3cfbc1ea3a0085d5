package pty

import (
	"bytes"
	"errors"
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestTransport(t *testing.T) *Transport {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping pty test in short mode")
	}
	tr, err := Open(Options{Rows: 24, Cols: 80, Shell: "/bin/sh", GracePeriod: 500 * time.Millisecond})
	if errors.Is(err, ErrSpawn) {
		t.Skipf("skipping: cannot spawn shell on a pty: %v", err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Terminate() })
	return tr
}

// drain reads until EOF, returning what was read.
func drain(tr *Transport) (<-chan []byte, <-chan error) {
	out := make(chan []byte, 1)
	errc := make(chan error, 1)
	go func() {
		var buf bytes.Buffer
		chunk := make([]byte, 1024)
		for {
			n, err := tr.Read(chunk)
			buf.Write(chunk[:n])
			if err != nil {
				out <- buf.Bytes()
				errc <- err
				return
			}
		}
	}()
	return out, errc
}

func TestValidateGeometry(t *testing.T) {
	assert.NoError(t, ValidateGeometry(24, 80))
	assert.NoError(t, ValidateGeometry(1, 1))
	assert.NoError(t, ValidateGeometry(maxDimension, maxDimension))
	assert.ErrorIs(t, ValidateGeometry(0, 0), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateGeometry(24, -1), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateGeometry(maxDimension+1, 80), ErrInvalidArgument)
}

func TestOpenRejectsBadGeometry(t *testing.T) {
	_, err := Open(Options{Rows: 0, Cols: 0})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTransportTerminateUnblocksRead(t *testing.T) {
	tr := openTestTransport(t)
	out, errc := drain(tr)

	require.NoError(t, tr.Terminate())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, io.EOF)
		<-out
	case <-time.After(waitTimeout):
		t.Fatal("read still blocked after Terminate")
	}
	assert.True(t, processGone(tr.PID()))
}

func TestTransportTerminateUnblocksReadAfterResize(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
	tr := openTestTransport(t)
	out, errc := drain(tr)

	_, err := tr.Write([]byte("setsid sleep 10 &\n"))
	require.NoError(t, err)
	require.NoError(t, tr.Resize(30, 100))
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	require.NoError(t, tr.Terminate())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, io.EOF)
		<-out
	case <-time.After(3 * time.Second):
		t.Fatal("read still blocked while a detached process holds the slave")
	}
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestTransportTerminateIdempotent(t *testing.T) {
	tr := openTestTransport(t)

	first := tr.Terminate()
	second := tr.Terminate()
	assert.Equal(t, first, second)

	_, err := tr.Write([]byte("echo hi\n"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, tr.Resize(30, 100), ErrClosed)
}

func TestTransportExitCode(t *testing.T) {
	tr := openTestTransport(t)
	assert.Equal(t, -1, tr.ExitCode())

	out, errc := drain(tr)
	_, err := tr.Write([]byte("exit 7\n"))
	require.NoError(t, err)

	select {
	case <-tr.Exited():
	case <-time.After(waitTimeout):
		t.Fatal("shell did not exit")
	}
	assert.Equal(t, 7, tr.ExitCode())
	assert.ErrorIs(t, <-errc, io.EOF)
	<-out
}

func TestTransportEnvironment(t *testing.T) {
	tr := openTestTransport(t)
	out, _ := drain(tr)

	_, err := tr.Write([]byte("echo \"[$TERM|$COLORTERM]\"; exit\n"))
	require.NoError(t, err)

	select {
	case b := <-out:
		assert.Contains(t, string(b), "[xterm-256color|truecolor]")
	case <-time.After(waitTimeout):
		t.Fatal("shell did not exit")
	}
}
