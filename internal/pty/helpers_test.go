package pty

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PiranhaCodes/ptyhost/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 10 * time.Second

// recorder is a Sink that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) forSession(id ID) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.ID == id {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) output(id ID) []byte {
	var buf bytes.Buffer
	for _, ev := range r.forSession(id) {
		if ev.Kind == EventOutput {
			buf.Write(ev.Data)
		}
	}
	return buf.Bytes()
}

func (r *recorder) exits(id ID) int {
	n := 0
	for _, ev := range r.forSession(id) {
		if ev.Kind == EventExit {
			n++
		}
	}
	return n
}

func (r *recorder) waitForOutput(t *testing.T, id ID, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return bytes.Contains(r.output(id), []byte(want))
	}, waitTimeout, 20*time.Millisecond, "output of session %d never contained %q; got %q", id, want, r.output(id))
}

func (r *recorder) waitForExit(t *testing.T, id ID) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.exits(id) > 0
	}, waitTimeout, 20*time.Millisecond, "session %d never exited", id)
}

func newTestManager(t *testing.T) (*Manager, *recorder) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping pty test in short mode")
	}
	testlog.Start(t)

	rec := &recorder{}
	m := NewManager(Config{
		Shell:       "/bin/sh",
		Env:         []string{"PS1=$ "},
		GracePeriod: 500 * time.Millisecond,
	}, rec)
	t.Cleanup(func() {
		_ = m.Shutdown(context.Background())
	})
	return m, rec
}

// mustCreate skips the test when the environment cannot allocate a pty.
func mustCreate(t *testing.T, m *Manager, rows, cols int) ID {
	t.Helper()
	id, err := m.Create(context.Background(), rows, cols)
	if errors.Is(err, ErrSpawn) {
		t.Skipf("skipping: cannot spawn shell on a pty: %v", err)
	}
	require.NoError(t, err)
	return id
}
