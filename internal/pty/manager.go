package pty

import (
	"context"
	"fmt"
	"time"

	"github.com/PiranhaCodes/ptyhost/internal/logging"
	"github.com/PiranhaCodes/ptyhost/internal/tracing"
	"github.com/rs/zerolog"
)

// Config holds the settings every spawned session shares.
type Config struct {
	Shell       string
	Args        []string
	Dir         string
	Env         []string
	Term        string
	GracePeriod time.Duration
	ReadBuffer  int
}

// Manager is the public surface of the session host. It is safe for
// concurrent use; operations on different ids run in parallel and
// operations on one id are serialized by that session.
type Manager struct {
	cfg      Config
	registry *Registry
	sink     Sink
	log      zerolog.Logger
}

// NewManager returns a Manager publishing session events to sink. A nil
// sink discards events.
func NewManager(cfg Config, sink Sink) *Manager {
	if sink == nil {
		sink = discardSink{}
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = DefaultReadBuffer
	}
	return &Manager{
		cfg:      cfg,
		registry: NewRegistry(),
		sink:     sink,
		log:      logging.Component("pty"),
	}
}

func (m *Manager) sessionLogger(id ID) zerolog.Logger {
	return m.log.With().Uint64("session", uint64(id)).Logger()
}

// Create spawns a shell on a new rows x cols pty, registers it as Running
// and starts relaying its output. It returns the new session id.
func (m *Manager) Create(ctx context.Context, rows, cols int) (id ID, err error) {
	_, span := tracing.StartSpan(ctx, "pty.create")
	defer func() {
		span.SetInt("session", int64(id))
		tracing.EndSpan(span, err)
	}()

	if err := ValidateGeometry(rows, cols); err != nil {
		return 0, err
	}
	if m.registry.Sealed() {
		return 0, ErrManagerClosed
	}

	id = m.registry.NextID()
	log := m.sessionLogger(id)

	t, err := Open(Options{
		Rows:        rows,
		Cols:        cols,
		Shell:       m.cfg.Shell,
		Args:        m.cfg.Args,
		Dir:         m.cfg.Dir,
		Env:         m.cfg.Env,
		Term:        m.cfg.Term,
		GracePeriod: m.cfg.GracePeriod,
		Logger:      log,
	})
	if err != nil {
		log.Error().Err(err).Msg("spawn failed")
		return 0, err
	}

	s := newSession(id, t, rows, cols)
	s.relay = newRelay(s, m.sink, m.cfg.ReadBuffer, log)
	s.relay.start()

	if err := m.registry.Add(s); err != nil {
		s.markClosed()
		if terr := m.teardown(s); terr != nil {
			log.Warn().Err(terr).Msg("teardown after rejected create failed")
		}
		return 0, err
	}

	log.Info().Str("shell", t.Shell()).Int("pid", t.PID()).Int("rows", rows).Int("cols", cols).Msg("spawned session")
	return id, nil
}

func (m *Manager) lookup(id ID) (*Session, error) {
	s, ok := m.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return s, nil
}

// Write sends raw bytes to the session's shell.
func (m *Manager) Write(id ID, data []byte) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	return s.Write(data)
}

// Resize changes the session's pty geometry.
func (m *Manager) Resize(id ID, rows, cols int) error {
	if err := ValidateGeometry(rows, cols); err != nil {
		return err
	}
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	return s.Resize(rows, cols)
}

// Close terminates the session, stops its relay and forgets it. Closing an
// unknown or already closed id fails with ErrNotFound.
func (m *Manager) Close(ctx context.Context, id ID) (err error) {
	_, span := tracing.StartSpan(ctx, "pty.close")
	span.SetInt("session", int64(id))
	defer func() { tracing.EndSpan(span, err) }()

	s, ok := m.registry.Take(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return m.teardown(s)
}

// Get returns a snapshot of one session.
func (m *Manager) Get(id ID) (Info, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return s.Info(), nil
}

// List returns snapshots of all sessions ordered by id.
func (m *Manager) List() []Info {
	sessions := m.registry.List()
	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	return m.registry.Count()
}

// HasRunning reports whether any session's shell is still running.
func (m *Manager) HasRunning() bool {
	for _, s := range m.registry.List() {
		if s.State() == StateRunning {
			return true
		}
	}
	return false
}
