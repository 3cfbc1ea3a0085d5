package pty

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PiranhaCodes/ptyhost/internal/tracing"
)

// relayWait bounds how long teardown waits for a relay to publish its exit
// event after the transport is gone.
const relayWait = 5 * time.Second

// ioWait bounds how long teardown waits for an in-flight write or resize.
const ioWait = 5 * time.Second

// teardown releases everything a session owns. The session must already be
// out of the registry and marked Closed.
func (m *Manager) teardown(s *Session) error {
	log := m.sessionLogger(s.id)
	log.Debug().Msg("cleaning up session")

	err := s.transport.Terminate()

	// Closing the master wakes any write or resize that raced with the
	// close; wait for it to let go.
	if !s.awaitIO(ioWait) {
		err = errors.Join(err, fmt.Errorf("write to session %d did not return", s.id))
	}

	if s.relay != nil {
		select {
		case <-s.relay.Done():
		case <-time.After(relayWait):
			err = errors.Join(err, fmt.Errorf("relay for session %d did not stop", s.id))
		}
	}

	if err != nil {
		log.Warn().Err(err).Msg("session cleanup incomplete")
		return err
	}
	log.Info().Msg("session closed")
	return nil
}

// ShutdownAll closes every registered session, continuing past failures,
// and returns how many sessions it closed. New sessions may still be
// created afterwards.
func (m *Manager) ShutdownAll(ctx context.Context) (int, error) {
	return m.closeAll(ctx, false)
}

// Shutdown is used when the host is exiting: it refuses further creates
// and closes every session.
func (m *Manager) Shutdown(ctx context.Context) error {
	_, err := m.closeAll(ctx, true)
	return err
}

func (m *Manager) closeAll(ctx context.Context, seal bool) (n int, err error) {
	ctx, span := tracing.StartSpan(ctx, "pty.shutdown_all")
	defer func() {
		span.SetInt("sessions", int64(n))
		tracing.EndSpan(span, err)
	}()

	sessions := m.registry.TakeAll(seal)
	if len(sessions) == 0 {
		return 0, nil
	}
	m.log.Info().Int("sessions", len(sessions)).Bool("seal", seal).Msg("closing all sessions")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := m.teardown(s); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("session %d: %w", s.id, err))
				mu.Unlock()
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		mu.Lock()
		errs = append(errs, fmt.Errorf("shutdown interrupted: %w", ctx.Err()))
		mu.Unlock()
	}

	mu.Lock()
	defer mu.Unlock()
	return len(sessions), errors.Join(errs...)
}
