package pty

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultReadBuffer is the relay's read size.
const DefaultReadBuffer = 4096

// exitCodeWait bounds how long the relay waits for the reaper before it
// reports an exit without a known code.
const exitCodeWait = 500 * time.Millisecond

// EventKind distinguishes output chunks from exit notifications.
type EventKind int

const (
	EventOutput EventKind = iota
	EventExit
)

func (k EventKind) String() string {
	if k == EventExit {
		return "exit"
	}
	return "output"
}

// Event is produced by a relay toward the presentation layer.
type Event struct {
	Kind EventKind
	ID   ID
	// Data is set for output events and owned by the receiver.
	Data []byte
	// ExitCode is set for exit events; -1 when unknown.
	ExitCode int
}

// Sink receives session events. Publish is called from one goroutine per
// session, so events for a single session arrive in order. Implementations
// must not block for long: a slow sink stalls that session's output.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish calls f(ev).
func (f SinkFunc) Publish(ev Event) { f(ev) }

type discardSink struct{}

func (discardSink) Publish(Event) {}

// relay drains one session's transport into the sink and reports its exit
// exactly once.
type relay struct {
	session   *Session
	transport *Transport
	sink      Sink
	bufSize   int
	log       zerolog.Logger

	exitOnce sync.Once
	done     chan struct{}
}

func newRelay(s *Session, sink Sink, bufSize int, log zerolog.Logger) *relay {
	if bufSize <= 0 {
		bufSize = DefaultReadBuffer
	}
	return &relay{
		session:   s,
		transport: s.transport,
		sink:      sink,
		bufSize:   bufSize,
		log:       log,
		done:      make(chan struct{}),
	}
}

func (r *relay) start() {
	go r.run()
}

// Done is closed after the exit event has been published.
func (r *relay) Done() <-chan struct{} { return r.done }

func (r *relay) run() {
	defer close(r.done)

	buf := make([]byte, r.bufSize)
	for {
		n, err := r.transport.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			r.sink.Publish(Event{Kind: EventOutput, ID: r.session.id, Data: chunk})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Warn().Err(err).Msg("pty read failed, treating as exit")
			} else {
				r.log.Debug().Msg("pty closed (EOF)")
			}
			break
		}
	}

	r.finish()
}

// finish moves the session to Exited if it is still running and publishes
// the single exit event.
func (r *relay) finish() {
	r.exitOnce.Do(func() {
		if r.session.markExited() {
			r.log.Info().Msg("session exited")
		}
		select {
		case <-r.transport.Exited():
		case <-time.After(exitCodeWait):
		}
		r.sink.Publish(Event{Kind: EventExit, ID: r.session.id, ExitCode: r.transport.ExitCode()})
	})
}
