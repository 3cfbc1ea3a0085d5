package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/PiranhaCodes/ptyhost/internal/logging"
	"github.com/rs/zerolog"
)

// Server handles UNIX socket connections. Each connection carries
// newline-delimited JSON requests until EOF, or becomes an event stream
// after a subscribe request.
type Server struct {
	socketPath string
	handler    *Handler
	hub        *Hub
	log        zerolog.Logger

	listener net.Listener
	stopOnce sync.Once
	stopChan chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer creates a new server instance.
func NewServer(socketPath string, handler *Handler, hub *Hub) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		hub:        hub,
		log:        logging.Component("api"),
		stopChan:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Listen binds the socket, replacing a stale socket file.
func (s *Server) Listen() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return err
	}

	s.listener = listener
	s.log.Info().Str("socket", s.socketPath).Msg("server listening")
	return nil
}

// Serve accepts connections on the bound socket.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
				return err
			}
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

// Stop closes the listener and every open connection, then waits for the
// connection handlers to return.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
		s.log.Info().Msg("server stopped")
	})
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopChan:
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				encoder.Encode(Response{Ok: false, Code: CodeBadRequest, Err: "invalid request: " + err.Error()})
			}
			return
		}

		if req.Action == ActionSubscribe {
			if err := encoder.Encode(Response{Ok: true}); err != nil {
				return
			}
			s.stream(conn, encoder)
			return
		}

		if err := encoder.Encode(s.handler.Handle(s.ctx, req)); err != nil {
			s.log.Debug().Err(err).Msg("failed to write response")
			return
		}
	}
}

// stream forwards hub events to conn until the client hangs up, the
// subscriber falls behind, or the server stops.
func (s *Server) stream(conn net.Conn, encoder *json.Encoder) {
	sub := s.hub.Subscribe()
	defer sub.Close()

	hangup := make(chan struct{})
	go func() {
		// Subscribed clients send nothing more; any read result means the
		// peer went away.
		io.Copy(io.Discard, conn)
		close(hangup)
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				if sub.Overflowed() {
					s.log.Warn().Stringer("subscriber", sub.ID).Msg("event stream dropped: client too slow")
				}
				return
			}
			if err := encoder.Encode(newEvent(ev)); err != nil {
				return
			}
		case <-hangup:
			return
		case <-s.stopChan:
			return
		}
	}
}
