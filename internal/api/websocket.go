package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/PiranhaCodes/ptyhost/internal/logging"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const wsWriteTimeout = 10 * time.Second

// Gateway serves the command/event contract over WebSocket for browser
// front ends. Every connection is subscribed to events and may send
// requests at any time; responses and events share the connection and are
// told apart by their "type" field.
type Gateway struct {
	addr     string
	handler  *Handler
	hub      *Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger

	srv *http.Server
}

// NewGateway returns a gateway for addr. With no allowed origins the
// upgrader's same-origin check applies.
func NewGateway(addr string, handler *Handler, hub *Hub, allowedOrigins []string) *Gateway {
	g := &Gateway{
		addr:    addr,
		handler: handler,
		hub:     hub,
		log:     logging.Component("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]struct{}, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = struct{}{}
		}
		g.upgrader.CheckOrigin = func(r *http.Request) bool {
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", g)
	g.srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return g
}

// Start listens on the gateway address and serves until Stop.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		return err
	}
	return g.Serve(ln)
}

// Serve serves on ln until Stop.
func (g *Gateway) Serve(ln net.Listener) error {
	g.log.Info().Str("addr", ln.Addr().String()).Msg("websocket gateway listening")
	if err := g.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the HTTP server down. Hijacked WebSocket connections end when
// the hub is closed.
func (g *Gateway) Stop(ctx context.Context) error {
	return g.srv.Shutdown(ctx)
}

// ServeHTTP upgrades the request and runs the connection.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := g.hub.Subscribe()
	log := g.log.With().Stringer("subscriber", sub.ID).Str("remote", r.RemoteAddr).Logger()
	log.Debug().Msg("websocket client connected")

	var wmu sync.Mutex
	write := func(v interface{}) error {
		wmu.Lock()
		defer wmu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(v)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub.Events() {
			if err := write(newEvent(ev)); err != nil {
				conn.Close()
				return
			}
		}
		if sub.Overflowed() {
			log.Warn().Msg("event stream dropped: client too slow")
		}
		// Subscription ended; unblock the read loop.
		conn.Close()
	}()

	ctx := context.WithoutCancel(r.Context())
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			break
		}
		resp := Response{Ok: true}
		if req.Action != ActionSubscribe {
			resp = g.handler.Handle(ctx, req)
		}
		if err := write(ResponseFrame{Type: FrameResponse, Seq: req.Seq, Response: resp}); err != nil {
			break
		}
	}

	sub.Close()
	<-done
	log.Debug().Msg("websocket client disconnected")
}
