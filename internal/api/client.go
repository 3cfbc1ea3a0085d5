package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/PiranhaCodes/ptyhost/internal/pty"
)

// RemoteError is a failed response from the server. It unwraps to the
// matching pty sentinel so callers can use errors.Is.
type RemoteError struct {
	Code string
	Msg  string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return e.Msg
	}
	return e.Code + ": " + e.Msg
}

func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case CodeNotFound:
		return pty.ErrNotFound
	case CodeClosed:
		return pty.ErrClosed
	case CodeInvalidArgument:
		return pty.ErrInvalidArgument
	case CodeSpawn:
		return pty.ErrSpawn
	case CodeIO:
		return pty.ErrIO
	case CodeUnavailable:
		return pty.ErrManagerClosed
	}
	return nil
}

type rawResponse struct {
	Ok   bool            `json:"ok"`
	Err  string          `json:"err"`
	Code string          `json:"code"`
	Data json.RawMessage `json:"data"`
}

// Client speaks the socket protocol. Calls are serialized over one
// connection; Subscribe opens a second one.
type Client struct {
	socketPath string

	mu      sync.Mutex
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
}

// Dial connects to the server at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		socketPath: socketPath,
		conn:       conn,
		encoder:    json.NewEncoder(conn),
		decoder:    json.NewDecoder(conn),
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(action string, in, out interface{}) error {
	req := Request{Action: action}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		req.Data = data
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.encoder.Encode(req); err != nil {
		return err
	}
	var resp rawResponse
	if err := c.decoder.Decode(&resp); err != nil {
		return err
	}
	if !resp.Ok {
		return &RemoteError{Code: resp.Code, Msg: resp.Err}
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("failed to parse %s response: %w", action, err)
		}
	}
	return nil
}

// Create starts a session and returns its id.
func (c *Client) Create(rows, cols int) (pty.ID, error) {
	var resp CreateResponse
	if err := c.call(ActionCreate, CreateRequest{Rows: rows, Cols: cols}, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// Write sends raw bytes to a session.
func (c *Client) Write(id pty.ID, data []byte) error {
	return c.call(ActionWrite, WriteRequest{
		ID:       id,
		Data:     base64.StdEncoding.EncodeToString(data),
		Encoding: EncodingBase64,
	}, nil)
}

// Resize changes a session's geometry.
func (c *Client) Resize(id pty.ID, rows, cols int) error {
	return c.call(ActionResize, ResizeRequest{ID: id, Rows: rows, Cols: cols}, nil)
}

// CloseSession closes a session.
func (c *Client) CloseSession(id pty.ID) error {
	return c.call(ActionClose, CloseRequest{ID: id}, nil)
}

// List returns all sessions.
func (c *Client) List() (ListResponse, error) {
	var resp ListResponse
	err := c.call(ActionList, nil, &resp)
	return resp, err
}

// Status reports whether any session is running.
func (c *Client) Status() (StatusResponse, error) {
	var resp StatusResponse
	err := c.call(ActionStatus, nil, &resp)
	return resp, err
}

// Shutdown closes every session on the server.
func (c *Client) Shutdown() (int, error) {
	var resp ShutdownResponse
	err := c.call(ActionShutdown, nil, &resp)
	return resp.Closed, err
}

// Subscribe opens an event stream on a new connection. The channel closes
// when ctx is done or the server ends the stream.
func (c *Client) Subscribe(ctx context.Context) (<-chan Event, error) {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return nil, err
	}
	encoder := json.NewEncoder(conn)
	decoder := json.NewDecoder(conn)

	if err := encoder.Encode(Request{Action: ActionSubscribe}); err != nil {
		conn.Close()
		return nil, err
	}
	var resp rawResponse
	if err := decoder.Decode(&resp); err != nil {
		conn.Close()
		return nil, err
	}
	if !resp.Ok {
		conn.Close()
		return nil, &RemoteError{Code: resp.Code, Msg: resp.Err}
	}

	events := make(chan Event, 64)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()
	go func() {
		defer close(events)
		defer close(done)
		for {
			var ev Event
			if err := decoder.Decode(&ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
