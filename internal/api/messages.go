package api

import (
	"encoding/json"
	"time"

	"github.com/PiranhaCodes/ptyhost/internal/pty"
)

// Actions understood by the dispatcher.
const (
	ActionCreate    = "create"
	ActionWrite     = "write"
	ActionResize    = "resize"
	ActionClose     = "close"
	ActionList      = "list"
	ActionStatus    = "status"
	ActionShutdown  = "shutdown"
	ActionSubscribe = "subscribe"
)

// Error codes carried in Response.Code.
const (
	CodeBadRequest      = "bad_request"
	CodeNotFound        = "not_found"
	CodeClosed          = "closed"
	CodeInvalidArgument = "invalid_argument"
	CodeSpawn           = "spawn"
	CodeIO              = "io"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

// Request represents an incoming command. Seq is echoed back on WebSocket
// responses so clients can match them to requests.
type Request struct {
	Action string          `json:"action"`
	Seq    uint64          `json:"seq,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Response represents a response to a request.
type Response struct {
	Ok   bool        `json:"ok"`
	Err  string      `json:"err,omitempty"`
	Code string      `json:"code,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// CreateRequest is the data for a create action.
type CreateRequest struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// CreateResponse is the data returned from a create action.
type CreateResponse struct {
	ID pty.ID `json:"id"`
}

// EncodingBase64 marks WriteRequest.Data as base64.
const EncodingBase64 = "base64"

// WriteRequest is the data for a write action. Data is sent as-is unless
// Encoding is "base64".
type WriteRequest struct {
	ID       pty.ID `json:"id"`
	Data     string `json:"data"`
	Encoding string `json:"encoding,omitempty"`
}

// ResizeRequest is the data for a resize action.
type ResizeRequest struct {
	ID   pty.ID `json:"id"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

// CloseRequest is the data for a close action.
type CloseRequest struct {
	ID pty.ID `json:"id"`
}

// ListResponse is the data returned from a list action.
type ListResponse struct {
	Sessions []SessionInfo `json:"sessions"`
	Count    int           `json:"count"`
}

// SessionInfo contains information about a session.
type SessionInfo struct {
	ID        pty.ID    `json:"id"`
	State     string    `json:"state"`
	Rows      int       `json:"rows"`
	Cols      int       `json:"cols"`
	PID       int       `json:"pid"`
	Shell     string    `json:"shell"`
	CreatedAt time.Time `json:"created_at"`
	ExitCode  int       `json:"exit_code"`
}

// StatusResponse is the data returned from a status action.
type StatusResponse struct {
	Running bool `json:"running"`
	Count   int  `json:"count"`
}

// ShutdownResponse is the data returned from a shutdown action.
type ShutdownResponse struct {
	Closed int `json:"closed"`
}

// Frame types on a WebSocket connection.
const (
	FrameResponse = "response"
	FrameOutput   = "output"
	FrameExit     = "exit"
)

// ResponseFrame is a Response as sent on a WebSocket connection.
type ResponseFrame struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq,omitempty"`
	Response
}

// Event is a session event on the wire. Data is base64 encoded by
// encoding/json.
type Event struct {
	Type     string `json:"type"`
	ID       pty.ID `json:"id"`
	Data     []byte `json:"data,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

func newEvent(ev pty.Event) Event {
	if ev.Kind == pty.EventExit {
		code := ev.ExitCode
		return Event{Type: FrameExit, ID: ev.ID, ExitCode: &code}
	}
	return Event{Type: FrameOutput, ID: ev.ID, Data: ev.Data}
}

func sessionInfo(info pty.Info) SessionInfo {
	return SessionInfo{
		ID:        info.ID,
		State:     info.State.String(),
		Rows:      info.Rows,
		Cols:      info.Cols,
		PID:       info.PID,
		Shell:     info.Shell,
		CreatedAt: info.CreatedAt,
		ExitCode:  info.ExitCode,
	}
}
