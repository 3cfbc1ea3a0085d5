package api

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/PiranhaCodes/ptyhost/internal/pty"
	"github.com/stretchr/testify/assert"
)

func raw(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func TestErrorResponseCodes(t *testing.T) {
	cases := map[error]string{
		pty.ErrNotFound:        CodeNotFound,
		pty.ErrClosed:          CodeClosed,
		pty.ErrInvalidArgument: CodeInvalidArgument,
		pty.ErrSpawn:           CodeSpawn,
		pty.ErrIO:              CodeIO,
		pty.ErrManagerClosed:   CodeUnavailable,
		fmt.Errorf("boom"):     CodeInternal,
	}
	for err, code := range cases {
		wrapped := fmt.Errorf("context: %w", err)
		resp := errorResponse(wrapped)
		assert.False(t, resp.Ok)
		assert.Equal(t, code, resp.Code, "%v", err)
		assert.Equal(t, wrapped.Error(), resp.Err)
	}
}

func TestRemoteErrorUnwrap(t *testing.T) {
	for _, code := range []string{CodeNotFound, CodeClosed, CodeInvalidArgument, CodeSpawn, CodeIO, CodeUnavailable} {
		resp := errorResponse(&RemoteError{Code: code, Msg: "x"})
		assert.Equal(t, code, resp.Code)
	}
	assert.Nil(t, (&RemoteError{Code: CodeBadRequest}).Unwrap())
}

func TestHandlerRejectsMalformedRequests(t *testing.T) {
	h := NewHandler(pty.NewManager(pty.Config{}, nil))
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
		code string
	}{
		{"unknown action", Request{Action: "explode"}, CodeBadRequest},
		{"create without data", Request{Action: ActionCreate}, CodeBadRequest},
		{"create bad json", Request{Action: ActionCreate, Data: json.RawMessage(`{"rows":"x"}`)}, CodeBadRequest},
		{"create zero geometry", Request{Action: ActionCreate, Data: raw(CreateRequest{})}, CodeInvalidArgument},
		{"write without id", Request{Action: ActionWrite, Data: raw(WriteRequest{Data: "ls\n"})}, CodeBadRequest},
		{"write bad base64", Request{Action: ActionWrite, Data: raw(WriteRequest{ID: 1, Data: "%%%", Encoding: EncodingBase64})}, CodeBadRequest},
		{"write unknown encoding", Request{Action: ActionWrite, Data: raw(WriteRequest{ID: 1, Data: "x", Encoding: "rot13"})}, CodeBadRequest},
		{"write unknown id", Request{Action: ActionWrite, Data: raw(WriteRequest{ID: 9, Data: "x"})}, CodeNotFound},
		{"resize unknown id", Request{Action: ActionResize, Data: raw(ResizeRequest{ID: 9, Rows: 1, Cols: 1})}, CodeNotFound},
		{"resize bad geometry", Request{Action: ActionResize, Data: raw(ResizeRequest{ID: 9})}, CodeInvalidArgument},
		{"close without id", Request{Action: ActionClose, Data: raw(CloseRequest{})}, CodeBadRequest},
		{"close unknown id", Request{Action: ActionClose, Data: raw(CloseRequest{ID: 9})}, CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := h.Handle(ctx, tc.req)
			assert.False(t, resp.Ok)
			assert.Equal(t, tc.code, resp.Code, resp.Err)
		})
	}
}

func TestHandlerEmptyManager(t *testing.T) {
	h := NewHandler(pty.NewManager(pty.Config{}, nil))
	ctx := context.Background()

	resp := h.Handle(ctx, Request{Action: ActionList})
	assert.True(t, resp.Ok)
	assert.Equal(t, ListResponse{Sessions: []SessionInfo{}, Count: 0}, resp.Data)

	resp = h.Handle(ctx, Request{Action: ActionStatus})
	assert.True(t, resp.Ok)
	assert.Equal(t, StatusResponse{Running: false, Count: 0}, resp.Data)

	resp = h.Handle(ctx, Request{Action: ActionShutdown})
	assert.True(t, resp.Ok)
	assert.Equal(t, ShutdownResponse{Closed: 0}, resp.Data)
}

func TestEventWireFormat(t *testing.T) {
	out, err := json.Marshal(newEvent(pty.Event{Kind: pty.EventOutput, ID: 3, Data: []byte("hi\n")}))
	assert.NoError(t, err)
	assert.JSONEq(t, `{"type":"output","id":3,"data":"aGkK"}`, string(out))

	out, err = json.Marshal(newEvent(pty.Event{Kind: pty.EventExit, ID: 3, ExitCode: 0}))
	assert.NoError(t, err)
	assert.JSONEq(t, `{"type":"exit","id":3,"exit_code":0}`, string(out))
}
