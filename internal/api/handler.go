package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/PiranhaCodes/ptyhost/internal/logging"
	"github.com/PiranhaCodes/ptyhost/internal/pty"
	"github.com/PiranhaCodes/ptyhost/internal/tracing"
	"github.com/rs/zerolog"
)

// Handler executes commands against a session manager. Both the socket
// server and the WebSocket gateway route requests through it.
type Handler struct {
	manager *pty.Manager
	log     zerolog.Logger
}

// NewHandler returns a Handler for m.
func NewHandler(m *pty.Manager) *Handler {
	return &Handler{manager: m, log: logging.Component("api")}
}

// Handle runs one request. Subscribe is transport specific and is not
// handled here.
func (h *Handler) Handle(ctx context.Context, req Request) (resp Response) {
	ctx, span := tracing.StartSpan(ctx, "api."+req.Action)
	defer func() {
		var err error
		if !resp.Ok {
			err = errors.New(resp.Err)
		}
		tracing.EndSpan(span, err)
	}()

	switch req.Action {
	case ActionCreate:
		return h.handleCreate(ctx, req.Data)
	case ActionWrite:
		return h.handleWrite(req.Data)
	case ActionResize:
		return h.handleResize(req.Data)
	case ActionClose:
		return h.handleClose(ctx, req.Data)
	case ActionList:
		return h.handleList()
	case ActionStatus:
		return h.handleStatus()
	case ActionShutdown:
		return h.handleShutdown(ctx)
	default:
		return Response{Ok: false, Code: CodeBadRequest, Err: "unknown action: " + req.Action}
	}
}

func badRequest(msg string, err error) Response {
	if err != nil {
		msg += ": " + err.Error()
	}
	return Response{Ok: false, Code: CodeBadRequest, Err: msg}
}

// errorResponse maps manager errors onto wire codes.
func errorResponse(err error) Response {
	code := CodeInternal
	switch {
	case errors.Is(err, pty.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, pty.ErrClosed):
		code = CodeClosed
	case errors.Is(err, pty.ErrInvalidArgument):
		code = CodeInvalidArgument
	case errors.Is(err, pty.ErrSpawn):
		code = CodeSpawn
	case errors.Is(err, pty.ErrIO):
		code = CodeIO
	case errors.Is(err, pty.ErrManagerClosed):
		code = CodeUnavailable
	}
	return Response{Ok: false, Code: code, Err: err.Error()}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(data, v)
}

func (h *Handler) handleCreate(ctx context.Context, data json.RawMessage) Response {
	var req CreateRequest
	if err := decode(data, &req); err != nil {
		return badRequest("invalid create request", err)
	}

	id, err := h.manager.Create(ctx, req.Rows, req.Cols)
	if err != nil {
		return errorResponse(err)
	}
	return Response{Ok: true, Data: CreateResponse{ID: id}}
}

func (h *Handler) handleWrite(data json.RawMessage) Response {
	var req WriteRequest
	if err := decode(data, &req); err != nil {
		return badRequest("invalid write request", err)
	}
	if req.ID == 0 {
		return badRequest("session ID is required", nil)
	}

	payload := []byte(req.Data)
	switch req.Encoding {
	case "":
	case EncodingBase64:
		b, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			return badRequest("invalid base64 data", err)
		}
		payload = b
	default:
		return badRequest("unknown encoding: "+req.Encoding, nil)
	}

	if err := h.manager.Write(req.ID, payload); err != nil {
		return errorResponse(err)
	}
	return Response{Ok: true}
}

func (h *Handler) handleResize(data json.RawMessage) Response {
	var req ResizeRequest
	if err := decode(data, &req); err != nil {
		return badRequest("invalid resize request", err)
	}
	if req.ID == 0 {
		return badRequest("session ID is required", nil)
	}

	if err := h.manager.Resize(req.ID, req.Rows, req.Cols); err != nil {
		return errorResponse(err)
	}
	return Response{Ok: true}
}

func (h *Handler) handleClose(ctx context.Context, data json.RawMessage) Response {
	var req CloseRequest
	if err := decode(data, &req); err != nil {
		return badRequest("invalid close request", err)
	}
	if req.ID == 0 {
		return badRequest("session ID is required", nil)
	}

	if err := h.manager.Close(ctx, req.ID); err != nil {
		return errorResponse(err)
	}
	return Response{Ok: true}
}

func (h *Handler) handleList() Response {
	infos := h.manager.List()
	sessions := make([]SessionInfo, 0, len(infos))
	for _, info := range infos {
		sessions = append(sessions, sessionInfo(info))
	}
	return Response{
		Ok: true,
		Data: ListResponse{
			Sessions: sessions,
			Count:    len(sessions),
		},
	}
}

func (h *Handler) handleStatus() Response {
	return Response{
		Ok: true,
		Data: StatusResponse{
			Running: h.manager.HasRunning(),
			Count:   h.manager.Count(),
		},
	}
}

func (h *Handler) handleShutdown(ctx context.Context) Response {
	n, err := h.manager.ShutdownAll(ctx)
	if err != nil {
		h.log.Warn().Err(err).Int("sessions", n).Msg("shutdown finished with errors")
		return errorResponse(err)
	}
	return Response{Ok: true, Data: ShutdownResponse{Closed: n}}
}
