package jsonrpc2

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// pendingOutbound tracks one request this endpoint has sent and is still
// waiting to hear back about.
type pendingOutbound struct {
	method   string
	resultCh chan outboundResult
}

type outboundResult struct {
	value any
	err   error
}

// ExceptionHandler maps an error returned by a LocalEndpoint handler to the
// ResponseError reported to the remote peer. It is never consulted for
// errors that are already a *ResponseErrorException; those are unwrapped
// verbatim instead.
type ExceptionHandler func(err error) *ResponseError

func defaultExceptionHandler(err error) *ResponseError {
	return NewResponseError(InternalError, "Internal error.", err.Error())
}

// RemoteEndpoint is a bidirectional JSON-RPC 2.0 endpoint: the inbound
// dispatcher, outbound request tracker, and cancellation bridge described
// in this package's documentation. It has no opinion about how bytes reach
// it (see Pump) or leave it (see MessageConsumer); it only knows Messages.
type RemoteEndpoint struct {
	nextID atomic.Int64

	mu              sync.Mutex
	outboundPending map[any]*pendingOutbound
	inboundPending  map[any]context.CancelFunc

	out              MessageConsumer
	local            LocalEndpoint
	codec            *Codec
	exceptionHandler ExceptionHandler
	logger           *slog.Logger
}

// Option configures a RemoteEndpoint at construction time.
type Option func(*RemoteEndpoint)

// WithLogger overrides the default stderr text logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *RemoteEndpoint) { e.logger = logger }
}

// WithExceptionHandler overrides the default InternalError-wrapping handler
// used to shape errors a LocalEndpoint.Request handler returns.
func WithExceptionHandler(h ExceptionHandler) Option {
	return func(e *RemoteEndpoint) { e.exceptionHandler = h }
}

// NewRemoteEndpoint builds a RemoteEndpoint that writes outbound messages
// to out, dispatches inbound requests/notifications to local, and encodes
// params/results against codec.
func NewRemoteEndpoint(out MessageConsumer, local LocalEndpoint, codec *Codec, opts ...Option) *RemoteEndpoint {
	e := &RemoteEndpoint{
		outboundPending:  make(map[any]*pendingOutbound),
		inboundPending:   make(map[any]context.CancelFunc),
		out:              out,
		local:            local,
		codec:            codec,
		exceptionHandler: defaultExceptionHandler,
		logger:           slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request sends method(params...) to the remote peer and blocks for its
// response. Cancelling ctx removes the pending entry, emits
// "$/cancelRequest" exactly once, and returns ctx.Err(); a response that
// arrives after that point is dropped with a logged warning.
func (e *RemoteEndpoint) Request(ctx context.Context, method string, params ...any) (any, error) {
	m := e.codec.Resolve(method)
	if m == nil {
		return nil, fmt.Errorf("jsonrpc2: request to unregistered method %q", method)
	}

	jp, err := e.codec.SerializeParams(m, params)
	if err != nil {
		return nil, &ResponseErrorException{Err: NewResponseError(InvalidParams, err.Error(), nil)}
	}

	id := NumberId(e.nextID.Add(1))
	pending := &pendingOutbound{method: method, resultCh: make(chan outboundResult, 1)}

	e.mu.Lock()
	e.outboundPending[id.key()] = pending
	e.mu.Unlock()

	if err := e.out.Send(&RequestMessage{ID: id, Method: method, Params: jp}); err != nil {
		e.mu.Lock()
		delete(e.outboundPending, id.key())
		e.mu.Unlock()
		return nil, err
	}

	select {
	case res := <-pending.resultCh:
		return res.value, res.err
	case <-ctx.Done():
		e.mu.Lock()
		_, stillPending := e.outboundPending[id.key()]
		delete(e.outboundPending, id.key())
		e.mu.Unlock()

		if stillPending {
			e.emitCancel(id)
		}
		return nil, ctx.Err()
	}
}

func (e *RemoteEndpoint) emitCancel(id MessageId) {
	params, err := e.codec.SerializeParams(e.codec.Resolve(CancelMethod), []any{CancelParams{ID: id}})
	if err != nil {
		e.logger.Warn("failed to encode cancel notification", "id", id.String(), "error", err)
		return
	}
	if err := e.out.Send(&NotificationMessage{Method: CancelMethod, Params: params}); err != nil {
		e.logger.Warn("Error while processing the message", "method", CancelMethod, "error", err)
	}
}

// Notify sends a fire-and-forget notification. Encode and transport
// failures are logged at WARNING and never surfaced to the caller, per the
// notification contract: there is no response to fail.
func (e *RemoteEndpoint) Notify(ctx context.Context, method string, params ...any) {
	m := e.codec.Resolve(method)
	if m == nil {
		e.logger.Warn("notify to unregistered method", "method", method)
		return
	}
	jp, err := e.codec.SerializeParams(m, params)
	if err != nil {
		e.logger.Warn("Error while processing the message", "method", method, "error", err)
		return
	}
	if err := e.out.Send(&NotificationMessage{Method: method, Params: jp}); err != nil {
		e.logger.Warn("Error while processing the message", "method", method, "error", err)
	}
}

// Consume dispatches one inbound Message: it resolves a Response against a
// pending outbound request, or dispatches a Request/Notification to the
// local endpoint. A request's handler runs on its own goroutine, so Consume
// does not wait for it; notification handlers, and the error responses for
// requests that cannot be dispatched, run on the caller's goroutine.
func (e *RemoteEndpoint) Consume(ctx context.Context, msg Message) {
	switch m := msg.(type) {
	case *NotificationMessage:
		e.consumeNotification(ctx, m)
	case *RequestMessage:
		e.consumeRequest(ctx, m)
	case *ResponseMessage:
		e.consumeResponse(m)
	default:
		e.logger.Warn("unknown message type", "type", fmt.Sprintf("%T", msg))
	}
}

func isOptionalMethod(name string) bool { return strings.HasPrefix(name, "$/") }

func (e *RemoteEndpoint) consumeNotification(ctx context.Context, m *NotificationMessage) {
	if m.Method == CancelMethod {
		e.consumeCancel(m)
		return
	}

	method := e.codec.Resolve(m.Method)
	if method == nil {
		if isOptionalMethod(m.Method) {
			e.logger.Info("no handler for optional notification", "method", m.Method)
			return
		}
		e.logger.Warn("no handler for notification", "method", m.Method)
		return
	}

	args, err := e.codec.DeserializeParams(method, m.Params)
	if err != nil {
		e.logger.Warn("failed to decode notification params", "method", m.Method, "error", err)
		return
	}

	if err := e.local.Notify(ctx, m.Method, args); err != nil {
		e.logger.Warn("Error while processing the message", "method", m.Method, "error", err)
	}
}

func (e *RemoteEndpoint) consumeCancel(m *NotificationMessage) {
	args, err := e.codec.DeserializeParams(e.codec.Resolve(CancelMethod), m.Params)
	if err != nil {
		e.logger.Warn("failed to decode cancel params", "error", err)
		return
	}
	var cp CancelParams
	ok := len(args) > 0
	if ok {
		cp, ok = args[0].(CancelParams)
	}
	if !ok {
		e.logger.Warn("malformed cancel params")
		return
	}

	e.mu.Lock()
	cancel, ok := e.inboundPending[cp.ID.key()]
	e.mu.Unlock()
	if !ok {
		return // unknown id: silently dropped, per I4
	}
	cancel()
}

func (e *RemoteEndpoint) consumeRequest(ctx context.Context, m *RequestMessage) {
	method := e.codec.Resolve(m.Method)
	if method == nil {
		if isOptionalMethod(m.Method) {
			e.logger.Info("no handler for optional request", "method", m.Method)
			e.sendResponse(&ResponseMessage{ID: m.ID, HasID: true, Result: json.RawMessage("null")})
			return
		}
		e.sendResponse(&ResponseMessage{
			ID: m.ID, HasID: true,
			Error: NewResponseError(MethodNotFound, fmt.Sprintf("Method not found: %s", m.Method), nil),
		})
		return
	}

	args, err := e.codec.DeserializeParams(method, m.Params)
	if err != nil {
		e.sendResponse(&ResponseMessage{
			ID: m.ID, HasID: true,
			Error: NewResponseError(InvalidParams, err.Error(), nil),
		})
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.inboundPending[m.ID.key()] = cancel
	e.mu.Unlock()

	go e.runHandler(handlerCtx, cancel, m, method, args)
}

func (e *RemoteEndpoint) runHandler(ctx context.Context, cancel context.CancelFunc, m *RequestMessage, method *JsonRpcMethod, args []any) {
	defer cancel()

	result, err := e.local.Request(ctx, m.Method, args)

	e.mu.Lock()
	delete(e.inboundPending, m.ID.key())
	e.mu.Unlock()

	var resp *ResponseMessage
	switch {
	case err == nil:
		raw, serr := e.codec.SerializeResult(method, result)
		if serr != nil {
			resp = &ResponseMessage{ID: m.ID, HasID: true, Error: e.shapeError(serr)}
		} else {
			resp = &ResponseMessage{ID: m.ID, HasID: true, Result: raw}
		}
	case ctx.Err() != nil:
		resp = &ResponseMessage{
			ID: m.ID, HasID: true,
			Error: NewResponseError(RequestCancelled, cancelledMessage(m.ID, m.Method), nil),
		}
	default:
		resp = &ResponseMessage{ID: m.ID, HasID: true, Error: e.shapeError(err)}
	}
	e.sendResponse(resp)
}

func cancelledMessage(id MessageId, method string) string {
	return fmt.Sprintf("The request (id: %s, method: '%s') has been cancelled", id.String(), method)
}

func (e *RemoteEndpoint) shapeError(err error) *ResponseError {
	if re := AsResponseError(err); re != nil {
		return re
	}
	return e.exceptionHandler(err)
}

// RejectMalformed reports a frame the transport could not even parse into a
// Message: a ResponseError of issue.Kind (ParseError or InvalidRequest) with
// a null id, per the "continue reading" contract for unparseable input.
// Callers that decode their own frames (Pump, internal/mcp.Client.readLoop)
// should call this instead of merely logging a decode failure.
func (e *RemoteEndpoint) RejectMalformed(ctx context.Context, issue *MessageIssueError) {
	e.sendResponse(&ResponseMessage{
		HasID: false,
		Error: NewResponseError(issue.Kind, issue.Error(), nil),
	})
}

func (e *RemoteEndpoint) sendResponse(resp *ResponseMessage) {
	if err := e.out.Send(resp); err != nil {
		e.logger.Warn("Error while processing the message", "error", err)
	}
}

func (e *RemoteEndpoint) consumeResponse(m *ResponseMessage) {
	e.mu.Lock()
	pending, ok := e.outboundPending[m.ID.key()]
	if ok {
		delete(e.outboundPending, m.ID.key())
	}
	e.mu.Unlock()

	if !ok {
		e.logger.Warn("response for unknown or already-resolved request", "id", m.ID.String())
		return
	}

	if m.IsError() {
		pending.resultCh <- outboundResult{err: &ResponseErrorException{Err: m.Error}}
		return
	}

	method := e.codec.Resolve(pending.method)
	value, err := e.codec.DeserializeResult(method, m.Result)
	if err != nil {
		pending.resultCh <- outboundResult{err: err}
		return
	}
	pending.resultCh <- outboundResult{value: value}
}

// Shutdown fails every still-pending outbound request with err. Pump calls
// this internally; callers that drive their own read loop instead of Pump
// (see internal/mcp.Client, which reads from an upstream.Client channel
// rather than a byte stream) should call it when that loop ends.
func (e *RemoteEndpoint) Shutdown(err error) {
	e.failAllOutbound(err)
}

// failAllOutbound resolves every still-pending outbound request with err.
// Used by Pump when the transport fails or closes.
func (e *RemoteEndpoint) failAllOutbound(err error) {
	e.mu.Lock()
	pending := e.outboundPending
	e.outboundPending = make(map[any]*pendingOutbound)
	e.mu.Unlock()

	for _, p := range pending {
		select {
		case p.resultCh <- outboundResult{err: err}:
		default:
		}
	}
}
