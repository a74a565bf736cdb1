package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/FlameInTheDark/mcproxy/internal/upstream"
	"github.com/FlameInTheDark/mcproxy/jsonrpc2"
)

// rawType decodes a value as its untouched wire bytes rather than unpacking
// it into a Go struct; Client has no fixed schema for most MCP payloads, so
// it defers interpretation to its own callers and to the aggregator.
var rawType = jsonrpc2.TypeDescriptor{Name: "raw", New: func() any { return new(json.RawMessage) }}

// rawListType is rawType for the single-list-parameter position, so a
// whole inbound params array or non-empty object arrives as one opaque
// value. An empty params object arrives as nil.
var rawListType = jsonrpc2.TypeDescriptor{Name: "raw[]", IsList: true, New: func() any { return new(json.RawMessage) }}

// clientMethods are the MCP methods this proxy itself drives outbound.
// Every entry declares exactly one parameter so Client.Call/Notify never
// have to special-case a nil-params call against a zero-arity schema.
func clientMethods() []jsonrpc2.JsonRpcMethod {
	return []jsonrpc2.JsonRpcMethod{
		{Name: "initialize", ParameterTypes: []jsonrpc2.TypeDescriptor{rawType}, ResultType: rawType, Kind: jsonrpc2.Request},
		{Name: "notifications/initialized", ParameterTypes: []jsonrpc2.TypeDescriptor{rawType}, Kind: jsonrpc2.Notification},
		{Name: "tools/list", ParameterTypes: []jsonrpc2.TypeDescriptor{rawType}, ResultType: rawType, Kind: jsonrpc2.Request},
		{Name: "tools/call", ParameterTypes: []jsonrpc2.TypeDescriptor{rawType}, ResultType: rawType, Kind: jsonrpc2.Request},
	}
}

// fallbackMethod resolves any method name clientMethods doesn't know about:
// Client.Call/Notify with other method names, and anything the upstream
// server addresses to the client (notifications/progress and the like).
// Inbound params and results keep their original bytes. Outbound, the single
// list-typed parameter means the value must encode as a JSON array: nil is
// sent as [], and an object-shaped value is rejected with InvalidParams.
func fallbackMethod() jsonrpc2.JsonRpcMethod {
	return jsonrpc2.JsonRpcMethod{
		Name:           "*",
		ParameterTypes: []jsonrpc2.TypeDescriptor{rawListType},
		ResultType:     rawType,
	}
}

// upstreamConsumer adapts an upstream.Client's Send into the
// jsonrpc2.MessageConsumer RemoteEndpoint writes outbound traffic to.
type upstreamConsumer struct {
	upstream upstream.Client
}

func (c *upstreamConsumer) Send(msg jsonrpc2.Message) error {
	raw, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return c.upstream.Send(context.Background(), upstream.Message(raw))
}

// passthroughLocal is the LocalEndpoint for traffic the upstream server
// initiates: notifications and, rarely, a server-to-client request. Both are
// re-encoded as method plus params (without the request id) and handed to
// whatever is reading Passthrough (the SSE handler, normally). A request is
// also answered to the upstream server with a MethodNotFound error.
type passthroughLocal struct {
	passthrough chan []byte
	logger      *slog.Logger
}

func (p *passthroughLocal) Notify(ctx context.Context, method string, params []any) error {
	p.forward(method, params)
	return nil
}

func (p *passthroughLocal) Request(ctx context.Context, method string, params []any) (any, error) {
	p.forward(method, params)
	return nil, &jsonrpc2.ResponseErrorException{
		Err: jsonrpc2.NewResponseError(jsonrpc2.MethodNotFound, fmt.Sprintf("mcproxy has no client-side handler for %q", method), nil),
	}
}

func (p *passthroughLocal) forward(method string, params []any) {
	var raw json.RawMessage
	if len(params) > 0 {
		if rm, ok := params[0].(json.RawMessage); ok {
			raw = rm
		}
	}

	msg := JSONRPCMessage{JSONRPC: JSONRPCVersion, Method: method, Params: raw}
	b, err := json.Marshal(msg)
	if err != nil {
		p.logger.Warn("failed to re-encode passthrough message", "method", method, "error", err)
		return
	}

	select {
	case p.passthrough <- b:
	default:
		p.logger.Warn("passthrough buffer full, dropping message", "method", method)
	}
}
