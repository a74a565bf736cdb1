package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/FlameInTheDark/mcproxy/internal/upstream"
	"github.com/FlameInTheDark/mcproxy/jsonrpc2"
)

// Client wraps an upstream.Client to provide structured JSON-RPC
// interaction, on top of a jsonrpc2.RemoteEndpoint: outbound request
// correlation, cancellation, and inbound dispatch are all the endpoint's
// job, not this package's.
type Client struct {
	upstream upstream.Client
	logger   *slog.Logger

	endpoint    *jsonrpc2.RemoteEndpoint
	passthrough chan []byte
	done        chan struct{}
}

func NewClient(u upstream.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	c := &Client{
		upstream:    u,
		logger:      logger,
		passthrough: make(chan []byte, 100),
		done:        make(chan struct{}),
	}

	codec := jsonrpc2.NewCodecWithFallback(clientMethods(), fallbackMethod())
	local := &passthroughLocal{passthrough: c.passthrough, logger: logger}
	c.endpoint = jsonrpc2.NewRemoteEndpoint(&upstreamConsumer{upstream: u}, local, codec, jsonrpc2.WithLogger(logger))

	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	for {
		select {
		case raw, ok := <-c.upstream.Messages():
			if !ok {
				c.endpoint.Shutdown(fmt.Errorf("upstream connection closed"))
				return
			}
			msg, err := jsonrpc2.DecodeMessage(raw)
			if err != nil {
				c.logger.Warn("failed to decode upstream message", "error", err)
				var issue *jsonrpc2.MessageIssueError
				if errors.As(err, &issue) {
					c.endpoint.RejectMalformed(context.Background(), issue)
				}
				continue
			}
			c.endpoint.Consume(context.Background(), msg)
		case <-c.done:
			return
		}
	}
}

// Call sends method(params) to the upstream server and blocks for its
// response, translating the result back into the wire-shaped
// JSONRPCResponse callers (the aggregator) already unmarshal against.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (*JSONRPCResponse, error) {
	value, err := c.endpoint.Request(ctx, method, params)
	if err != nil {
		if rerr := jsonrpc2.AsResponseError(err); rerr != nil {
			return &JSONRPCResponse{
				JSONRPC: JSONRPCVersion,
				Error:   &JSONRPCError{Code: int(rerr.Code), Message: rerr.Message, Data: rerr.Data},
			}, nil
		}
		return nil, err
	}

	result, _ := value.(json.RawMessage)
	return &JSONRPCResponse{JSONRPC: JSONRPCVersion, Result: result}, nil
}

// Notify sends a fire-and-forget notification to the upstream server.
func (c *Client) Notify(ctx context.Context, method string, params interface{}) error {
	c.endpoint.Notify(ctx, method, params)
	return nil
}

// Passthrough returns messages the upstream server addressed to the client
// directly (notifications and server-initiated requests) rather than in
// answer to a Call this client made.
func (c *Client) Passthrough() <-chan []byte {
	return c.passthrough
}

func (c *Client) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
