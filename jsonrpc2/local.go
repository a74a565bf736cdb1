package jsonrpc2

import "context"

// MessageConsumer is the sink RemoteEndpoint hands outbound messages to. It
// must be safe for concurrent Send calls, or be wrapped so it is (see
// FrameWriter, which already serializes writes internally).
type MessageConsumer interface {
	Send(Message) error
}

// MessageConsumerFunc adapts a plain function to MessageConsumer.
type MessageConsumerFunc func(Message) error

// Send implements MessageConsumer.
func (f MessageConsumerFunc) Send(m Message) error { return f(m) }

// LocalEndpoint is the capability RemoteEndpoint calls to deliver inbound
// requests and notifications. It says nothing about how method dispatch is
// implemented (reflective binder, hand-written switch, generated code).
type LocalEndpoint interface {
	// Notify delivers a fire-and-forget call. Any error is logged by the
	// caller, never surfaced to the remote peer.
	Notify(ctx context.Context, method string, params []any) error

	// Request delivers a call that expects a response. Request must
	// observe ctx's cancellation and return promptly once it does; a
	// request whose handler ignores ctx will not be cancellable.
	Request(ctx context.Context, method string, params []any) (any, error)
}
