// Package jsonrpc2 implements a bidirectional JSON-RPC 2.0 endpoint: the
// runtime that turns a byte-stream transport into a symmetric
// request/notification exchange between a local handler and a remote peer.
//
// The entry point is RemoteEndpoint. It dispatches inbound requests and
// notifications to a LocalEndpoint, correlates outbound requests with
// inbound responses, and propagates cancellation in both directions via the
// "$/cancelRequest" convention. Wire framing (Content-Length-delimited) and
// method-schema-aware JSON encoding live alongside it in this package.
//
// RemoteEndpoint does not own a transport. Callers wire a MessageConsumer
// (usually backed by a FrameWriter) for outbound bytes, and drive inbound
// bytes through a FrameReader into RemoteEndpoint.Consume, typically via Pump.
package jsonrpc2
