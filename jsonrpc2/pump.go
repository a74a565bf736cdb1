package jsonrpc2

import (
	"context"
	"errors"
	"log/slog"
)

// Pump drives a FrameReader, feeding every decoded Message into a
// RemoteEndpoint until the transport closes or fails.
type Pump struct {
	reader   *FrameReader
	endpoint *RemoteEndpoint
	logger   *slog.Logger
}

// NewPump builds a Pump that reads frames with reader and dispatches them
// to endpoint.
func NewPump(reader *FrameReader, endpoint *RemoteEndpoint, logger *slog.Logger) *Pump {
	return &Pump{reader: reader, endpoint: endpoint, logger: logger}
}

// Run blocks, dispatching messages, until the stream closes cleanly (in
// which case it returns nil) or a transport error occurs (in which case it
// fails every pending outbound request on the endpoint and returns the
// error). Malformed individual frames get a null-id ResponseError and are
// skipped; they do not end the pump.
func (p *Pump) Run(ctx context.Context) error {
	for {
		msg, err := p.reader.Read()
		if err != nil {
			if errors.Is(err, ErrTransportClosed) {
				p.endpoint.failAllOutbound(ErrTransportClosed)
				return nil
			}
			var issue *MessageIssueError
			if errors.As(err, &issue) {
				p.logger.Warn("malformed frame, resynchronizing", "error", err)
				p.endpoint.RejectMalformed(ctx, issue)
				continue
			}
			p.endpoint.failAllOutbound(err)
			return err
		}

		p.endpoint.Consume(ctx, msg)

		if ctx.Err() != nil {
			p.endpoint.failAllOutbound(ctx.Err())
			return ctx.Err()
		}
	}
}
