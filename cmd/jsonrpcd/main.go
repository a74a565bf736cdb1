// jsonrpcd is a minimal demonstration of the jsonrpc2 package bound
// directly to stdin/stdout with Content-Length framing, independent of the
// MCP upstream machinery in cmd/mcproxy. It registers two methods, "ping"
// and "echo", so the framing/codec/endpoint stack can be exercised without
// a real upstream server.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/FlameInTheDark/mcproxy/jsonrpc2"
)

func main() {
	root := &cobra.Command{
		Use:   "jsonrpcd",
		Short: "Serve ping/echo over Content-Length-framed stdio JSON-RPC",
		RunE:  run,
	}

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type stdioLocal struct{}

func (stdioLocal) Notify(ctx context.Context, method string, params []any) error {
	return nil
}

func (stdioLocal) Request(ctx context.Context, method string, params []any) (any, error) {
	switch method {
	case "ping":
		return "pong", nil
	case "echo":
		if len(params) == 0 {
			return nil, nil
		}
		return params[0], nil
	default:
		return nil, &jsonrpc2.ResponseErrorException{
			Err: jsonrpc2.NewResponseError(jsonrpc2.MethodNotFound, "method not found: "+method, nil),
		}
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	codec := jsonrpc2.NewCodec([]jsonrpc2.JsonRpcMethod{
		{Name: "ping", ResultType: jsonrpc2.AnyType, Kind: jsonrpc2.Request},
		{Name: "echo", ParameterTypes: []jsonrpc2.TypeDescriptor{jsonrpc2.AnyType}, ResultType: jsonrpc2.AnyType, Kind: jsonrpc2.Request},
	})

	writer := jsonrpc2.NewFrameWriter(os.Stdout)
	endpoint := jsonrpc2.NewRemoteEndpoint(
		jsonrpc2.MessageConsumerFunc(writer.Write),
		stdioLocal{},
		codec,
		jsonrpc2.WithLogger(logger),
	)

	pump := jsonrpc2.NewPump(jsonrpc2.NewFrameReader(os.Stdin), endpoint, logger)
	return pump.Run(cmd.Context())
}
