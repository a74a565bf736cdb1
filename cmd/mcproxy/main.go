package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FlameInTheDark/mcproxy/internal/config"
	"github.com/FlameInTheDark/mcproxy/internal/transport"
)

var (
	configPath    string
	transportMode string
)

func main() {
	root := &cobra.Command{
		Use:   "mcproxy",
		Short: "Aggregates and proxies MCP servers behind one endpoint",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&configPath, "config", "mcp-proxy.yaml", "Path to configuration file")
	serveCmd.Flags().StringVar(&transportMode, "transport", "", "Transport mode: http or stdio (overrides config)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the mcproxy version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("mcproxy dev")
		},
	}

	root.AddCommand(serveCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	// Logger must write to Stderr to avoid interfering with Stdio transport.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("Failed to load config", "path", configPath, "error", err)
		return err
	}

	if transportMode != "" {
		cfg.Server.Transport = transportMode
	}

	srv, err := transport.NewServer(cfg, logger, transport.DefaultClientFactory)
	if err != nil {
		logger.Error("Failed to initialize server", "error", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		logger.Error("Server error", "error", err)
		return err
	}
	return nil
}
