package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/coder/websocket"
)

// WebSocketClient is an upstream.Client that speaks MCP over a single
// long-lived WebSocket connection, one JSON message per WebSocket text
// frame (mirroring the one-message-per-line convention StdioClient uses for
// pipes).
type WebSocketClient struct {
	url    string
	conn   *websocket.Conn
	msgs   chan Message
	done   chan struct{}
	mu     sync.Mutex
	closed bool
	logger *slog.Logger
}

func NewWebSocketClient(url string, logger *slog.Logger) *WebSocketClient {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &WebSocketClient{
		url:    url,
		msgs:   make(chan Message, 100),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *WebSocketClient) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return fmt.Errorf("already running")
	}

	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial websocket upstream: %w", err)
	}
	c.conn = conn

	c.logger.Info("WebSocket upstream connected", "url", c.url)
	go c.readLoop()

	return nil
}

func (c *WebSocketClient) readLoop() {
	defer close(c.msgs)
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			c.logger.Info("WebSocket upstream read loop ended", "error", err)
			c.Close()
			return
		}

		select {
		case c.msgs <- Message(data):
		case <-c.done:
			return
		}
	}
}

func (c *WebSocketClient) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("client not running")
	}
	return conn.Write(ctx, websocket.MessageText, msg)
}

func (c *WebSocketClient) Messages() <-chan Message {
	return c.msgs
}

func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.conn != nil {
		return c.conn.Close(websocket.StatusNormalClosure, "closing")
	}
	return nil
}
