package enterprise

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thural/quietspace-realtime/transport"
)

// Client implements the transport.Connection interface over a WebSocket
// connection to the enterprise realtime service. It maintains a single
// connection with ping/pong keepalive and optional automatic reconnection.
type Client struct {
	config   *transport.EnterpriseConfig
	endpoint string
	clientID string
	logger   *zap.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	started   bool

	// writeMu serializes writes; gorilla connections allow at most one
	// concurrent writer.
	writeMu sync.Mutex

	lifetime context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	errorChannel chan error

	messageHandler       func(data []byte) error
	disconnectionHandler func(err error)
	reconnectionHandler  func()
	errorHandler         func(err error)
}

// NewClient creates a new enterprise WebSocket client. A nil logger disables
// logging.
func NewClient(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		clientID:     uuid.New().String(),
		logger:       logger,
		errorChannel: make(chan error, 100), // Buffered to prevent blocking
	}
}

// ID returns the generated client identifier for this connection.
func (c *Client) ID() string {
	return c.clientID
}

// Start establishes a WebSocket connection to the enterprise service at the
// given endpoint (a ws:// or wss:// URL).
func (c *Client) Start(ctx context.Context, endpoint string, config transport.Config) error {
	entConfig, ok := config.(*transport.EnterpriseConfig)
	if !ok || entConfig == nil {
		return transport.ErrInvalidConfig
	}
	if err := entConfig.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return transport.ErrAlreadyStarted
	}
	c.started = true
	c.config = entConfig
	c.endpoint = endpoint
	c.lifetime, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.cancel()
		c.mu.Unlock()
		return fmt.Errorf("failed to connect to enterprise service: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("enterprise connection established",
		zap.String("endpoint", endpoint),
		zap.String("client_id", c.clientID))

	c.wg.Add(2)
	go c.readPump(conn)
	go c.pingLoop(conn)

	return nil
}

// dial performs the WebSocket handshake with the configured auth token.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	header := http.Header{}
	if c.config.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}
	header.Set("X-Client-ID", c.clientID)

	conn, resp, err := dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, err
	}

	conn.SetReadLimit(c.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
	})

	return conn, nil
}

// Stop closes the connection to the enterprise service.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.connected = false
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.mu.Unlock()

	cancel()

	if conn != nil {
		// Best-effort close handshake; the read pump exits on the closed
		// connection either way.
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}

	c.wg.Wait()

	c.logger.Info("enterprise connection closed", zap.String("client_id", c.clientID))
	return nil
}

// IsConnected returns true if the client currently holds an open connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Write sends a frame to the enterprise service.
func (c *Client) Write(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return transport.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// SetMessageHandler sets the handler for incoming frames from the service.
func (c *Client) SetMessageHandler(handler func(data []byte) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageHandler = handler
}

// SetDisconnectionHandler sets the handler for disconnection events.
func (c *Client) SetDisconnectionHandler(handler func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectionHandler = handler
}

// SetReconnectionHandler sets the handler for successful reconnection events.
func (c *Client) SetReconnectionHandler(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectionHandler = handler
}

// SetErrorHandler sets the handler for transport-level errors.
func (c *Client) SetErrorHandler(handler func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandler = handler
}

// Errors returns a channel that receives transport-level errors.
func (c *Client) Errors() <-chan error {
	return c.errorChannel
}

// reportError delivers an error to the handler and the error channel without
// ever blocking the calling goroutine.
func (c *Client) reportError(err error) {
	select {
	case c.errorChannel <- err:
	default:
		// Error channel is full, drop the error to prevent blocking
	}

	c.mu.RLock()
	handler := c.errorHandler
	c.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

// readPump reads frames until the connection drops, then runs the
// disconnect/reconnect sequence.
func (c *Client) readPump(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return
		}

		c.mu.RLock()
		handler := c.messageHandler
		c.mu.RUnlock()

		if handler != nil {
			if handlerErr := handler(data); handlerErr != nil {
				c.reportError(fmt.Errorf("message handler error: %w", handlerErr))
			}
		}
	}
}

// pingLoop sends periodic pings so the server's pong keeps the read deadline
// fresh. The interval leaves room for one missed pong.
func (c *Client) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	interval := c.config.PongTimeout * 9 / 10
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.lifetime.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleDisconnect marks the connection down, notifies the disconnection
// handler and, if configured, attempts to reconnect with exponential backoff.
func (c *Client) handleDisconnect(cause error) {
	c.mu.Lock()
	if !c.started {
		// Stop() initiated the close; nothing to report.
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	reconnect := c.config.Reconnect
	handler := c.disconnectionHandler
	c.mu.Unlock()

	c.logger.Warn("enterprise connection lost",
		zap.String("client_id", c.clientID),
		zap.Error(cause))

	if handler != nil {
		handler(cause)
	}

	if !reconnect {
		c.reportError(fmt.Errorf("connection lost: %w", cause))
		// Let the ping loop wind down; Stop remains callable.
		c.cancel()
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.config.MaxReconnectElapsed

	operation := func() error {
		ctx, cancelDial := context.WithTimeout(c.lifetime, c.config.HandshakeTimeout)
		defer cancelDial()
		conn, err := c.dial(ctx)
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.conn = conn
		c.connected = true
		reconnHandler := c.reconnectionHandler
		c.mu.Unlock()

		c.logger.Info("enterprise connection reestablished",
			zap.String("client_id", c.clientID))

		c.wg.Add(2)
		go c.readPump(conn)
		go c.pingLoop(conn)

		if reconnHandler != nil {
			reconnHandler()
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, c.lifetime)); err != nil {
		c.reportError(fmt.Errorf("reconnect failed: %w", err))
	}
}

// RegisterWithFactory registers the enterprise connection creator on the
// given factory. The logger is shared by all connections the factory creates.
func RegisterWithFactory(factory *transport.DefaultFactory, logger *zap.Logger) {
	factory.RegisterConnection(transport.EnterpriseImplementation, func(config transport.Config) (transport.Connection, error) {
		if _, ok := config.(*transport.EnterpriseConfig); !ok {
			return nil, transport.ErrInvalidConfig
		}
		return NewClient(logger), nil
	})
}
