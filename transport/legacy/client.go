package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/thural/quietspace-realtime/transport"
)

// Frame is the message wrapper used by the legacy queue transport. The legacy
// service predates the enterprise envelope; frames carry the raw feature
// payload together with the client identity.
type Frame struct {
	ClientID  string          `json:"clientId"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ConnectionEvent is published on the control channels when a client connects
// or disconnects.
type ConnectionEvent struct {
	Event     string    `json:"event"`
	ClientID  string    `json:"clientId"`
	Timestamp time.Time `json:"timestamp"`
}

// keySet holds the broker key names derived from the configured prefix.
type keySet struct {
	Requests  string
	Responses string
	Control   string
}

func newKeySet(prefix string) keySet {
	return keySet{
		Requests:  prefix + ":requests",
		Responses: prefix + ":responses:",
		Control:   prefix + ":control:",
	}
}

// Client implements the transport.Connection interface for the legacy
// queue-based realtime service. Outbound frames are pushed to a shared
// requests queue; inbound frames are popped from a per-client responses
// queue.
type Client struct {
	config   *transport.LegacyConfig
	clientID string
	logger   *zap.Logger

	rdb  *redis.Client
	keys keySet

	lifetime context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.RWMutex
	running bool

	errorChannel chan error

	messageHandler       func(data []byte) error
	disconnectionHandler func(err error)
	reconnectionHandler  func()
	errorHandler         func(err error)
}

// NewClient creates a new legacy queue transport client. A nil logger
// disables logging.
func NewClient(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger:       logger,
		errorChannel: make(chan error, 100), // Buffered to prevent blocking
	}
}

// Start connects to the broker and begins consuming the client's response
// queue. The endpoint is used as the client identifier.
func (c *Client) Start(ctx context.Context, endpoint string, config transport.Config) error {
	legacyConfig, ok := config.(*transport.LegacyConfig)
	if !ok || legacyConfig == nil {
		return transport.ErrInvalidConfig
	}
	if err := legacyConfig.Validate(); err != nil {
		return fmt.Errorf("invalid legacy config: %w", err)
	}
	if endpoint == "" {
		return fmt.Errorf("endpoint (client ID) cannot be empty")
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return transport.ErrAlreadyStarted
	}
	c.config = legacyConfig
	c.clientID = endpoint
	c.keys = newKeySet(legacyConfig.ChannelPrefix)
	c.rdb = redis.NewClient(&redis.Options{
		Addr:     legacyConfig.Addr,
		Password: legacyConfig.Password,
		DB:       legacyConfig.DB,
	})
	c.lifetime, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.rdb.Close()
		return fmt.Errorf("failed to connect to legacy broker: %w", err)
	}

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	if err := c.publishConnectionEvent(ctx, "connect"); err != nil {
		c.logger.Warn("failed to publish connect event", zap.Error(err))
	}

	c.wg.Add(1)
	go c.consumeLoop()

	c.logger.Info("legacy connection established",
		zap.String("addr", legacyConfig.Addr),
		zap.String("client_id", c.clientID))

	return nil
}

// Stop publishes a disconnect event and shuts down the consumer loop.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	c.publishConnectionEvent(ctx, "disconnect")

	cancel()
	c.wg.Wait()

	err := c.rdb.Close()

	c.logger.Info("legacy connection closed", zap.String("client_id", c.clientID))
	return err
}

// IsConnected returns true if the client is currently connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Write wraps the payload in a legacy frame and pushes it to the requests
// queue.
func (c *Client) Write(data []byte) error {
	c.mu.RLock()
	running := c.running
	c.mu.RUnlock()
	if !running {
		return transport.ErrNotConnected
	}

	frame := Frame{
		ClientID:  c.clientID,
		Payload:   json.RawMessage(data),
		Timestamp: time.Now(),
	}
	frameData, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal legacy frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(c.lifetime, c.config.ClientTimeout)
	defer cancel()

	if err := c.rdb.RPush(ctx, c.keys.Requests, frameData).Err(); err != nil {
		return fmt.Errorf("failed to push frame to queue %s: %w", c.keys.Requests, err)
	}
	return nil
}

// SetMessageHandler sets the handler for incoming frames from the server.
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
// The legacy broker client reconnects transparently, so this handler is kept
// for interface parity and never invoked.
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
// blocking.
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

// publishConnectionEvent publishes a connect/disconnect event on the control
// channel so the legacy service can track presence.
func (c *Client) publishConnectionEvent(ctx context.Context, event string) error {
	payload, err := json.Marshal(ConnectionEvent{
		Event:     event,
		ClientID:  c.clientID,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, c.keys.Control+event, payload).Err()
}

// consumeLoop blocking-pops the client's response queue until the connection
// is stopped.
func (c *Client) consumeLoop() {
	defer c.wg.Done()

	responseQueue := c.keys.Responses + c.clientID
	for {
		select {
		case <-c.lifetime.Done():
			return
		default:
			c.consumeOne(responseQueue)
		}
	}
}

// consumeOne pops a single frame, unwraps it and hands the payload to the
// message handler.
func (c *Client) consumeOne(responseQueue string) {
	result, err := c.rdb.BLPop(c.lifetime, c.config.PollInterval, responseQueue).Result()
	if err != nil {
		if err != redis.Nil && c.lifetime.Err() == nil {
			c.reportError(fmt.Errorf("failed to consume response: %w", err))
		}
		return
	}
	if len(result) < 2 {
		return
	}
	raw := []byte(result[1])

	// Frames from the legacy service carry the payload inside a Frame
	// wrapper; bare payloads are passed through untouched.
	data := raw
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err == nil && len(frame.Payload) > 0 {
		data = frame.Payload
	}

	c.mu.RLock()
	handler := c.messageHandler
	c.mu.RUnlock()

	if handler != nil {
		if err := handler(data); err != nil {
			c.reportError(fmt.Errorf("message handler error: %w", err))
		}
	}
}

// RegisterWithFactory registers the legacy connection creator on the given
// factory. The logger is shared by all connections the factory creates.
func RegisterWithFactory(factory *transport.DefaultFactory, logger *zap.Logger) {
	factory.RegisterConnection(transport.LegacyImplementation, func(config transport.Config) (transport.Connection, error) {
		if _, ok := config.(*transport.LegacyConfig); !ok {
			return nil, transport.ErrInvalidConfig
		}
		return NewClient(logger), nil
	})
}
