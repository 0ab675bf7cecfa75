// Package transport defines the client-side connection abstraction consumed by
// the migration layer. It provides interfaces that can be implemented by the
// legacy and enterprise realtime transports so that the migration controller
// can switch between them without caring about the underlying mechanism.
package transport

import (
	"context"
	"time"
)

// ImplementationType identifies which transport implementation a configuration
// or connection belongs to.
type ImplementationType int

const (
	// LegacyImplementation indicates the older queue-based transport kept for
	// fallback and compatibility.
	LegacyImplementation ImplementationType = iota
	// EnterpriseImplementation indicates the new WebSocket-based transport.
	EnterpriseImplementation
)

// String returns the string representation of the implementation type.
func (t ImplementationType) String() string {
	switch t {
	case LegacyImplementation:
		return "legacy"
	case EnterpriseImplementation:
		return "enterprise"
	default:
		return "unknown"
	}
}

// Config represents the configuration interface for transport implementations.
// Each implementation provides its own concrete configuration type.
type Config interface {
	// GetType returns the implementation type this configuration is for.
	GetType() ImplementationType
	// Validate checks if the configuration is valid, filling in defaults for
	// unset values, and returns an error if it cannot be used.
	Validate() error
}

// Connection defines the interface for a single logical client connection.
// Both the legacy and enterprise transports implement it; the migration
// controller only ever talks to this interface.
type Connection interface {
	// Start establishes a connection to the server at the given endpoint.
	// The endpoint format depends on the transport implementation.
	Start(ctx context.Context, endpoint string, config Config) error

	// Stop closes the connection to the server and releases its resources.
	Stop(ctx context.Context) error

	// IsConnected returns true if the connection is currently established.
	IsConnected() bool

	// Write sends raw frame data to the server.
	// Returns an error if not connected or if sending fails.
	Write(data []byte) error

	// SetMessageHandler sets the handler for incoming frames from the server.
	SetMessageHandler(handler func(data []byte) error)

	// SetDisconnectionHandler sets the handler for disconnection events.
	// The handler receives the error that caused the disconnection (if any).
	SetDisconnectionHandler(handler func(err error))

	// SetReconnectionHandler sets the handler for successful reconnection
	// events after a dropped connection.
	SetReconnectionHandler(handler func())

	// SetErrorHandler sets the handler for transport-level errors.
	SetErrorHandler(handler func(err error))

	// Errors returns a channel that receives transport-level errors.
	// This provides an alternative to SetErrorHandler for error handling.
	Errors() <-chan error
}

// EnterpriseConfig contains configuration options for the enterprise
// WebSocket transport.
type EnterpriseConfig struct {
	// AuthToken is sent as a bearer token during the connection handshake.
	AuthToken string
	// HandshakeTimeout is the timeout for the WebSocket handshake.
	HandshakeTimeout time.Duration
	// WriteTimeout is the timeout for write operations.
	WriteTimeout time.Duration
	// PongTimeout is how long to wait for a pong before considering the
	// connection dead. The ping interval is derived from it.
	PongTimeout time.Duration
	// MaxMessageSize is the maximum size of an inbound frame in bytes.
	MaxMessageSize int64
	// Reconnect enables automatic reconnection with exponential backoff
	// after an unexpected disconnect.
	Reconnect bool
	// MaxReconnectElapsed bounds the total time spent reconnecting before
	// giving up. Zero means retry forever.
	MaxReconnectElapsed time.Duration
}

// GetType returns EnterpriseImplementation.
func (c *EnterpriseConfig) GetType() ImplementationType {
	return EnterpriseImplementation
}

// Validate checks if the enterprise configuration is valid.
func (c *EnterpriseConfig) Validate() error {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 32 * 1024 // 32KB default
	}
	return nil
}

// LegacyConfig contains configuration options for the legacy queue transport.
type LegacyConfig struct {
	// Addr is the broker address in host:port format.
	Addr string
	// Password is the broker password (optional).
	Password string
	// DB is the broker database number to use.
	DB int
	// ChannelPrefix is the prefix for queues and channels used for
	// communication.
	ChannelPrefix string
	// ClientTimeout is the timeout for broker operations.
	ClientTimeout time.Duration
	// PollInterval is how long a single blocking pop waits for an inbound
	// frame before looping.
	PollInterval time.Duration
}

// GetType returns LegacyImplementation.
func (c *LegacyConfig) GetType() ImplementationType {
	return LegacyImplementation
}

// Validate checks if the legacy configuration is valid.
func (c *LegacyConfig) Validate() error {
	if c.Addr == "" {
		return ErrInvalidAddress
	}
	if c.ChannelPrefix == "" {
		c.ChannelPrefix = "quietspace"
	}
	if c.ClientTimeout <= 0 {
		c.ClientTimeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	return nil
}
