package transport

import "errors"

// Common transport errors.
var (
	// ErrNotConnected indicates that the connection is not established.
	ErrNotConnected = errors.New("transport not connected")

	// ErrAlreadyStarted indicates that the connection is already started.
	ErrAlreadyStarted = errors.New("transport already started")

	// ErrNotStarted indicates that the connection has not been started.
	ErrNotStarted = errors.New("transport not started")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidAddress indicates that the provided address is invalid.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrConnectionClosed indicates that the connection has been closed.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrWriteTimeout indicates that a write operation timed out.
	ErrWriteTimeout = errors.New("write timeout")

	// ErrMessageTooLarge indicates that a frame exceeds the maximum allowed size.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrUnsupportedImplementation indicates that the implementation type is
	// not supported by the factory.
	ErrUnsupportedImplementation = errors.New("unsupported implementation type")
)
