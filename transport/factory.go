package transport

import (
	"fmt"
)

// Factory provides a way to create connections based on configuration.
type Factory interface {
	// CreateConnection creates a new client connection based on the provided
	// configuration. The connection is not started.
	CreateConnection(config Config) (Connection, error)

	// SupportedTypes returns a list of implementation types supported by this
	// factory.
	SupportedTypes() []ImplementationType
}

// DefaultFactory is the default implementation of the Factory interface.
// It dispatches on the configuration type to a registered creator function.
// Factories are constructed explicitly and passed to whoever needs them;
// there is no package-level instance.
type DefaultFactory struct {
	creators map[ImplementationType]func(Config) (Connection, error)
}

// NewDefaultFactory creates a new DefaultFactory instance with no
// implementations registered.
func NewDefaultFactory() *DefaultFactory {
	return &DefaultFactory{
		creators: make(map[ImplementationType]func(Config) (Connection, error)),
	}
}

// RegisterConnection registers a creator function for a specific
// implementation type. Registering the same type twice replaces the previous
// creator.
func (f *DefaultFactory) RegisterConnection(implType ImplementationType, creator func(Config) (Connection, error)) {
	f.creators[implType] = creator
}

// CreateConnection creates a new client connection based on the provided
// configuration.
func (f *DefaultFactory) CreateConnection(config Config) (Connection, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	implType := config.GetType()
	creator, exists := f.creators[implType]
	if !exists {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImplementation, implType)
	}

	return creator(config)
}

// SupportedTypes returns a list of implementation types supported by this
// factory.
func (f *DefaultFactory) SupportedTypes() []ImplementationType {
	types := make([]ImplementationType, 0, len(f.creators))
	for implType := range f.creators {
		types = append(types, implType)
	}
	return types
}
