package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/thural/quietspace-realtime/transport"
)

// Controller-level errors.
var (
	// ErrFallbackDisabled indicates that a fallback was requested but the
	// controller was configured with fallback disabled.
	ErrFallbackDisabled = errors.New("fallback is disabled")

	// ErrFeatureRequired indicates a controller configuration without a
	// feature.
	ErrFeatureRequired = errors.New("feature is required")
)

// DefaultFallbackTimeout is how long a hybrid connect waits for the
// enterprise implementation before falling back to legacy.
const DefaultFallbackTimeout = 5 * time.Second

// Config configures a Controller for one feature. Fallback and event logging
// are enabled by default; set the Disable* fields to turn them off.
type Config struct {
	// Feature is the realtime feature this controller serves. Required.
	Feature Feature

	// UseLegacy forces the legacy implementation, overriding Mode.
	UseLegacy bool

	// Mode selects the migration mode. Defaults to ModeHybrid.
	Mode Mode

	// DisableFallback turns off automatic fallback to legacy.
	DisableFallback bool

	// DisableEventLogging stops migration events from being written to the
	// logger. The in-memory event log is always maintained.
	DisableEventLogging bool

	// FallbackTimeout bounds the enterprise connect attempt in hybrid mode.
	// Defaults to DefaultFallbackTimeout.
	FallbackTimeout time.Duration

	// EnterpriseEndpoint is the ws:// or wss:// URL of the enterprise
	// service.
	EnterpriseEndpoint string

	// EnterpriseConfig configures the enterprise connection. Defaults apply
	// when nil.
	EnterpriseConfig *transport.EnterpriseConfig

	// LegacyEndpoint identifies this client to the legacy service.
	LegacyEndpoint string

	// LegacyConfig configures the legacy connection.
	LegacyConfig *transport.LegacyConfig
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Feature == "" {
		return ErrFeatureRequired
	}
	if c.UseLegacy {
		c.Mode = ModeLegacy
	}
	if c.Mode == "" {
		c.Mode = ModeHybrid
	}
	switch c.Mode {
	case ModeLegacy, ModeHybrid, ModeEnterprise:
	default:
		return fmt.Errorf("invalid migration mode %q", c.Mode)
	}
	if c.FallbackTimeout <= 0 {
		c.FallbackTimeout = DefaultFallbackTimeout
	}
	if c.EnterpriseConfig == nil {
		c.EnterpriseConfig = &transport.EnterpriseConfig{}
	}
	return nil
}

// Controller presents one unified connect/disconnect/send/subscribe contract
// for a single feature regardless of which underlying implementation (legacy
// or enterprise) is currently active, and manages transitions between them.
//
// Each Controller owns its state exclusively; independent feature controllers
// share nothing.
type Controller struct {
	cfg    Config
	codec  Codec
	logger *zap.Logger

	legacy     transport.Connection
	enterprise transport.Connection

	mu                sync.Mutex
	connState         ConnectionState
	mode              Mode
	usingLegacy       bool
	usingEnterprise   bool
	fallbackTriggered bool
	fallbackCount     int
	fallingBack       bool
	connecting        bool
	events            *eventLog
	perf              PerformanceStats

	fallbackTimer *time.Timer
	fallbackArmed bool

	subscribers map[int]func(payload []byte)
	nextSubID   int
}

// NewController creates a Controller for the configured feature over the
// given connections. The registry supplies the feature codec; nil uses the
// built-in registry. A nil logger disables logging.
func NewController(cfg Config, legacy, enterprise transport.Connection, registry *Registry, logger *zap.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if legacy == nil || enterprise == nil {
		return nil, errors.New("both legacy and enterprise connections are required")
	}
	if registry == nil {
		registry = NewRegistry()
	}
	codec, err := registry.Codec(cfg.Feature)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Controller{
		cfg:         cfg,
		codec:       codec,
		logger:      logger.With(zap.String("feature", string(cfg.Feature))),
		legacy:      legacy,
		enterprise:  enterprise,
		connState:   StateDisconnected,
		events:      newEventLog(),
		subscribers: make(map[int]func(payload []byte)),
	}
	c.applyModeLocked(cfg.Mode)
	c.wireHandlers()
	return c, nil
}

// Feature returns the feature this controller serves.
func (c *Controller) Feature() Feature {
	return c.cfg.Feature
}

// applyModeLocked sets the mode and keeps the implementation booleans
// consistent with it: exactly one is true in the pure modes, while hybrid
// leaves them to reflect whichever implementations are active.
func (c *Controller) applyModeLocked(m Mode) {
	c.mode = m
	switch m {
	case ModeLegacy:
		c.usingLegacy, c.usingEnterprise = true, false
	case ModeEnterprise:
		c.usingLegacy, c.usingEnterprise = false, true
	case ModeHybrid:
	}
}

// wireHandlers bridges the underlying connection callbacks into controller
// state and subscriber dispatch.
func (c *Controller) wireHandlers() {
	feature := string(c.cfg.Feature)

	c.enterprise.SetMessageHandler(func(data []byte) error {
		env, err := transport.ParseEnvelope(data)
		if err != nil {
			return err
		}
		if env.Feature != feature {
			// Not ours; another feature's controller will pick it up.
			return nil
		}
		payload, err := c.codec.FromEnvelope(env)
		if err != nil {
			return err
		}
		c.dispatch(payload)
		return nil
	})

	c.legacy.SetMessageHandler(func(data []byte) error {
		// Legacy frames carry the bare feature payload.
		c.dispatch(data)
		return nil
	})

	c.enterprise.SetDisconnectionHandler(func(err error) {
		c.mu.Lock()
		if c.usingEnterprise && c.connState == StateConnected {
			c.connState = StateReconnecting
		}
		c.mu.Unlock()
	})
	c.enterprise.SetReconnectionHandler(func() {
		c.mu.Lock()
		if c.connState == StateReconnecting {
			c.connState = StateConnected
		}
		c.mu.Unlock()
	})
	c.enterprise.SetErrorHandler(func(err error) {
		c.appendEvent(EventError, map[string]interface{}{"error": err.Error()}, "enterprise transport error")
	})
	c.legacy.SetErrorHandler(func(err error) {
		c.appendEvent(EventError, map[string]interface{}{"error": err.Error()}, "legacy transport error")
	})
}

// dispatch delivers a feature payload to all current subscribers.
func (c *Controller) dispatch(payload []byte) {
	c.mu.Lock()
	callbacks := make([]func([]byte), 0, len(c.subscribers))
	for _, cb := range c.subscribers {
		callbacks = append(callbacks, cb)
	}
	c.mu.Unlock()

	for _, cb := range callbacks {
		cb(payload)
	}
}

// Subscribe registers a listener for feature-matched inbound payloads and
// returns its unsubscribe function. Subscribing before a connection exists is
// allowed; the listener simply stays idle until messages arrive.
func (c *Controller) Subscribe(callback func(payload []byte)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = callback
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// Connect establishes the connection according to the current mode. A call
// while a connect is already in flight (or the controller is connected) is a
// no-op; connection attempts never run concurrently.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connecting || c.connState == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.connState = StateConnecting
	mode := c.mode
	c.mu.Unlock()

	var err error
	switch mode {
	case ModeLegacy:
		err = c.connectLegacy(ctx)
	case ModeEnterprise:
		err = c.connectEnterprise(ctx)
	default:
		err = c.connectHybrid(ctx)
	}

	c.mu.Lock()
	c.connecting = false
	c.mu.Unlock()
	return err
}

// connectLegacy connects the legacy implementation and records its latency.
func (c *Controller) connectLegacy(ctx context.Context) error {
	start := time.Now()
	err := c.legacy.Start(ctx, c.cfg.LegacyEndpoint, c.cfg.LegacyConfig)
	if err != nil && !errors.Is(err, transport.ErrAlreadyStarted) {
		c.recordConnectFailure("legacy connection failed", err)
		return fmt.Errorf("legacy connect: %w", err)
	}

	c.mu.Lock()
	if c.connState == StateDisconnected {
		c.mu.Unlock()
		c.legacy.Stop(context.Background())
		return nil
	}
	if err == nil {
		latency := float64(time.Since(start)) / float64(time.Millisecond)
		c.perf.LegacyLatency = &latency
	}
	c.usingLegacy = true
	if c.mode != ModeHybrid {
		c.usingEnterprise = false
	}
	c.connState = StateConnected
	c.comparePerformanceLocked()
	c.mu.Unlock()

	c.logger.Info("connected via legacy implementation")
	return nil
}

// connectEnterprise connects the enterprise implementation and records its
// latency.
func (c *Controller) connectEnterprise(ctx context.Context) error {
	start := time.Now()
	err := c.enterprise.Start(ctx, c.cfg.EnterpriseEndpoint, c.cfg.EnterpriseConfig)
	if err != nil && !errors.Is(err, transport.ErrAlreadyStarted) {
		c.recordConnectFailure("enterprise connection failed", err)
		return fmt.Errorf("enterprise connect: %w", err)
	}

	c.mu.Lock()
	if c.connState == StateDisconnected {
		c.mu.Unlock()
		c.enterprise.Stop(context.Background())
		return nil
	}
	if err == nil {
		latency := float64(time.Since(start)) / float64(time.Millisecond)
		c.perf.EnterpriseLatency = &latency
	}
	c.usingEnterprise = true
	if c.mode != ModeHybrid {
		c.usingLegacy = false
	}
	c.connState = StateConnected
	c.comparePerformanceLocked()
	c.mu.Unlock()

	c.logger.Info("connected via enterprise implementation")
	return nil
}

// connectHybrid attempts the enterprise implementation under a fallback
// timer. On enterprise failure or timeout the controller falls back to
// legacy; with fallback disabled the failure is returned to the caller.
func (c *Controller) connectHybrid(ctx context.Context) error {
	c.mu.Lock()
	c.armFallbackTimerLocked()
	c.mu.Unlock()

	start := time.Now()
	err := c.enterprise.Start(ctx, c.cfg.EnterpriseEndpoint, c.cfg.EnterpriseConfig)
	if err != nil && !errors.Is(err, transport.ErrAlreadyStarted) {
		c.stopFallbackTimer()
		c.mu.Lock()
		fallbackInFlight := c.fallingBack
		fellBack := c.fallbackTriggered && c.mode == ModeLegacy
		c.mu.Unlock()
		if fallbackInFlight {
			// The fallback timer beat the failing enterprise attempt; the
			// in-flight fallback connect owns the outcome and records it.
			return nil
		}
		if fellBack {
			if c.legacy.IsConnected() {
				return nil
			}
			// The timer-driven fallback already ran and failed too.
			return fmt.Errorf("enterprise connect: %w", err)
		}
		if c.cfg.DisableFallback {
			c.recordConnectFailure("enterprise connection failed", err)
			return fmt.Errorf("enterprise connect: %w", err)
		}
		return c.fallBack(ctx, fmt.Sprintf("enterprise connection failed: %v", err))
	}

	c.mu.Lock()
	if c.connState == StateDisconnected {
		// Disconnect was issued while the attempt was in flight.
		c.mu.Unlock()
		c.enterprise.Stop(context.Background())
		return nil
	}
	if c.fallbackTriggered && c.mode == ModeLegacy {
		if c.legacy.IsConnected() {
			// The fallback timer fired while the enterprise attempt was in
			// flight and legacy already took over; the late success is
			// unwound.
			c.mu.Unlock()
			c.enterprise.Stop(context.Background())
			return nil
		}
		// The fallback connect failed; the late enterprise success stands.
		c.applyModeLocked(ModeHybrid)
	}
	c.stopFallbackTimerLocked()
	if err == nil {
		latency := float64(time.Since(start)) / float64(time.Millisecond)
		c.perf.EnterpriseLatency = &latency
	}
	c.usingEnterprise = true
	c.usingLegacy = false
	c.connState = StateConnected
	c.comparePerformanceLocked()
	c.mu.Unlock()

	c.logger.Info("connected via enterprise implementation (hybrid)")
	return nil
}

// Disconnect clears any pending fallback timer and disconnects whichever
// implementations are active.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.stopFallbackTimerLocked()
	c.connState = StateDisconnected
	if c.mode == ModeHybrid {
		c.usingLegacy, c.usingEnterprise = false, false
	}
	c.mu.Unlock()

	var result *multierror.Error
	if c.enterprise.IsConnected() {
		if err := c.enterprise.Stop(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("enterprise disconnect: %w", err))
		}
	}
	if c.legacy.IsConnected() {
		if err := c.legacy.Stop(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("legacy disconnect: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// SendMessage validates the payload against the feature's shape and routes it
// to the active implementation. On the enterprise path the payload is wrapped
// in the feature-qualified envelope; malformed payloads are rejected before
// the transport is touched.
func (c *Controller) SendMessage(payload interface{}) error {
	c.mu.Lock()
	usingEnterprise := c.usingEnterprise && c.enterprise.IsConnected()
	usingLegacy := c.usingLegacy && c.legacy.IsConnected()
	c.mu.Unlock()

	switch {
	case usingEnterprise:
		env, err := c.codec.ToEnvelope(payload)
		if err != nil {
			c.appendEvent(EventError, map[string]interface{}{"error": err.Error()}, "send rejected")
			return err
		}
		data, err := env.Marshal()
		if err != nil {
			return err
		}
		if err := c.enterprise.Write(data); err != nil {
			c.appendEvent(EventError, map[string]interface{}{"error": err.Error()}, "enterprise send failed")
			return fmt.Errorf("enterprise send: %w", err)
		}
		return nil

	case usingLegacy:
		if err := c.codec.Validate(payload); err != nil {
			c.appendEvent(EventError, map[string]interface{}{"error": err.Error()}, "send rejected")
			return err
		}
		data, err := payloadBytes(payload)
		if err != nil {
			return err
		}
		if err := c.legacy.Write(data); err != nil {
			c.appendEvent(EventError, map[string]interface{}{"error": err.Error()}, "legacy send failed")
			return fmt.Errorf("legacy send: %w", err)
		}
		return nil

	default:
		return transport.ErrNotConnected
	}
}

// SwitchToLegacy switches the controller to legacy mode. Mode switches are
// pure state transitions; connection happens on the next Connect.
func (c *Controller) SwitchToLegacy() { c.switchMode(ModeLegacy) }

// SwitchToEnterprise switches the controller to enterprise mode.
func (c *Controller) SwitchToEnterprise() { c.switchMode(ModeEnterprise) }

// SwitchToHybrid switches the controller to hybrid mode.
func (c *Controller) SwitchToHybrid() { c.switchMode(ModeHybrid) }

func (c *Controller) switchMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == m {
		return
	}
	from := c.mode
	c.applyModeLocked(m)
	c.appendEventLocked(EventModeSwitch,
		map[string]interface{}{"from": string(from), "to": string(m)},
		fmt.Sprintf("switched mode from %s to %s", from, m))
}

// TriggerFallback forces legacy mode and records a fallback event with the
// given reason. It returns ErrFallbackDisabled if fallback is disabled.
func (c *Controller) TriggerFallback(reason string) error {
	if c.cfg.DisableFallback {
		return ErrFallbackDisabled
	}

	c.mu.Lock()
	c.applyModeLocked(ModeLegacy)
	c.fallbackTriggered = true
	c.fallbackCount++
	c.appendEventLocked(EventFallbackTriggered,
		map[string]interface{}{"reason": reason},
		"falling back to legacy implementation: "+reason)
	c.mu.Unlock()

	c.logger.Warn("fallback to legacy triggered", zap.String("reason", reason))
	return nil
}

// fallBack forces legacy mode and connects the legacy implementation. At most
// one fallback runs at a time; a second caller (the timer racing the failing
// enterprise attempt) is a no-op so one logical failure counts once.
func (c *Controller) fallBack(ctx context.Context, reason string) error {
	c.mu.Lock()
	if c.fallingBack {
		c.mu.Unlock()
		return nil
	}
	c.fallingBack = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.fallingBack = false
		c.mu.Unlock()
	}()

	if err := c.TriggerFallback(reason); err != nil {
		return err
	}
	return c.connectLegacy(ctx)
}

// State returns a snapshot of the controller's migration state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		ConnectionState:   c.connState,
		Mode:              c.mode,
		IsUsingLegacy:     c.usingLegacy,
		IsUsingEnterprise: c.usingEnterprise,
		FallbackTriggered: c.fallbackTriggered,
		MigrationEvents:   c.events.snapshot(),
		Performance:       c.perf,
	}
}

// armFallbackTimerLocked starts the hybrid fallback timer. The timer is the
// only deferred operation the controller owns; Disconnect and a successful
// enterprise connect both cancel it, so a late success can never be followed
// by a spurious fallback.
func (c *Controller) armFallbackTimerLocked() {
	c.stopFallbackTimerLocked()
	c.fallbackArmed = true
	c.fallbackTimer = time.AfterFunc(c.cfg.FallbackTimeout, c.onFallbackTimeout)
}

func (c *Controller) stopFallbackTimer() {
	c.mu.Lock()
	c.stopFallbackTimerLocked()
	c.mu.Unlock()
}

func (c *Controller) stopFallbackTimerLocked() {
	if c.fallbackTimer != nil {
		c.fallbackTimer.Stop()
		c.fallbackTimer = nil
	}
	c.fallbackArmed = false
}

// onFallbackTimeout runs when the enterprise attempt outlives the fallback
// timeout in hybrid mode.
func (c *Controller) onFallbackTimeout() {
	c.mu.Lock()
	if !c.fallbackArmed {
		// Disconnect or a successful connect disarmed the timer first.
		c.mu.Unlock()
		return
	}
	c.fallbackArmed = false
	c.fallbackTimer = nil
	c.mu.Unlock()

	if c.cfg.DisableFallback {
		return
	}
	if err := c.fallBack(context.Background(), "enterprise connection timeout"); err != nil {
		c.logger.Error("fallback connect failed", zap.Error(err))
	}
}

// recordConnectFailure appends an error event and marks the connection state
// as errored, unless another implementation already holds a live connection.
func (c *Controller) recordConnectFailure(message string, err error) {
	c.mu.Lock()
	if c.connState != StateConnected {
		c.connState = StateError
	}
	c.appendEventLocked(EventError, map[string]interface{}{"error": err.Error()}, message)
	c.mu.Unlock()
}

// comparePerformanceLocked derives the enterprise-over-legacy improvement
// once both connect latencies are known and records a comparison event.
func (c *Controller) comparePerformanceLocked() {
	if c.perf.Improvement != nil || c.perf.LegacyLatency == nil || c.perf.EnterpriseLatency == nil {
		return
	}
	if *c.perf.LegacyLatency <= 0 {
		return
	}
	improvement := (*c.perf.LegacyLatency - *c.perf.EnterpriseLatency) / *c.perf.LegacyLatency * 100
	c.perf.Improvement = &improvement
	c.appendEventLocked(EventPerformanceComparison,
		map[string]interface{}{
			"legacyLatency":     *c.perf.LegacyLatency,
			"enterpriseLatency": *c.perf.EnterpriseLatency,
			"improvement":       improvement,
		},
		fmt.Sprintf("enterprise connect latency improvement: %.1f%%", improvement))
}

// appendEvent appends a migration event, taking the controller lock.
func (c *Controller) appendEvent(t EventType, data map[string]interface{}, message string) {
	c.mu.Lock()
	c.appendEventLocked(t, data, message)
	c.mu.Unlock()
}

// appendEventLocked appends a migration event and mirrors it to the logger
// unless event logging is disabled.
func (c *Controller) appendEventLocked(t EventType, data map[string]interface{}, message string) {
	c.events.append(Event{
		Timestamp: time.Now(),
		Type:      t,
		Data:      data,
		Message:   message,
	})
	if c.cfg.DisableEventLogging {
		return
	}
	if t == EventError {
		c.logger.Error(message, zap.String("event", string(t)), zap.Any("data", data))
	} else {
		c.logger.Info(message, zap.String("event", string(t)), zap.Any("data", data))
	}
}
