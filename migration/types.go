// Package migration implements the connection-migration layer that moves
// QuietSpace realtime features from the legacy queue transport to the
// enterprise WebSocket transport. A Controller presents one unified
// connect/disconnect/send/subscribe contract per feature regardless of which
// implementation is active, with automatic fallback and self-reporting; a
// Coordinator fans the same operations out across features.
package migration

import (
	"time"
)

// Feature identifies a realtime consumer within the product.
type Feature string

// The realtime features the migration layer serves.
const (
	FeatureChat         Feature = "chat"
	FeatureNotification Feature = "notification"
	FeatureFeed         Feature = "feed"
)

// ConnectionState describes the lifecycle state of the logical connection
// owned by a Controller.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateReconnecting ConnectionState = "reconnecting"
	StateError        ConnectionState = "error"
)

// Mode selects which transport implementation(s) a Controller runs against.
type Mode string

const (
	// ModeLegacy runs exclusively against the legacy implementation.
	ModeLegacy Mode = "legacy"
	// ModeHybrid attempts the enterprise implementation with automatic
	// fallback to legacy.
	ModeHybrid Mode = "hybrid"
	// ModeEnterprise runs exclusively against the enterprise implementation.
	ModeEnterprise Mode = "enterprise"
)

// EventType classifies entries in the migration event log.
type EventType string

const (
	EventModeSwitch            EventType = "mode_switch"
	EventFallbackTriggered     EventType = "fallback_triggered"
	EventPerformanceComparison EventType = "performance_comparison"
	EventError                 EventType = "error"
)

// Event is a single immutable entry in a Controller's migration event log.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Type      EventType              `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Message   string                 `json:"message"`
}

// PerformanceStats holds the connect latencies observed for each
// implementation and the relative improvement of enterprise over legacy.
// Latencies are in milliseconds; Improvement is a percentage where positive
// means enterprise connected faster.
type PerformanceStats struct {
	LegacyLatency     *float64 `json:"legacyLatency,omitempty"`
	EnterpriseLatency *float64 `json:"enterpriseLatency,omitempty"`
	Improvement       *float64 `json:"improvement,omitempty"`
}

// State is a snapshot of a Controller's migration state. It is created per
// feature and lives only as long as the owning Controller; nothing is
// persisted.
type State struct {
	ConnectionState   ConnectionState  `json:"connectionState"`
	Mode              Mode             `json:"mode"`
	IsUsingLegacy     bool             `json:"isUsingLegacy"`
	IsUsingEnterprise bool             `json:"isUsingEnterprise"`
	FallbackTriggered bool             `json:"fallbackTriggered"`
	MigrationEvents   []Event          `json:"migrationEvents"`
	Performance       PerformanceStats `json:"performance"`
}

// Report is a derived, read-only analysis of a Controller's migration state,
// recomputed on every call.
type Report struct {
	Feature                Feature  `json:"feature"`
	TotalEvents            int      `json:"totalEvents"`
	FallbackCount          int      `json:"fallbackCount"`
	PerformanceImprovement *float64 `json:"performanceImprovement,omitempty"`
	RecommendedMode        Mode     `json:"recommendedMode"`
	Issues                 []string `json:"issues"`
}
