// Package migration manages the transition of QuietSpace realtime features
// from the legacy queue transport to the enterprise WebSocket transport.
//
// # Architecture
//
// The package consists of the following key components:
//
//   - Controller: per-feature dual-mode router presenting one unified
//     connect/disconnect/send/subscribe contract over the legacy and
//     enterprise implementations, with automatic fallback and self-reporting
//   - Coordinator: fan-out wrapper running one Controller per feature and
//     aggregating connect/disconnect/switch/report operations
//   - Registry / Codec: per-feature table mapping domain payloads onto the
//     enterprise wire envelope and back, with required-shape validation
//   - eventLog: bounded FIFO log of the last 100 migration events
//
// # Modes
//
// A Controller runs in one of three modes:
//
//   - legacy: connects only the legacy implementation
//   - enterprise: connects only the enterprise implementation
//   - hybrid (default): attempts enterprise under a fallback timer and
//     falls back to legacy on failure or timeout
//
// In the pure modes exactly one of IsUsingLegacy/IsUsingEnterprise is true;
// only hybrid mode may have both.
//
// # Failure semantics
//
// Hybrid-mode connection failures are recovered locally by falling back to
// legacy (when fallback is enabled). In the pure modes, and whenever
// fallback is disabled, failures are returned to the caller. Send and
// subscription errors are always surfaced to the caller in addition to being
// recorded as migration events; no error is silently dropped.
//
// # Ordering
//
// Migration events are appended in the order operations complete, not the
// order they are issued; two overlapping operations may record their events
// out of issue-order.
//
// # Usage Example
//
//	registry := migration.NewRegistry()
//	ctrl, err := migration.NewController(migration.Config{
//		Feature:            migration.FeatureChat,
//		EnterpriseEndpoint: "wss://realtime.quietspace.io/ws",
//		LegacyEndpoint:     "client-42",
//	}, legacyConn, enterpriseConn, registry, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	unsubscribe := ctrl.Subscribe(func(payload []byte) {
//		// handle inbound chat payloads
//	})
//	defer unsubscribe()
//
//	if err := ctrl.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer ctrl.Disconnect(ctx)
//
//	err = ctrl.SendMessage(migration.ChatMessage{ChatID: "c1", Content: "hi"})
package migration
