package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thural/quietspace-realtime/transport"
)

type coordinatorFixture struct {
	coordinator *Coordinator
	legacy      map[Feature]*mockConnection
	enterprise  map[Feature]*mockConnection
}

func newCoordinatorFixture(t *testing.T, mode Mode) *coordinatorFixture {
	t.Helper()
	fix := &coordinatorFixture{
		coordinator: NewCoordinator(nil),
		legacy:      make(map[Feature]*mockConnection),
		enterprise:  make(map[Feature]*mockConnection),
	}
	for _, feature := range []Feature{FeatureChat, FeatureNotification, FeatureFeed} {
		legacy := newMockConnection()
		enterprise := newMockConnection()
		ctrl, err := NewController(Config{Feature: feature, Mode: mode}, legacy, enterprise, nil, nil)
		require.NoError(t, err)
		fix.coordinator.Register(ctrl)
		fix.legacy[feature] = legacy
		fix.enterprise[feature] = enterprise
	}
	return fix
}

func TestCoordinatorConnectAll(t *testing.T) {
	fix := newCoordinatorFixture(t, ModeEnterprise)

	require.NoError(t, fix.coordinator.ConnectAll(context.Background()))

	for feature, conn := range fix.enterprise {
		assert.True(t, conn.IsConnected(), "feature %s should be connected", feature)
	}
	assert.True(t, fix.coordinator.AllEnterprise())
	assert.False(t, fix.coordinator.AnyUsingLegacy())
}

func TestCoordinatorConnectAllPartialFailure(t *testing.T) {
	fix := newCoordinatorFixture(t, ModeEnterprise)
	fix.enterprise[FeatureFeed].startErr = transport.ErrConnectionClosed

	err := fix.coordinator.ConnectAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed")

	// The other features keep their connections.
	assert.True(t, fix.enterprise[FeatureChat].IsConnected())
	assert.True(t, fix.enterprise[FeatureNotification].IsConnected())

	// Every controller stays disconnectable after a partial failure.
	assert.NoError(t, fix.coordinator.DisconnectAll(context.Background()))
	for _, conn := range fix.enterprise {
		assert.False(t, conn.IsConnected())
	}
}

func TestCoordinatorDisconnectAll(t *testing.T) {
	fix := newCoordinatorFixture(t, ModeLegacy)

	require.NoError(t, fix.coordinator.ConnectAll(context.Background()))
	require.NoError(t, fix.coordinator.DisconnectAll(context.Background()))

	for _, conn := range fix.legacy {
		assert.False(t, conn.IsConnected())
	}
}

func TestCoordinatorSwitchAll(t *testing.T) {
	fix := newCoordinatorFixture(t, ModeLegacy)

	assert.True(t, fix.coordinator.AnyUsingLegacy())
	assert.False(t, fix.coordinator.AllEnterprise())

	fix.coordinator.SwitchAllToEnterprise()
	assert.True(t, fix.coordinator.AllEnterprise())
	assert.False(t, fix.coordinator.AnyUsingLegacy())

	fix.coordinator.SwitchAllToLegacy()
	assert.True(t, fix.coordinator.AnyUsingLegacy())
	assert.False(t, fix.coordinator.AllEnterprise())
}

func TestCoordinatorDerivedStateNotCached(t *testing.T) {
	fix := newCoordinatorFixture(t, ModeEnterprise)

	assert.True(t, fix.coordinator.AllEnterprise())

	ctrl, ok := fix.coordinator.Controller(FeatureChat)
	require.True(t, ok)
	ctrl.SwitchToLegacy()

	assert.False(t, fix.coordinator.AllEnterprise())
	assert.True(t, fix.coordinator.AnyUsingLegacy())
}

func TestCoordinatorReports(t *testing.T) {
	fix := newCoordinatorFixture(t, ModeHybrid)

	ctrl, _ := fix.coordinator.Controller(FeatureFeed)
	require.NoError(t, ctrl.TriggerFallback("flaky network"))

	reports := fix.coordinator.Reports()
	require.Len(t, reports, 3)

	byFeature := make(map[Feature]Report, len(reports))
	for _, r := range reports {
		byFeature[r.Feature] = r
	}
	assert.Equal(t, ModeHybrid, byFeature[FeatureFeed].RecommendedMode)
	assert.Equal(t, 1, byFeature[FeatureFeed].FallbackCount)
	assert.Equal(t, ModeEnterprise, byFeature[FeatureChat].RecommendedMode)
}

func TestCoordinatorEmpty(t *testing.T) {
	c := NewCoordinator(nil)
	assert.False(t, c.AllEnterprise())
	assert.False(t, c.AnyUsingLegacy())
	assert.NoError(t, c.ConnectAll(context.Background()))
	assert.NoError(t, c.DisconnectAll(context.Background()))
}
