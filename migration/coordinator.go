package migration

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Coordinator runs one Controller per feature and aggregates connect,
// disconnect, mode-switch and reporting operations across them.
type Coordinator struct {
	controllers map[Feature]*Controller
	logger      *zap.Logger
}

// NewCoordinator creates an empty Coordinator. A nil logger disables logging.
func NewCoordinator(logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		controllers: make(map[Feature]*Controller),
		logger:      logger,
	}
}

// Register adds a controller, keyed by its feature. Registering a feature
// twice replaces the previous controller.
func (c *Coordinator) Register(ctrl *Controller) {
	c.controllers[ctrl.Feature()] = ctrl
}

// Controller returns the controller for the given feature.
func (c *Coordinator) Controller(f Feature) (*Controller, bool) {
	ctrl, ok := c.controllers[f]
	return ctrl, ok
}

// Features returns the registered features in stable order.
func (c *Coordinator) Features() []Feature {
	features := make([]Feature, 0, len(c.controllers))
	for f := range c.controllers {
		features = append(features, f)
	}
	sort.Slice(features, func(i, j int) bool { return features[i] < features[j] })
	return features
}

// ConnectAll connects every controller in parallel. If any connect fails the
// aggregate error reports all failures, but the remaining controllers keep
// their connections and every controller stays disconnectable.
func (c *Coordinator) ConnectAll(ctx context.Context) error {
	var group multierror.Group
	for _, feature := range c.Features() {
		ctrl := c.controllers[feature]
		f := feature
		group.Go(func() error {
			if err := ctrl.Connect(ctx); err != nil {
				return fmt.Errorf("feature %q: %w", f, err)
			}
			return nil
		})
	}

	if err := group.Wait().ErrorOrNil(); err != nil {
		c.logger.Error("connect-all completed with failures", zap.Error(err))
		return err
	}
	c.logger.Info("all features connected", zap.Int("features", len(c.controllers)))
	return nil
}

// DisconnectAll disconnects every controller. Disconnection is attempted for
// all controllers regardless of individual failures; the aggregate error
// reports any that failed.
func (c *Coordinator) DisconnectAll(ctx context.Context) error {
	var result *multierror.Error
	for _, feature := range c.Features() {
		if err := c.controllers[feature].Disconnect(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("feature %q: %w", feature, err))
		}
	}
	return result.ErrorOrNil()
}

// SwitchAllToEnterprise switches every controller to enterprise mode,
// applied independently per feature.
func (c *Coordinator) SwitchAllToEnterprise() {
	for _, ctrl := range c.controllers {
		ctrl.SwitchToEnterprise()
	}
}

// SwitchAllToLegacy switches every controller to legacy mode, applied
// independently per feature.
func (c *Coordinator) SwitchAllToLegacy() {
	for _, ctrl := range c.controllers {
		ctrl.SwitchToLegacy()
	}
}

// AnyUsingLegacy reports whether any controller is currently using the legacy
// implementation. Computed fresh from controller state, never cached.
func (c *Coordinator) AnyUsingLegacy() bool {
	for _, ctrl := range c.controllers {
		if ctrl.State().IsUsingLegacy {
			return true
		}
	}
	return false
}

// AllEnterprise reports whether every controller is using the enterprise
// implementation. Computed fresh from controller state, never cached.
func (c *Coordinator) AllEnterprise() bool {
	if len(c.controllers) == 0 {
		return false
	}
	for _, ctrl := range c.controllers {
		if !ctrl.State().IsUsingEnterprise {
			return false
		}
	}
	return true
}

// Reports computes a migration report for every registered feature.
func (c *Coordinator) Reports() []Report {
	reports := make([]Report, 0, len(c.controllers))
	for _, feature := range c.Features() {
		reports = append(reports, c.controllers[feature].Report())
	}
	return reports
}
