package migration

import "fmt"

// Report policy constants. The fallback-count checks run before the
// performance check, so heavy fallback activity overrides a good latency
// comparison.
const (
	// maxStableFallbacks is the fallback count above which the enterprise
	// implementation is considered unstable.
	maxStableFallbacks = 5

	// instabilityIssue is reported when fallbacks exceed maxStableFallbacks.
	instabilityIssue = "enterprise implementation may be unstable"

	// regressionIssue is reported when enterprise connects slower than
	// legacy.
	regressionIssue = "enterprise connection is slower than legacy"
)

// Report computes a migration analysis from the controller's current state.
// Nothing is cached; every call recomputes from scratch.
//
// Recommendation policy: more than maxStableFallbacks fallbacks recommends
// legacy, any fallbacks at all recommend hybrid, a negative performance
// improvement recommends legacy, otherwise enterprise.
func (c *Controller) Report() Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := Report{
		Feature:       c.cfg.Feature,
		TotalEvents:   c.events.len(),
		FallbackCount: c.fallbackCount,
		Issues:        []string{},
	}
	if c.perf.Improvement != nil {
		improvement := *c.perf.Improvement
		report.PerformanceImprovement = &improvement
	}

	switch {
	case c.fallbackCount > maxStableFallbacks:
		report.RecommendedMode = ModeLegacy
		report.Issues = append(report.Issues, instabilityIssue)
	case c.fallbackCount > 0:
		report.RecommendedMode = ModeHybrid
		report.Issues = append(report.Issues,
			fmt.Sprintf("%d fallback(s) observed, keep hybrid mode until stable", c.fallbackCount))
	case report.PerformanceImprovement != nil && *report.PerformanceImprovement < 0:
		report.RecommendedMode = ModeLegacy
		report.Issues = append(report.Issues, regressionIssue)
	default:
		report.RecommendedMode = ModeEnterprise
	}

	return report
}
