package throttle

import "context"

// StaticPlanSource resolves every user to the same configured limits. It is
// the default when no billing service is wired.
type StaticPlanSource struct {
	Limits PlanLimits
}

// LimitsFor returns the configured limits regardless of user.
func (s StaticPlanSource) LimitsFor(context.Context, string) (PlanLimits, error) {
	return s.Limits, nil
}
