// Package capability defines the quota gate consulted before an interest is recorded.
package capability

import "context"

// ActionKind names a metered action.
type ActionKind string

// Metered actions.
const (
	ActionStandardInterest ActionKind = "standard_interest"
	ActionPriorityInterest ActionKind = "priority_interest"
)

// Decision is the gate's answer. Remaining is -1 when the action is unlimited.
type Decision struct {
	Allowed   bool
	Remaining int
}

// Gate decides whether an actor may perform an action now.
// An allowed decision consumes one unit of the actor's allowance.
type Gate interface {
	CheckQuota(ctx context.Context, actorID string, action ActionKind) (Decision, error)
}

// Unlimited allows everything.
type Unlimited struct{}

// CheckQuota implements Gate.
func (Unlimited) CheckQuota(context.Context, string, ActionKind) (Decision, error) {
	return Decision{Allowed: true, Remaining: -1}, nil
}
