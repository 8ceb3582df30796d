// Package capability implements daily quota gates for interest actions.
package capability

import (
	"time"

	"github.com/okian/tandem/internal/domain/capability"
)

// Limits maps each action to its daily allowance. Zero or negative is unlimited.
type Limits map[capability.ActionKind]int

type gateOptions struct {
	limits Limits
	now    func() time.Time
	loc    *time.Location
	prefix string
}

// Option configures a gate.
type Option func(*gateOptions)

// WithLimit sets the daily allowance for action.
func WithLimit(action capability.ActionKind, perDay int) Option {
	return func(o *gateOptions) {
		o.limits[action] = perDay
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *gateOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the zone whose midnight resets allowances.
func WithLocation(loc *time.Location) Option {
	return func(o *gateOptions) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithKeyPrefix namespaces Redis keys.
func WithKeyPrefix(prefix string) Option {
	return func(o *gateOptions) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

func newGateOptions(opts []Option) *gateOptions {
	o := &gateOptions{limits: Limits{}, now: time.Now, loc: time.UTC, prefix: "tandem:quota"}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// day returns the allowance window for t and when it ends.
func (o *gateOptions) day(t time.Time) (string, time.Time) {
	local := t.In(o.loc)
	y, m, d := local.Date()
	return local.Format("20060102"), time.Date(y, m, d+1, 0, 0, 0, 0, o.loc)
}
