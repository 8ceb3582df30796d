package capability

import (
	"context"
	"sync"

	"github.com/okian/tandem/internal/domain/capability"
)

// MemoryGate counts allowances in process. Counters reset at midnight.
type MemoryGate struct {
	opts *gateOptions

	mu   sync.Mutex
	day  string
	used map[string]int
}

// NewMemoryGate builds a MemoryGate.
func NewMemoryGate(opts ...Option) *MemoryGate {
	return &MemoryGate{opts: newGateOptions(opts), used: map[string]int{}}
}

// CheckQuota implements capability.Gate. An allowed call consumes one unit.
func (g *MemoryGate) CheckQuota(_ context.Context, actorID string, action capability.ActionKind) (capability.Decision, error) {
	limit := g.opts.limits[action]
	if limit <= 0 {
		return capability.Decision{Allowed: true, Remaining: -1}, nil
	}

	day, _ := g.opts.day(g.opts.now())
	key := string(action) + ":" + actorID

	g.mu.Lock()
	defer g.mu.Unlock()
	if day != g.day {
		g.day = day
		clear(g.used)
	}
	if g.used[key] >= limit {
		return capability.Decision{Allowed: false, Remaining: 0}, nil
	}
	g.used[key]++
	return capability.Decision{Allowed: true, Remaining: limit - g.used[key]}, nil
}

var _ capability.Gate = (*MemoryGate)(nil)
