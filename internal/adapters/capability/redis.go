package capability

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/okian/tandem/internal/domain/capability"
	"github.com/okian/tandem/internal/domain/errs"
)

// RedisGate counts allowances in Redis so every instance shares them.
// Each counter expires at the end of its day.
type RedisGate struct {
	rdb  redis.Cmdable
	opts *gateOptions
}

// NewRedisGate builds a RedisGate over rdb.
func NewRedisGate(rdb redis.Cmdable, opts ...Option) *RedisGate {
	return &RedisGate{rdb: rdb, opts: newGateOptions(opts)}
}

// CheckQuota implements capability.Gate. An allowed call consumes one unit.
func (g *RedisGate) CheckQuota(ctx context.Context, actorID string, action capability.ActionKind) (capability.Decision, error) {
	limit := g.opts.limits[action]
	if limit <= 0 {
		return capability.Decision{Allowed: true, Remaining: -1}, nil
	}

	day, end := g.opts.day(g.opts.now())
	key := fmt.Sprintf("%s:%s:%s:%s", g.opts.prefix, action, actorID, day)

	var incr *redis.IntCmd
	_, err := g.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, end)
		return nil
	})
	if err != nil {
		return capability.Decision{}, fmt.Errorf("check quota %s: %w: %w", action, errs.ErrStorage, err)
	}

	used := int(incr.Val())
	if used > limit {
		return capability.Decision{Allowed: false, Remaining: 0}, nil
	}
	return capability.Decision{Allowed: true, Remaining: limit - used}, nil
}

var _ capability.Gate = (*RedisGate)(nil)
