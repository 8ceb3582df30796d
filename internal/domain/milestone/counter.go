package milestone

import (
	"context"
	"fmt"

	"github.com/okian/tandem/internal/domain/errs"
)

// Counter turns activity counts into threshold milestones.
type Counter struct {
	recorder *Recorder
}

// NewCounter builds a Counter that records through r.
func NewCounter(r *Recorder) *Counter {
	return &Counter{recorder: r}
}

// Observe records every milestone for metric whose threshold count meets.
// Already applied milestones come back as AlreadyApplied, so repeating a
// count is harmless.
func (c *Counter) Observe(ctx context.Context, matchID string, metric Metric, count int) ([]Outcome, error) {
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("count %d: %w", count, errs.ErrInvalidInput)
	}
	reached := c.recorder.Catalog().Reached(metric, count)
	out := make([]Outcome, 0, len(reached))
	for _, d := range reached {
		o, err := c.recorder.RecordMilestone(ctx, matchID, d.Key, map[string]any{
			"metric": string(metric),
			"count":  count,
		})
		if err != nil {
			return out, err
		}
		out = append(out, o)
	}
	return out, nil
}
