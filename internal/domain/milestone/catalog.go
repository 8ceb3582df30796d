// Package milestone applies relationship milestones to a match's compatibility score.
package milestone

import (
	"fmt"

	"github.com/okian/tandem/internal/domain/errs"
)

// Metric names a counter that can unlock threshold milestones.
type Metric string

// Counted metrics.
const (
	MetricMessages   Metric = "messages"
	MetricDaysActive Metric = "days_active"
)

// ParseMetric accepts a known metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricMessages, MetricDaysActive:
		return m, nil
	default:
		return "", fmt.Errorf("metric %q: %w", s, errs.ErrInvalidInput)
	}
}

// Definition describes one milestone. Metric is empty for milestones that are
// reported directly rather than reached by counting.
type Definition struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Bonus     int    `json:"bonus"`
	Metric    Metric `json:"metric,omitempty"`
	Threshold int    `json:"threshold,omitempty"`
}

// Catalog is an immutable, ordered set of milestone definitions.
type Catalog struct {
	defs  []Definition
	byKey map[string]int
}

// NewCatalog validates defs and freezes them in the given order.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]Definition, 0, len(defs)),
		byKey: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		switch {
		case d.Key == "":
			return nil, fmt.Errorf("milestone catalog: empty key: %w", errs.ErrInvalidInput)
		case d.Bonus <= 0:
			return nil, fmt.Errorf("milestone catalog: %s bonus must be positive: %w", d.Key, errs.ErrInvalidInput)
		case d.Metric != "" && d.Threshold <= 0:
			return nil, fmt.Errorf("milestone catalog: %s threshold must be positive: %w", d.Key, errs.ErrInvalidInput)
		}
		if _, dup := c.byKey[d.Key]; dup {
			return nil, fmt.Errorf("milestone catalog: duplicate key %s: %w", d.Key, errs.ErrInvalidInput)
		}
		c.byKey[d.Key] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// Default returns the built-in catalog. Its bonuses add up to more than the
// score headroom of a default match, so the ceiling is reachable.
func Default() *Catalog {
	c, err := NewCatalog(
		Definition{Key: "first_message", Label: "First message", Bonus: 2, Metric: MetricMessages, Threshold: 1},
		Definition{Key: "messages_10", Label: "10 messages", Bonus: 3, Metric: MetricMessages, Threshold: 10},
		Definition{Key: "first_voice_note", Label: "First voice note", Bonus: 3},
		Definition{Key: "quiz_completed", Label: "Compatibility quiz completed", Bonus: 4},
		Definition{Key: "messages_50", Label: "50 messages", Bonus: 5, Metric: MetricMessages, Threshold: 50},
		Definition{Key: "first_video_call", Label: "First video call", Bonus: 5},
		Definition{Key: "week_together", Label: "A week of conversation", Bonus: 4, Metric: MetricDaysActive, Threshold: 7},
		Definition{Key: "date_planned", Label: "Date planned", Bonus: 6},
		Definition{Key: "messages_100", Label: "100 messages", Bonus: 5, Metric: MetricMessages, Threshold: 100},
		Definition{Key: "date_confirmed", Label: "Date confirmed", Bonus: 8},
		Definition{Key: "month_together", Label: "A month of conversation", Bonus: 6, Metric: MetricDaysActive, Threshold: 30},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup finds a definition by key.
func (c *Catalog) Lookup(key string) (Definition, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// All returns a copy of the definitions in catalog order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Reached lists the threshold milestones for metric that count satisfies.
func (c *Catalog) Reached(metric Metric, count int) []Definition {
	var out []Definition
	for _, d := range c.defs {
		if d.Metric == metric && d.Threshold > 0 && count >= d.Threshold {
			out = append(out, d)
		}
	}
	return out
}

// Next returns the first definition in catalog order not yet achieved.
func (c *Catalog) Next(achieved map[string]bool) (Definition, bool) {
	for _, d := range c.defs {
		if !achieved[d.Key] {
			return d, true
		}
	}
	return Definition{}, false
}
