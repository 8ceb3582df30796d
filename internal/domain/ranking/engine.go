// Package ranking produces the daily Top Picks list for a user.
package ranking

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/okian/tandem/internal/domain/errs"
	"github.com/okian/tandem/internal/domain/model"
	"github.com/okian/tandem/pkg/logger"
	"github.com/okian/tandem/pkg/metrics"
)

// Profiles reads the profile data the engine scores.
type Profiles interface {
	Profile(ctx context.Context, id string) (model.Profile, error)
	// CandidatePool returns at most limit profiles in insertion order,
	// excluding the actor, everyone the actor already acted on, profiles
	// without photos and profiles outside the actor's gender preference.
	CandidatePool(ctx context.Context, actor model.Profile, limit int) ([]model.Profile, error)
}

// MissingCoordinatesPolicy decides proximity when either side has no coordinates.
type MissingCoordinatesPolicy string

// Policies.
const (
	// ZeroDistance treats the pair as co-located.
	ZeroDistance MissingCoordinatesPolicy = "zero_distance"
	// Farthest gives the lowest proximity score.
	Farthest MissingCoordinatesPolicy = "farthest"
)

// Weights are the sub-score multipliers.
type Weights struct {
	Completeness float64
	Recency      float64
	Proximity    float64
}

// DefaultWeights returns 0.40 / 0.35 / 0.25.
func DefaultWeights() Weights {
	return Weights{Completeness: 0.40, Recency: 0.35, Proximity: 0.25}
}

const defaultVerifiedBonus = 10

// Score explains one candidate's composite.
type Score struct {
	Completeness  float64  `json:"completeness"`
	Recency       float64  `json:"recency"`
	Proximity     float64  `json:"proximity"`
	VerifiedBonus float64  `json:"verified_bonus"`
	DistanceKm    *float64 `json:"distance_km,omitempty"`
	Composite     float64  `json:"composite"`
}

// Candidate is a ranked profile.
type Candidate struct {
	Profile model.Profile `json:"profile"`
	Score   Score         `json:"score"`
}

// Result is one Top Picks list.
type Result struct {
	UserID      string        `json:"user_id"`
	Candidates  []Candidate   `json:"candidates"`
	PoolSize    int           `json:"pool_size"`
	GeneratedAt time.Time     `json:"generated_at"`
	RefreshAt   time.Time     `json:"refresh_at"`
	RefreshIn   time.Duration `json:"refresh_in"`
}

// Engine ranks candidate pools.
type Engine struct {
	profiles      Profiles
	weights       Weights
	verifiedBonus float64
	policy        MissingCoordinatesPolicy
	now           func() time.Time
	loc           *time.Location
	logger        logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWeights overrides the sub-score weights.
func WithWeights(w Weights) Option {
	return func(e *Engine) {
		if w.Completeness >= 0 && w.Recency >= 0 && w.Proximity >= 0 {
			e.weights = w
		}
	}
}

// WithVerifiedBonus sets the flat bonus added for verified candidates.
func WithVerifiedBonus(b float64) Option {
	return func(e *Engine) {
		if b >= 0 {
			e.verifiedBonus = b
		}
	}
}

// WithMissingCoordinatesPolicy selects how missing coordinates score.
func WithMissingCoordinatesPolicy(p MissingCoordinatesPolicy) Option {
	return func(e *Engine) {
		switch p {
		case ZeroDistance, Farthest:
			e.policy = p
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the zone whose midnight refreshes the list.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine builds an Engine reading from profiles.
func NewEngine(profiles Profiles, opts ...Option) *Engine {
	e := &Engine{
		profiles:      profiles,
		weights:       DefaultWeights(),
		verifiedBonus: defaultVerifiedBonus,
		policy:        ZeroDistance,
		now:           time.Now,
		loc:           time.Local,
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rank scores up to poolSize candidates for userID and returns the best resultSize.
// The same data always yields the same order; ties keep pool order.
func (e *Engine) Rank(ctx context.Context, userID string, poolSize, resultSize int) (Result, error) {
	if poolSize <= 0 || resultSize <= 0 {
		return Result{}, fmt.Errorf("rank %s: pool %d result %d: %w", userID, poolSize, resultSize, errs.ErrInvalidInput)
	}
	start := time.Now()
	actor, err := e.profiles.Profile(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("rank %s: %w", userID, err)
	}
	pool, err := e.profiles.CandidatePool(ctx, actor, poolSize)
	if err != nil {
		return Result{}, fmt.Errorf("rank %s: pool: %w", userID, err)
	}

	now := e.now()
	ranked := make([]Candidate, 0, len(pool))
	for _, p := range pool {
		ranked = append(ranked, Candidate{Profile: p, Score: e.Score(actor, p, now)})
	}
	slices.SortStableFunc(ranked, func(a, b Candidate) int {
		return cmp.Compare(b.Score.Composite, a.Score.Composite)
	})
	if len(ranked) > resultSize {
		ranked = ranked[:resultSize]
	}

	refresh := NextRefresh(now, e.loc)
	metrics.RecordRanking(metrics.Since(start), len(pool))
	e.logger.Debug(ctx, "top picks ranked",
		logger.String("user_id", userID),
		logger.Int("pool", len(pool)),
		logger.Int("returned", len(ranked)))

	return Result{
		UserID:      userID,
		Candidates:  ranked,
		PoolSize:    len(pool),
		GeneratedAt: now,
		RefreshAt:   refresh,
		RefreshIn:   refresh.Sub(now),
	}, nil
}

// Score computes the explainable composite of candidate as seen by actor.
// The composite is not capped: the verified bonus may push it past 100.
func (e *Engine) Score(actor, candidate model.Profile, now time.Time) Score {
	s := Score{
		Completeness: float64(Completeness(candidate)),
		Recency:      float64(Recency(candidate.UpdatedAt, now)),
	}
	if actor.HasCoordinates() && candidate.HasCoordinates() {
		km := round2(Haversine(*actor.Latitude, *actor.Longitude, *candidate.Latitude, *candidate.Longitude))
		s.DistanceKm = &km
		s.Proximity = float64(Proximity(km))
	} else if e.policy == Farthest {
		s.Proximity = float64(Proximity(maxDistanceKm))
	} else {
		s.Proximity = float64(Proximity(0))
	}
	if candidate.Verified {
		s.VerifiedBonus = e.verifiedBonus
	}
	s.Composite = round2(e.weights.Completeness*s.Completeness +
		e.weights.Recency*s.Recency +
		e.weights.Proximity*s.Proximity +
		s.VerifiedBonus)
	return s
}

const maxDistanceKm = 20_037.5 // half the equatorial circumference

// NextRefresh returns the next midnight in loc after now.
func NextRefresh(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}
