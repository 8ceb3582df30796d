// Package scoring owns the compatibility score scale and how a new match is seeded.
package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/tandem/internal/domain/model"
)

const (
	// MaxScore is the ceiling of the compatibility scale.
	MaxScore = 100
	// DefaultInitialScore seeds every match unless a seeder says otherwise.
	DefaultInitialScore = 50

	defaultSimilaritySpan = 20
)

// Clamp bounds v to [0, MaxScore].
func Clamp(v int) int {
	return max(0, min(MaxScore, v))
}

// ApplyBonus adds a milestone bonus without ever crossing the ceiling or
// lowering the score.
func ApplyBonus(current, bonus int) int {
	if bonus <= 0 {
		return current
	}
	return min(MaxScore, current+bonus)
}

// ProfileReader loads a profile by id.
type ProfileReader interface {
	Profile(ctx context.Context, id string) (model.Profile, error)
}

// Seeder computes the initial compatibility score for a new pair.
// The reader is bound to the caller's transaction.
type Seeder interface {
	Seed(ctx context.Context, r ProfileReader, a, b string) (int, error)
}

// FlatSeeder gives every pair the same score.
type FlatSeeder struct {
	score int
}

// NewFlatSeeder returns a seeder that always yields score, clamped to the scale.
func NewFlatSeeder(score int) FlatSeeder {
	return FlatSeeder{score: Clamp(score)}
}

// Seed implements Seeder.
func (s FlatSeeder) Seed(context.Context, ProfileReader, string, string) (int, error) {
	return s.score, nil
}

// Option configures a SimilaritySeeder.
type Option func(*SimilaritySeeder)

// WithBase sets the score given to a pair with nothing in common.
func WithBase(base int) Option {
	return func(s *SimilaritySeeder) {
		s.base = Clamp(base)
	}
}

// WithSpan sets how many points full tag overlap adds on top of the base.
func WithSpan(span int) Option {
	return func(s *SimilaritySeeder) {
		if span >= 0 {
			s.span = span
		}
	}
}

// SimilaritySeeder scores a pair by the Jaccard overlap of their interest tags.
type SimilaritySeeder struct {
	base int
	span int
}

// NewSimilaritySeeder builds a SimilaritySeeder.
func NewSimilaritySeeder(opts ...Option) *SimilaritySeeder {
	s := &SimilaritySeeder{base: DefaultInitialScore, span: defaultSimilaritySpan}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed implements Seeder.
func (s *SimilaritySeeder) Seed(ctx context.Context, r ProfileReader, a, b string) (int, error) {
	pa, err := r.Profile(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("seed %s: %w", a, err)
	}
	pb, err := r.Profile(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("seed %s: %w", b, err)
	}
	overlap := Jaccard(pa.InterestTags(), pb.InterestTags())
	return Clamp(s.base + int(math.Round(overlap*float64(s.span)))), nil
}

// Jaccard returns |a ∩ b| / |a ∪ b| over distinct values; 0 when both are empty.
func Jaccard(a, b []string) float64 {
	set := make(map[string]uint8, len(a)+len(b))
	for _, v := range a {
		set[v] |= 1
	}
	for _, v := range b {
		set[v] |= 2
	}
	if len(set) == 0 {
		return 0
	}
	shared := 0
	for _, bits := range set {
		if bits == 3 {
			shared++
		}
	}
	return float64(shared) / float64(len(set))
}
