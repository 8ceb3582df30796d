// Package matching turns reciprocal positive interest into exactly one match per pair.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tandem/internal/domain/errs"
	"github.com/okian/tandem/internal/domain/model"
	"github.com/okian/tandem/internal/domain/notify"
	"github.com/okian/tandem/internal/domain/scoring"
	"github.com/okian/tandem/pkg/logger"
	"github.com/okian/tandem/pkg/metrics"
)

// Tx is the transactional view the detector needs.
type Tx interface {
	scoring.ProfileReader
	HasPositiveInterest(ctx context.Context, actorID, targetID string) (bool, error)
	// CreateMatch returns errs.ErrConflict when the pair already has a match.
	CreateMatch(ctx context.Context, m *model.Match) error
}

// Store runs detector transactions and resolves lost races.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	MatchByPair(ctx context.Context, low, high string) (model.Match, error)
}

// OutcomeKind classifies a detection.
type OutcomeKind string

// Outcome kinds.
const (
	NoMatch            OutcomeKind = "no_match"
	MatchCreated       OutcomeKind = "match_created"
	MatchAlreadyExists OutcomeKind = "match_already_exists"
)

// Outcome is the result of one detection. Match is set unless Kind is NoMatch.
type Outcome struct {
	Kind  OutcomeKind  `json:"kind"`
	Match *model.Match `json:"match,omitempty"`
}

// Detector checks for reciprocity after each recorded interest.
type Detector struct {
	store    Store
	seeder   scoring.Seeder
	notifier notify.Notifier
	logger   logger.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Detector.
type Option func(*Detector)

// WithSeeder sets how a new match's score is seeded.
func WithSeeder(s scoring.Seeder) Option {
	return func(d *Detector) {
		if s != nil {
			d.seeder = s
		}
	}
}

// WithNotifier sets where match_formed notifications go.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Detector) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithLogger sets the detector logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// WithIDGenerator overrides match id generation.
func WithIDGenerator(gen func() string) Option {
	return func(d *Detector) {
		if gen != nil {
			d.newID = gen
		}
	}
}

// NewDetector builds a Detector over store.
func NewDetector(store Store, opts ...Option) *Detector {
	d := &Detector{
		store:    store,
		seeder:   scoring.NewFlatSeeder(scoring.DefaultInitialScore),
		notifier: notify.Discard{},
		logger:   logger.Nop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnInterestRecorded runs after actor's interest in target has been stored.
// A match is created only if target already likes actor; the pair's unique
// index decides between concurrent creators.
func (d *Detector) OnInterestRecorded(ctx context.Context, actorID, targetID string, disposition model.Disposition) (Outcome, error) {
	if !disposition.Positive() {
		return Outcome{Kind: NoMatch}, nil
	}
	if actorID == targetID {
		return Outcome{}, fmt.Errorf("detect %s: %w", actorID, errs.ErrSelfReference)
	}
	low, high := model.OrderPair(actorID, targetID)

	var created *model.Match
	start := time.Now()
	err := d.store.WithinTx(ctx, func(tx Tx) error {
		reciprocal, err := tx.HasPositiveInterest(ctx, targetID, actorID)
		if err != nil || !reciprocal {
			return err
		}

		score, err := d.seeder.Seed(ctx, tx, actorID, targetID)
		if err != nil {
			d.logger.Warn(ctx, "seeding failed, using default score",
				logger.String("user_low", low),
				logger.String("user_high", high),
				logger.Error(err))
			score = scoring.DefaultInitialScore
		}
		score = scoring.Clamp(score)

		now := d.now().UTC()
		m := &model.Match{
			ID:           d.newID(),
			UserLow:      low,
			UserHigh:     high,
			InitialScore: score,
			CurrentScore: score,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateMatch(ctx, m); err != nil {
			return err
		}
		created = m
		return nil
	})
	metrics.RecordStoreLatency("detect_match", metrics.Since(start))

	if errors.Is(err, errs.ErrConflict) {
		return d.resolveRace(ctx, low, high)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("detect %s/%s: %w", low, high, err)
	}
	if created == nil {
		return Outcome{Kind: NoMatch}, nil
	}

	metrics.RecordMatchCreated(created.InitialScore)
	d.logger.Info(ctx, "match created",
		logger.String("match_id", created.ID),
		logger.String("user_low", low),
		logger.String("user_high", high),
		logger.Int("initial_score", created.InitialScore))
	for _, uid := range created.Participants() {
		d.notifier.Notify(ctx, model.NewNotification(model.NotificationMatchFormed, created.ID, uid, map[string]any{
			"match_id": created.ID,
			"with":     created.Other(uid),
			"score":    created.InitialScore,
		}, d.now()))
	}
	return Outcome{Kind: MatchCreated, Match: created}, nil
}

// resolveRace re-reads the match another writer committed first.
// A dissolved pair is reported as NoMatch so it is never revived.
func (d *Detector) resolveRace(ctx context.Context, low, high string) (Outcome, error) {
	existing, err := d.store.MatchByPair(ctx, low, high)
	if err != nil {
		return Outcome{}, fmt.Errorf("detect %s/%s: resolve conflict: %w", low, high, err)
	}
	metrics.RecordMatchRace()
	if !existing.Active() {
		d.logger.Debug(ctx, "pair was unmatched, not re-forming",
			logger.String("match_id", existing.ID))
		return Outcome{Kind: NoMatch}, nil
	}
	d.logger.Debug(ctx, "match already exists", logger.String("match_id", existing.ID))
	return Outcome{Kind: MatchAlreadyExists, Match: &existing}, nil
}
