package milestone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/okian/tandem/internal/domain/errs"
	"github.com/okian/tandem/internal/domain/model"
	"github.com/okian/tandem/internal/domain/notify"
	"github.com/okian/tandem/internal/domain/scoring"
	"github.com/okian/tandem/pkg/logger"
	"github.com/okian/tandem/pkg/metrics"
)

// Tx is the transactional view the recorder needs.
type Tx interface {
	// LockMatch reads the match and holds it until the transaction ends.
	LockMatch(ctx context.Context, matchID string) (model.Match, error)
	HasMilestone(ctx context.Context, matchID, key string) (bool, error)
	// AddMilestone returns errs.ErrConflict when (match, key) already exists.
	AddMilestone(ctx context.Context, entry *model.MilestoneEntry) error
	SetScore(ctx context.Context, matchID string, score int) error
}

// Store persists matches and their milestone ledgers.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	GetMatch(ctx context.Context, matchID string) (model.Match, error)
	Ledger(ctx context.Context, matchID string) ([]model.MilestoneEntry, error)
}

// OutcomeKind tells whether a milestone changed the score.
type OutcomeKind string

// Outcome kinds.
const (
	Applied        OutcomeKind = "applied"
	AlreadyApplied OutcomeKind = "already_applied"
)

// Outcome is the result of recording one milestone. Score is the new score
// when Applied and the unchanged current score when AlreadyApplied.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	MatchID string      `json:"match_id"`
	Key     string      `json:"key"`
	Bonus   int         `json:"bonus"`
	Score   int         `json:"score"`
}

// Recorder applies milestone bonuses exactly once per (match, key).
type Recorder struct {
	store    Store
	catalog  *Catalog
	notifier notify.Notifier
	logger   logger.Logger
	now      func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithNotifier sets where milestone_reached notifications go.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Recorder) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithLogger sets the recorder logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder builds a Recorder over store using catalog.
func NewRecorder(store Store, catalog *Catalog, opts ...Option) *Recorder {
	r := &Recorder{
		store:    store,
		catalog:  catalog,
		notifier: notify.Discard{},
		logger:   logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the recorder's catalog.
func (r *Recorder) Catalog() *Catalog { return r.catalog }

// RecordMilestone applies key's bonus to the match unless the ledger already
// holds it. The ledger row and the score change commit together.
func (r *Recorder) RecordMilestone(ctx context.Context, matchID, key string, metadata map[string]any) (Outcome, error) {
	def, ok := r.catalog.Lookup(key)
	if !ok {
		return Outcome{}, fmt.Errorf("record milestone %q: %w", key, errs.ErrUnknownMilestone)
	}
	var meta datatypes.JSON
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return Outcome{}, fmt.Errorf("record milestone %q: metadata: %w", key, errs.ErrInvalidInput)
		}
		meta = raw
	}

	out := Outcome{MatchID: matchID, Key: key, Bonus: def.Bonus}
	var match model.Match
	start := time.Now()
	err := r.store.WithinTx(ctx, func(tx Tx) error {
		m, err := tx.LockMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if !m.Active() {
			return errs.ErrNotFound
		}
		match = m

		has, err := tx.HasMilestone(ctx, matchID, key)
		if err != nil {
			return err
		}
		if has {
			out.Kind, out.Score = AlreadyApplied, m.CurrentScore
			return nil
		}

		if err := tx.AddMilestone(ctx, &model.MilestoneEntry{
			MatchID:    matchID,
			Key:        key,
			Bonus:      def.Bonus,
			Metadata:   meta,
			AchievedAt: r.now().UTC(),
		}); err != nil {
			return err
		}
		next := scoring.ApplyBonus(m.CurrentScore, def.Bonus)
		if err := tx.SetScore(ctx, matchID, next); err != nil {
			return err
		}
		out.Kind, out.Score = Applied, next
		return nil
	})
	metrics.RecordStoreLatency("record_milestone", metrics.Since(start))

	if errors.Is(err, errs.ErrConflict) {
		// A concurrent writer inserted the same key first; its commit holds the score.
		m, gerr := r.store.GetMatch(ctx, matchID)
		if gerr != nil {
			return Outcome{}, fmt.Errorf("record milestone %q: %w", key, gerr)
		}
		out.Kind, out.Score = AlreadyApplied, m.CurrentScore
		err = nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("record milestone %q on %s: %w", key, matchID, err)
	}

	if out.Kind == AlreadyApplied {
		metrics.RecordMilestoneDuplicate()
		r.logger.Debug(ctx, "milestone already applied",
			logger.String("match_id", matchID), logger.String("key", key))
		return out, nil
	}

	metrics.RecordMilestoneApplied(key, out.Score)
	r.logger.Info(ctx, "milestone applied",
		logger.String("match_id", matchID),
		logger.String("key", key),
		logger.Int("bonus", def.Bonus),
		logger.Int("score", out.Score))
	for _, uid := range match.Participants() {
		r.notifier.Notify(ctx, model.NewNotification(model.NotificationMilestoneReached, matchID+"/"+key, uid, map[string]any{
			"match_id": matchID,
			"key":      key,
			"label":    def.Label,
			"score":    out.Score,
		}, r.now()))
	}
	return out, nil
}

// Achievement is one ledger entry joined with its definition.
type Achievement struct {
	Key        string         `json:"key"`
	Label      string         `json:"label"`
	Bonus      int            `json:"bonus"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
	AchievedAt time.Time      `json:"achieved_at"`
}

// Journey summarizes a match's progress.
type Journey struct {
	MatchID      string        `json:"match_id"`
	InitialScore int           `json:"initial_score"`
	CurrentScore int           `json:"current_score"`
	Achieved     []Achievement `json:"achieved"`
	Next         *Definition   `json:"next,omitempty"`
}

// Progress returns the journey of an active match.
func (r *Recorder) Progress(ctx context.Context, matchID string) (Journey, error) {
	m, err := r.store.GetMatch(ctx, matchID)
	if err != nil {
		return Journey{}, fmt.Errorf("journey %s: %w", matchID, err)
	}
	if !m.Active() {
		return Journey{}, fmt.Errorf("journey %s: %w", matchID, errs.ErrNotFound)
	}
	entries, err := r.store.Ledger(ctx, matchID)
	if err != nil {
		return Journey{}, fmt.Errorf("journey %s: %w", matchID, err)
	}

	j := Journey{
		MatchID:      matchID,
		InitialScore: m.InitialScore,
		CurrentScore: m.CurrentScore,
		Achieved:     make([]Achievement, 0, len(entries)),
	}
	done := make(map[string]bool, len(entries))
	for _, e := range entries {
		done[e.Key] = true
		a := Achievement{Key: e.Key, Bonus: e.Bonus, Metadata: e.Metadata, AchievedAt: e.AchievedAt}
		if def, ok := r.catalog.Lookup(e.Key); ok {
			a.Label = def.Label
		}
		j.Achieved = append(j.Achieved, a)
	}
	if next, ok := r.catalog.Next(done); ok {
		j.Next = &next
	}
	return j, nil
}
