// Package service wires the match core to its stores and collaborators and
// exposes the operations the HTTP API depends on.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/okian/tandem/internal/adapters/mq"
	"github.com/okian/tandem/internal/adapters/repository"
	"github.com/okian/tandem/internal/domain/capability"
	"github.com/okian/tandem/internal/domain/errs"
	"github.com/okian/tandem/internal/domain/matching"
	"github.com/okian/tandem/internal/domain/milestone"
	"github.com/okian/tandem/internal/domain/model"
	"github.com/okian/tandem/internal/domain/notify"
	"github.com/okian/tandem/internal/domain/ranking"
	"github.com/okian/tandem/internal/domain/scoring"
	"github.com/okian/tandem/pkg/logger"
	"github.com/okian/tandem/pkg/metrics"
)

const (
	defaultPoolSize   = 100
	defaultResultSize = 10
)

// MatchOutcome is the result of RecordInterest.
type MatchOutcome struct {
	matching.Outcome
	Interest model.Interest `json:"interest"`
	// AlreadyRecorded is set when the interest existed before this call.
	AlreadyRecorded bool `json:"already_recorded"`
	// Remaining is the actor's allowance left today, -1 when unlimited.
	Remaining int `json:"remaining"`
}

// Stats summarizes the service for the stats endpoint.
type Stats struct {
	Started              bool              `json:"started"`
	Counts               repository.Counts `json:"counts"`
	PendingNotifications int               `json:"pending_notifications"`
	PoolSize             int               `json:"pool_size"`
	ResultSize           int               `json:"result_size"`
}

// Service implements the API dependencies for the match core.
type Service struct {
	mu      sync.Mutex
	started bool

	db        *gorm.DB
	interests *repository.InterestRepository
	matches   *repository.MatchRepository
	profiles  *repository.ProfileRepository

	detector *matching.Detector
	recorder *milestone.Recorder
	counter  *milestone.Counter
	engine   *ranking.Engine

	gate       capability.Gate
	notifier   notify.Notifier
	dispatcher *mq.Dispatcher

	// Configuration
	sink           notify.Sink
	seeder         scoring.Seeder
	catalog        *milestone.Catalog
	rankingOpts    []ranking.Option
	dispatcherOpts []mq.Option
	poolSize       int
	resultSize     int
	now            func() time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGate sets the capability gate consulted before every interest.
func WithGate(g capability.Gate) Option {
	return func(s *Service) {
		if g != nil {
			s.gate = g
		}
	}
}

// WithSink delivers notifications to sink through a background dispatcher.
func WithSink(sink notify.Sink, opts ...mq.Option) Option {
	return func(s *Service) {
		s.sink = sink
		s.dispatcherOpts = opts
	}
}

// WithNotifier hands notifications to n directly. It takes precedence over WithSink.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithSeeder sets how new matches get their initial score.
func WithSeeder(seeder scoring.Seeder) Option {
	return func(s *Service) {
		if seeder != nil {
			s.seeder = seeder
		}
	}
}

// WithCatalog sets the milestone catalog.
func WithCatalog(c *milestone.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithPoolSize sets how many candidates Top Picks scores.
func WithPoolSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.poolSize = n
		}
	}
}

// WithResultSize sets how many candidates Top Picks returns.
func WithResultSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.resultSize = n
		}
	}
}

// WithRankingOptions passes options to the ranking engine.
func WithRankingOptions(opts ...ranking.Option) Option {
	return func(s *Service) {
		s.rankingOpts = append(s.rankingOpts, opts...)
	}
}

// WithClock sets the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service over db. The schema must already be migrated.
func New(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:         db,
		gate:       capability.Unlimited{},
		seeder:     scoring.NewFlatSeeder(scoring.DefaultInitialScore),
		catalog:    milestone.Default(),
		poolSize:   defaultPoolSize,
		resultSize: defaultResultSize,
		now:        time.Now,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.notifier == nil {
		if s.sink != nil {
			dopts := append([]mq.Option{mq.WithLogger(s.logger.Named("dispatcher"))}, s.dispatcherOpts...)
			s.dispatcher = mq.NewDispatcher(s.sink, dopts...)
			s.notifier = s.dispatcher
		} else {
			s.notifier = notify.Discard{}
		}
	}

	s.interests = repository.NewInterestRepository(db)
	s.matches = repository.NewMatchRepository(db)
	s.profiles = repository.NewProfileRepository(db)

	s.detector = matching.NewDetector(s.matches,
		matching.WithSeeder(s.seeder),
		matching.WithNotifier(s.notifier),
		matching.WithLogger(s.logger.Named("detector")),
		matching.WithClock(s.now),
	)
	s.recorder = milestone.NewRecorder(repository.NewLedgerRepository(db), s.catalog,
		milestone.WithNotifier(s.notifier),
		milestone.WithLogger(s.logger.Named("milestones")),
		milestone.WithClock(s.now),
	)
	s.counter = milestone.NewCounter(s.recorder)

	ropts := append([]ranking.Option{
		ranking.WithClock(s.now),
		ranking.WithLogger(s.logger.Named("ranking")),
	}, s.rankingOpts...)
	s.engine = ranking.NewEngine(s.profiles, ropts...)
	return s
}

// Start launches background notification delivery.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.dispatcher != nil {
		s.dispatcher.Start(ctx)
	}
	s.started = true
	s.logger.Info(ctx, "match service started",
		logger.Int("pool_size", s.poolSize),
		logger.Int("result_size", s.resultSize))
	return nil
}

// Stop drains pending notifications.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	if s.dispatcher != nil {
		if err := s.dispatcher.Stop(ctx); err != nil {
			return fmt.Errorf("stop dispatcher: %w", err)
		}
	}
	s.logger.Info(ctx, "match service stopped")
	return nil
}

// RecordInterest stores actor's reaction to target and runs match detection.
// Repeating a call is safe: the stored event is re-read and detection re-run,
// so a request interrupted after the write still forms its match.
func (s *Service) RecordInterest(ctx context.Context, actorID, targetID string, disposition model.Disposition, priority bool) (MatchOutcome, error) {
	if actorID == "" || targetID == "" {
		return MatchOutcome{}, fmt.Errorf("record interest: missing user id: %w", errs.ErrInvalidInput)
	}
	if actorID == targetID {
		return MatchOutcome{}, fmt.Errorf("record interest: %w", errs.ErrSelfReference)
	}
	disposition, err := model.ParseDisposition(string(disposition))
	if err != nil {
		return MatchOutcome{}, fmt.Errorf("record interest: %w: %w", errs.ErrInvalidInput, err)
	}
	if priority && !disposition.Positive() {
		return MatchOutcome{}, fmt.Errorf("record interest: priority pass: %w", errs.ErrInvalidInput)
	}

	ok, err := s.profiles.Exists(ctx, targetID)
	if err != nil {
		return MatchOutcome{}, fmt.Errorf("record interest: %w", err)
	}
	if !ok {
		return MatchOutcome{}, fmt.Errorf("record interest: target %s: %w", targetID, errs.ErrNotFound)
	}

	action := capability.ActionStandardInterest
	if priority {
		action = capability.ActionPriorityInterest
	}
	decision, err := s.gate.CheckQuota(ctx, actorID, action)
	if err != nil {
		return MatchOutcome{}, fmt.Errorf("record interest: quota: %w", err)
	}
	if !decision.Allowed {
		metrics.RecordQuotaDenied(string(action))
		return MatchOutcome{}, &errs.QuotaError{Action: string(action), Remaining: decision.Remaining}
	}

	out := MatchOutcome{Remaining: decision.Remaining}
	in := model.Interest{
		ActorID:     actorID,
		TargetID:    targetID,
		Disposition: disposition,
		Priority:    priority,
		CreatedAt:   s.now().UTC(),
	}
	switch err := s.interests.Record(ctx, &in); {
	case err == nil:
		metrics.RecordInterest(string(in.Disposition), in.Priority)
	case errors.Is(err, errs.ErrConflict):
		metrics.RecordInterestConflict()
		stored, gerr := s.interests.Get(ctx, actorID, targetID)
		if gerr != nil {
			return MatchOutcome{}, fmt.Errorf("record interest: reread: %w", gerr)
		}
		in = stored
		out.AlreadyRecorded = true
		s.logger.Debug(ctx, "interest already recorded",
			logger.String("actor_id", actorID),
			logger.String("target_id", targetID),
			logger.String("disposition", string(in.Disposition)))
	default:
		return MatchOutcome{}, fmt.Errorf("record interest: %w", err)
	}
	out.Interest = in

	outcome, err := s.detector.OnInterestRecorded(ctx, in.ActorID, in.TargetID, in.Disposition)
	if err != nil {
		return MatchOutcome{}, fmt.Errorf("record interest: %w", err)
	}
	out.Outcome = outcome

	if in.Priority && !out.AlreadyRecorded && outcome.Kind == matching.NoMatch {
		s.notifier.Notify(ctx, model.NewNotification(model.NotificationPriorityInterest, actorID, targetID,
			map[string]any{"actor_id": actorID}, s.now()))
	}
	return out, nil
}

// RecordMilestone applies a catalog milestone to a match once.
func (s *Service) RecordMilestone(ctx context.Context, matchID, key string, metadata map[string]any) (milestone.Outcome, error) {
	return s.recorder.RecordMilestone(ctx, matchID, key, metadata)
}

// RecordProgress reports an activity count for a match and applies every
// threshold milestone it reaches.
func (s *Service) RecordProgress(ctx context.Context, matchID string, metric milestone.Metric, count int) ([]milestone.Outcome, error) {
	return s.counter.Observe(ctx, matchID, metric, count)
}

// JourneyProgress returns the score and milestones of an active match.
func (s *Service) JourneyProgress(ctx context.Context, matchID string) (milestone.Journey, error) {
	return s.recorder.Progress(ctx, matchID)
}

// TopPicks ranks the configured candidate pool for userID.
func (s *Service) TopPicks(ctx context.Context, userID string) (ranking.Result, error) {
	return s.engine.Rank(ctx, userID, s.poolSize, s.resultSize)
}

// GetMatch returns an active match that userID takes part in. Anyone else
// gets errs.ErrNotFound.
func (s *Service) GetMatch(ctx context.Context, userID, matchID string) (model.Match, error) {
	m, err := s.matches.GetMatch(ctx, matchID)
	if err != nil {
		return model.Match{}, fmt.Errorf("get match %s: %w", matchID, err)
	}
	if !m.IsParticipant(userID) || !m.Active() {
		return model.Match{}, fmt.Errorf("get match %s: %w", matchID, errs.ErrNotFound)
	}
	return m, nil
}

// ListMatches returns userID's active matches, newest first.
func (s *Service) ListMatches(ctx context.Context, userID string) ([]model.Match, error) {
	out, err := s.matches.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list matches %s: %w", userID, err)
	}
	return out, nil
}

// Unmatch dissolves a match on behalf of one participant. The pair is never
// matched again and further milestones are rejected.
func (s *Service) Unmatch(ctx context.Context, userID, matchID string) error {
	m, err := s.matches.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("unmatch %s: %w", matchID, err)
	}
	if !m.IsParticipant(userID) {
		return fmt.Errorf("unmatch %s: %w", matchID, errs.ErrNotFound)
	}
	if !m.Active() {
		return nil
	}
	if err := s.matches.Unmatch(ctx, matchID, s.now()); err != nil {
		return fmt.Errorf("unmatch %s: %w", matchID, err)
	}
	metrics.RecordMatchDissolved()
	s.logger.Info(ctx, "match dissolved",
		logger.String("match_id", matchID),
		logger.String("by", userID))
	return nil
}

// PutProfile creates or replaces a profile.
func (s *Service) PutProfile(ctx context.Context, p *model.Profile) error {
	if p.ID == "" {
		return fmt.Errorf("put profile: missing id: %w", errs.ErrInvalidInput)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now().UTC()
	}
	return s.profiles.Put(ctx, p)
}

// Catalog returns the milestone catalog in use.
func (s *Service) Catalog() *milestone.Catalog { return s.catalog }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	counts, err := repository.Count(ctx, s.db)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	st := Stats{
		Started:    started,
		Counts:     counts,
		PoolSize:   s.poolSize,
		ResultSize: s.resultSize,
	}
	if s.dispatcher != nil {
		st.PendingNotifications = s.dispatcher.Pending()
	}
	return st, nil
}
