// Package racecheck drives concurrent reciprocal interests through the
// service and verifies that every pair ends up with exactly one match.
package racecheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	service "github.com/okian/tandem/internal/app"
	"github.com/okian/tandem/internal/domain/matching"
	"github.com/okian/tandem/internal/domain/model"
	"github.com/okian/tandem/pkg/logger"
)

const directoryPermission = 0750

// ErrViolation is returned by Run when at least one pair broke the
// single-match guarantee.
var ErrViolation = errors.New("racecheck: match uniqueness violated")

// Service is the part of the application the check exercises.
type Service interface {
	PutProfile(ctx context.Context, p *model.Profile) error
	RecordInterest(ctx context.Context, actorID, targetID string, disposition model.Disposition, priority bool) (service.MatchOutcome, error)
	ListMatches(ctx context.Context, userID string) ([]model.Match, error)
}

// Config controls the shape of a run.
type Config struct {
	Pairs      int
	PerSide    int
	Prefix     string
	OutputFile string
	Verbose    bool
	// Logger defaults to a discarding logger.
	Logger logger.Logger
}

// Report summarizes a run.
type Report struct {
	Pairs      int           `json:"pairs"`
	Requests   int           `json:"requests"`
	Created    int           `json:"created"`
	Existing   int           `json:"existing"`
	Failures   int           `json:"failures"`
	Violations []string      `json:"violations,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// OK reports whether the run found no violations and no failed requests.
func (r Report) OK() bool { return len(r.Violations) == 0 && r.Failures == 0 }

type pairResult struct {
	created  int
	existing int
	failures int
}

// Run seeds cfg.Pairs profile pairs, fires cfg.PerSide likes from each side
// of every pair at the same time, then checks the stored matches.
func Run(ctx context.Context, svc Service, cfg Config) (Report, error) {
	if cfg.Pairs <= 0 || cfg.PerSide <= 0 {
		return Report{}, fmt.Errorf("racecheck: pairs and per-side must be positive (got %d, %d)", cfg.Pairs, cfg.PerSide)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = fmt.Sprintf("rc-%d", time.Now().UnixNano())
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	log.Info(ctx, "starting race check",
		logger.Int("pairs", cfg.Pairs),
		logger.Int("per_side", cfg.PerSide),
		logger.String("prefix", cfg.Prefix))

	start := time.Now()
	if err := seed(ctx, svc, cfg); err != nil {
		return Report{}, err
	}

	results := make([]pairResult, cfg.Pairs)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := range cfg.Pairs {
		left, right := pairIDs(cfg.Prefix, i)
		for range cfg.PerSide {
			for _, dir := range [][2]string{{left, right}, {right, left}} {
				wg.Add(1)
				go func() {
					defer wg.Done()
					out, err := svc.RecordInterest(ctx, dir[0], dir[1], model.DispositionLike, false)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err != nil:
						results[i].failures++
						if cfg.Verbose {
							log.Warn(ctx, "interest failed", logger.String("actor", dir[0]), logger.Error(err))
						}
					case out.Kind == matching.MatchCreated:
						results[i].created++
					case out.Kind == matching.MatchAlreadyExists:
						results[i].existing++
					}
				}()
			}
		}
	}
	wg.Wait()

	report := Report{Pairs: cfg.Pairs, Requests: cfg.Pairs * cfg.PerSide * 2}
	for i, res := range results {
		report.Created += res.created
		report.Existing += res.existing
		report.Failures += res.failures
		left, right := pairIDs(cfg.Prefix, i)
		if res.created != 1 {
			report.Violations = append(report.Violations,
				fmt.Sprintf("pair %s/%s: %d creations", left, right, res.created))
		}
		matches, err := svc.ListMatches(ctx, left)
		if err != nil {
			return report, fmt.Errorf("list matches for %s: %w", left, err)
		}
		if n := countWith(matches, right); n != 1 {
			report.Violations = append(report.Violations,
				fmt.Sprintf("pair %s/%s: %d active matches", left, right, n))
		}
	}
	report.Duration = time.Since(start)

	logReport(ctx, log, report)
	if cfg.OutputFile != "" {
		if err := saveReport(cfg.OutputFile, report); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}
	if !report.OK() {
		return report, ErrViolation
	}
	return report, nil
}

func seed(ctx context.Context, svc Service, cfg Config) error {
	now := time.Now().UTC()
	for i := range cfg.Pairs {
		left, right := pairIDs(cfg.Prefix, i)
		for _, p := range []model.Profile{
			{ID: left, Name: left, Gender: model.GenderWoman, InterestedIn: model.SeekingMen, PhotoCount: 1, UpdatedAt: now},
			{ID: right, Name: right, Gender: model.GenderMan, InterestedIn: model.SeekingWomen, PhotoCount: 1, UpdatedAt: now},
		} {
			if err := svc.PutProfile(ctx, &p); err != nil {
				return fmt.Errorf("seed profile %s: %w", p.ID, err)
			}
		}
	}
	return nil
}

func pairIDs(prefix string, i int) (string, string) {
	return fmt.Sprintf("%s-%04d-l", prefix, i), fmt.Sprintf("%s-%04d-r", prefix, i)
}

func countWith(matches []model.Match, other string) int {
	n := 0
	for _, m := range matches {
		if m.IsParticipant(other) {
			n++
		}
	}
	return n
}

func logReport(ctx context.Context, log logger.Logger, r Report) {
	var perSecond float64
	if r.Duration > 0 {
		perSecond = float64(r.Requests) / r.Duration.Seconds()
	}
	log.Info(ctx, "race check finished",
		logger.Int("pairs", r.Pairs),
		logger.Int("requests", r.Requests),
		logger.Int("created", r.Created),
		logger.Int("existing", r.Existing),
		logger.Int("failures", r.Failures),
		logger.Int("violations", len(r.Violations)),
		logger.Duration("duration", r.Duration),
		logger.Float64("requests_per_second", perSecond))
	for _, v := range r.Violations {
		log.Error(ctx, "violation", logger.String("detail", v))
	}
}

func saveReport(filename string, r Report) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(filename, append(data, '\n'), 0o600)
}
