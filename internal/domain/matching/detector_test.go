package matching_test

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/okian/tandem/internal/domain/errs"
	"github.com/okian/tandem/internal/domain/matching"
	"github.com/okian/tandem/internal/domain/model"
	"github.com/okian/tandem/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

type pair struct{ a, b string }

type memStore struct {
	mu        sync.Mutex
	interests map[pair]model.Disposition
	matches   map[pair]model.Match
	profiles  map[string]model.Profile
	txCalls   int
}

func newMemStore() *memStore {
	return &memStore{
		interests: map[pair]model.Disposition{},
		matches:   map[pair]model.Match{},
		profiles:  map[string]model.Profile{},
	}
}

func (s *memStore) like(actor, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interests[pair{actor, target}] = model.DispositionLike
}

func (s *memStore) pass(actor, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interests[pair{actor, target}] = model.DispositionPass
}

func (s *memStore) matchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches)
}

type memTx struct {
	s       *memStore
	matches map[pair]model.Match
}

func (s *memStore) WithinTx(_ context.Context, fn func(tx matching.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCalls++
	tx := &memTx{s: s, matches: maps.Clone(s.matches)}
	if err := fn(tx); err != nil {
		return err
	}
	s.matches = tx.matches
	return nil
}

func (s *memStore) MatchByPair(_ context.Context, low, high string) (model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[pair{low, high}]
	if !ok {
		return model.Match{}, errs.ErrNotFound
	}
	return m, nil
}

func (t *memTx) Profile(_ context.Context, id string) (model.Profile, error) {
	p, ok := t.s.profiles[id]
	if !ok {
		return model.Profile{}, errs.ErrNotFound
	}
	return p, nil
}

func (t *memTx) HasPositiveInterest(_ context.Context, actor, target string) (bool, error) {
	return t.s.interests[pair{actor, target}].Positive(), nil
}

func (t *memTx) CreateMatch(_ context.Context, m *model.Match) error {
	k := pair{m.UserLow, m.UserHigh}
	if _, ok := t.matches[k]; ok {
		return errs.ErrConflict
	}
	t.matches[k] = *m
	return nil
}

type failingSeeder struct{}

func (failingSeeder) Seed(context.Context, scoring.ProfileReader, string, string) (int, error) {
	return 0, errors.New("model offline")
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note model.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func TestDetector(t *testing.T) {
	ctx := context.Background()

	Convey("Given a detector", t, func() {
		store := newMemStore()
		notes := &recordingNotifier{}
		d := matching.NewDetector(store, matching.WithNotifier(notes))

		Convey("When the actor passes", func() {
			out, err := d.OnInterestRecorded(ctx, "alice", "bob", model.DispositionPass)

			Convey("Then it should report NoMatch without touching storage", func() {
				So(err, ShouldBeNil)
				So(out.Kind, ShouldEqual, matching.NoMatch)
				So(store.txCalls, ShouldEqual, 0)
			})
		})

		Convey("When the target has not liked the actor back", func() {
			store.like("alice", "bob")
			out, err := d.OnInterestRecorded(ctx, "alice", "bob", model.DispositionLike)

			Convey("Then no match should be created", func() {
				So(err, ShouldBeNil)
				So(out.Kind, ShouldEqual, matching.NoMatch)
				So(store.matchCount(), ShouldEqual, 0)
			})
		})

		Convey("When the target passed on the actor", func() {
			store.pass("bob", "alice")
			store.like("alice", "bob")
			out, _ := d.OnInterestRecorded(ctx, "alice", "bob", model.DispositionLike)

			Convey("Then a one-sided like should never match", func() {
				So(out.Kind, ShouldEqual, matching.NoMatch)
				So(store.matchCount(), ShouldEqual, 0)
			})
		})

		Convey("When the like is reciprocated", func() {
			store.like("bob", "alice")
			store.like("alice", "bob")
			out, err := d.OnInterestRecorded(ctx, "bob", "alice", model.DispositionLike)

			Convey("Then a match should be created in canonical order at the default score", func() {
				So(err, ShouldBeNil)
				So(out.Kind, ShouldEqual, matching.MatchCreated)
				So(out.Match.UserLow, ShouldEqual, "alice")
				So(out.Match.UserHigh, ShouldEqual, "bob")
				So(out.Match.InitialScore, ShouldEqual, 50)
				So(out.Match.CurrentScore, ShouldEqual, 50)
			})

			Convey("Then both participants should be told", func() {
				So(len(notes.sent), ShouldEqual, 2)
				So(notes.sent[0].RecipientID, ShouldEqual, "alice")
				So(notes.sent[1].RecipientID, ShouldEqual, "bob")
				So(notes.sent[0].Payload["with"], ShouldEqual, "bob")
			})

			Convey("And detection runs again for the other side", func() {
				again, err := d.OnInterestRecorded(ctx, "alice", "bob", model.DispositionLike)

				Convey("Then the existing match should be returned", func() {
					So(err, ShouldBeNil)
					So(again.Kind, ShouldEqual, matching.MatchAlreadyExists)
					So(again.Match.ID, ShouldEqual, out.Match.ID)
					So(store.matchCount(), ShouldEqual, 1)
					So(len(notes.sent), ShouldEqual, 2)
				})
			})
		})

		Convey("When the existing match was dissolved", func() {
			store.like("bob", "alice")
			store.like("alice", "bob")
			gone := time.Now()
			store.matches[pair{"alice", "bob"}] = model.Match{ID: "m-old", UserLow: "alice", UserHigh: "bob", UnmatchedAt: &gone}
			out, err := d.OnInterestRecorded(ctx, "alice", "bob", model.DispositionLike)

			Convey("Then the pair should not be re-formed", func() {
				So(err, ShouldBeNil)
				So(out.Kind, ShouldEqual, matching.NoMatch)
			})
		})

		Convey("When actor and target are the same", func() {
			_, err := d.OnInterestRecorded(ctx, "alice", "alice", model.DispositionLike)

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, errs.ErrSelfReference), ShouldBeTrue)
			})
		})
	})

	Convey("Given seeders", t, func() {
		store := newMemStore()
		store.like("bob", "alice")
		store.like("alice", "bob")
		store.profiles["alice"] = model.Profile{ID: "alice", Interests: "jazz,hiking"}
		store.profiles["bob"] = model.Profile{ID: "bob", Interests: "jazz,hiking"}

		Convey("When the similarity seeder sees identical tags", func() {
			d := matching.NewDetector(store, matching.WithSeeder(scoring.NewSimilaritySeeder()))
			out, err := d.OnInterestRecorded(ctx, "alice", "bob", model.DispositionLike)

			Convey("Then the match should start above the default", func() {
				So(err, ShouldBeNil)
				So(out.Match.InitialScore, ShouldEqual, 70)
			})
		})

		Convey("When the seeder fails", func() {
			d := matching.NewDetector(store, matching.WithSeeder(failingSeeder{}))
			out, err := d.OnInterestRecorded(ctx, "alice", "bob", model.DispositionLike)

			Convey("Then the match should fall back to the default score", func() {
				So(err, ShouldBeNil)
				So(out.Kind, ShouldEqual, matching.MatchCreated)
				So(out.Match.InitialScore, ShouldEqual, scoring.DefaultInitialScore)
			})
		})
	})

	Convey("Given many concurrent reciprocal detections", t, func() {
		store := newMemStore()
		d := matching.NewDetector(store)
		const pairs = 10
		for i := range pairs {
			a, b := fmt.Sprintf("u%02d-a", i), fmt.Sprintf("u%02d-b", i)
			store.like(a, b)
			store.like(b, a)
		}

		Convey("When both sides of every pair detect at once, repeatedly", func() {
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				created = map[string]int{}
			)
			for i := range pairs {
				a, b := fmt.Sprintf("u%02d-a", i), fmt.Sprintf("u%02d-b", i)
				for r := range 8 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						actor, target := a, b
						if r%2 == 1 {
							actor, target = b, a
						}
						out, err := d.OnInterestRecorded(ctx, actor, target, model.DispositionLike)
						if err == nil && out.Kind == matching.MatchCreated {
							mu.Lock()
							created[a]++
							mu.Unlock()
						}
					}()
				}
			}
			wg.Wait()

			Convey("Then each pair should have exactly one match", func() {
				So(store.matchCount(), ShouldEqual, pairs)
				for _, n := range created {
					So(n, ShouldEqual, 1)
				}
				So(len(created), ShouldEqual, pairs)
			})
		})
	})
}
