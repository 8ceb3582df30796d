package milestone_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/okian/tandem/internal/domain/errs"
	"github.com/okian/tandem/internal/domain/milestone"
	"github.com/okian/tandem/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func activeMatch(id string, score int) model.Match {
	return model.Match{ID: id, UserLow: "alice", UserHigh: "bob", InitialScore: score, CurrentScore: score}
}

func TestCatalog(t *testing.T) {
	Convey("Given the default catalog", t, func() {
		c := milestone.Default()

		Convey("Then its bonuses should exceed the default headroom", func() {
			sum := 0
			for _, d := range c.All() {
				sum += d.Bonus
			}
			So(sum, ShouldEqual, 51)
		})

		Convey("Then lookups and thresholds should resolve", func() {
			d, ok := c.Lookup("messages_10")
			So(ok, ShouldBeTrue)
			So(d.Bonus, ShouldEqual, 3)
			_, ok = c.Lookup("nope")
			So(ok, ShouldBeFalse)

			keys := func(defs []milestone.Definition) []string {
				out := []string{}
				for _, d := range defs {
					out = append(out, d.Key)
				}
				return out
			}
			So(keys(c.Reached(milestone.MetricMessages, 12)), ShouldResemble, []string{"first_message", "messages_10"})
			So(keys(c.Reached(milestone.MetricDaysActive, 30)), ShouldResemble, []string{"week_together", "month_together"})
			So(keys(c.Reached(milestone.MetricMessages, 0)), ShouldBeEmpty)
		})

		Convey("Then Next should follow catalog order", func() {
			next, ok := c.Next(map[string]bool{"first_message": true, "messages_10": true})
			So(ok, ShouldBeTrue)
			So(next.Key, ShouldEqual, "first_voice_note")
		})
	})

	Convey("Given invalid definitions", t, func() {
		Convey("Then NewCatalog should reject them", func() {
			_, err := milestone.NewCatalog(milestone.Definition{Key: "", Bonus: 1})
			So(errors.Is(err, errs.ErrInvalidInput), ShouldBeTrue)
			_, err = milestone.NewCatalog(milestone.Definition{Key: "a", Bonus: 0})
			So(err, ShouldNotBeNil)
			_, err = milestone.NewCatalog(milestone.Definition{Key: "a", Bonus: 1, Metric: milestone.MetricMessages})
			So(err, ShouldNotBeNil)
			_, err = milestone.NewCatalog(milestone.Definition{Key: "a", Bonus: 1}, milestone.Definition{Key: "a", Bonus: 2})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRecordMilestone(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given a match seeded at 50", t, func() {
		store := newMemStore(activeMatch("m-1", 50))
		notes := &recordingNotifier{}
		r := milestone.NewRecorder(store, milestone.Default(),
			milestone.WithNotifier(notes),
			milestone.WithClock(func() time.Time { return fixed }),
		)

		Convey("When first_message then messages_10 then first_message again are recorded", func() {
			first, err1 := r.RecordMilestone(ctx, "m-1", "first_message", map[string]any{"by": "alice"})
			second, err2 := r.RecordMilestone(ctx, "m-1", "messages_10", nil)
			third, err3 := r.RecordMilestone(ctx, "m-1", "first_message", nil)

			Convey("Then the score should go 50, 52, 55, 55", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(err3, ShouldBeNil)
				So(first.Kind, ShouldEqual, milestone.Applied)
				So(first.Score, ShouldEqual, 52)
				So(second.Kind, ShouldEqual, milestone.Applied)
				So(second.Score, ShouldEqual, 55)
				So(third.Kind, ShouldEqual, milestone.AlreadyApplied)
				So(third.Score, ShouldEqual, 55)
				So(store.score("m-1"), ShouldEqual, 55)
			})

			Convey("Then the ledger should hold each key once", func() {
				ledger, _ := store.Ledger(ctx, "m-1")
				So(len(ledger), ShouldEqual, 2)
				So(string(ledger[0].Metadata), ShouldEqual, `{"by":"alice"}`)
				So(ledger[0].AchievedAt, ShouldEqual, fixed)
			})

			Convey("Then both participants should be notified per applied milestone", func() {
				So(notes.count(), ShouldEqual, 4)
				So(notes.sent[0].Kind, ShouldEqual, model.NotificationMilestoneReached)
			})

			Convey("Then the journey should list achievements and the next milestone", func() {
				j, err := r.Progress(ctx, "m-1")
				So(err, ShouldBeNil)
				So(j.InitialScore, ShouldEqual, 50)
				So(j.CurrentScore, ShouldEqual, 55)
				So(len(j.Achieved), ShouldEqual, 2)
				So(j.Achieved[0].Label, ShouldEqual, "First message")
				So(j.Next, ShouldNotBeNil)
				So(j.Next.Key, ShouldEqual, "first_voice_note")
			})
		})

		Convey("When the key is not in the catalog", func() {
			_, err := r.RecordMilestone(ctx, "m-1", "first_kiss", nil)

			Convey("Then it should be an input error and change nothing", func() {
				So(errors.Is(err, errs.ErrUnknownMilestone), ShouldBeTrue)
				So(store.score("m-1"), ShouldEqual, 50)
			})
		})

		Convey("When the match does not exist", func() {
			_, err := r.RecordMilestone(ctx, "m-404", "first_message", nil)

			Convey("Then it should be not found", func() {
				So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the match has been dissolved", func() {
			m := activeMatch("m-2", 50)
			gone := fixed
			m.UnmatchedAt = &gone
			store.matches["m-2"] = m
			_, err := r.RecordMilestone(ctx, "m-2", "first_message", nil)
			_, jerr := r.Progress(ctx, "m-2")

			Convey("Then milestones and journey should be not found", func() {
				So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
				So(errors.Is(jerr, errs.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the score update fails inside the transaction", func() {
			store.failSetScore = true
			_, err := r.RecordMilestone(ctx, "m-1", "first_message", nil)

			Convey("Then neither the ledger nor the score should change", func() {
				So(errors.Is(err, errs.ErrStorage), ShouldBeTrue)
				ledger, _ := store.Ledger(ctx, "m-1")
				So(ledger, ShouldBeEmpty)
				So(store.score("m-1"), ShouldEqual, 50)
				So(notes.count(), ShouldEqual, 0)
			})
		})

		Convey("When the ledger insert loses a uniqueness race", func() {
			store.conflictOnAdd = true
			out, err := r.RecordMilestone(ctx, "m-1", "first_message", nil)

			Convey("Then the outcome should be AlreadyApplied with the stored score", func() {
				So(err, ShouldBeNil)
				So(out.Kind, ShouldEqual, milestone.AlreadyApplied)
				So(out.Score, ShouldEqual, 50)
			})
		})

		Convey("When many goroutines record the same milestone", func() {
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				applied int
			)
			for range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					out, err := r.RecordMilestone(ctx, "m-1", "date_confirmed", nil)
					if err == nil && out.Kind == milestone.Applied {
						mu.Lock()
						applied++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one application should count", func() {
				So(applied, ShouldEqual, 1)
				So(store.score("m-1"), ShouldEqual, 58)
			})
		})
	})

	Convey("Given arbitrary orders with duplication", t, func() {
		keys := []string{}
		for _, d := range milestone.Default().All() {
			keys = append(keys, d.Key, d.Key)
		}

		for _, initial := range []int{20, 50} {
			Convey(fmt.Sprintf("When every milestone is applied twice in random order from %d", initial), func() {
				store := newMemStore(activeMatch("m", initial))
				r := milestone.NewRecorder(store, milestone.Default())
				rng := rand.New(rand.NewPCG(uint64(initial), 7))
				shuffled := append([]string(nil), keys...)
				rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

				prev := initial
				monotonic := true
				for _, k := range shuffled {
					out, err := r.RecordMilestone(ctx, "m", k, nil)
					So(err, ShouldBeNil)
					if out.Score < prev || out.Score > 100 {
						monotonic = false
					}
					prev = out.Score
				}

				Convey("Then the score should be non-decreasing and equal the capped sum", func() {
					So(monotonic, ShouldBeTrue)
					So(store.score("m"), ShouldEqual, min(100, initial+51))
				})
			})
		}
	})
}

func TestCounter(t *testing.T) {
	ctx := context.Background()

	Convey("Given a counter over a fresh match", t, func() {
		store := newMemStore(activeMatch("m-1", 50))
		c := milestone.NewCounter(milestone.NewRecorder(store, milestone.Default()))

		Convey("When 12 messages are observed twice", func() {
			first, err1 := c.Observe(ctx, "m-1", milestone.MetricMessages, 12)
			again, err2 := c.Observe(ctx, "m-1", milestone.MetricMessages, 12)

			Convey("Then the reached thresholds should apply once", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(len(first), ShouldEqual, 2)
				So(first[1].Score, ShouldEqual, 55)
				So(again[0].Kind, ShouldEqual, milestone.AlreadyApplied)
				So(again[1].Kind, ShouldEqual, milestone.AlreadyApplied)
				So(store.score("m-1"), ShouldEqual, 55)
			})
		})

		Convey("When the metric or count is invalid", func() {
			_, err1 := c.Observe(ctx, "m-1", milestone.Metric("likes"), 3)
			_, err2 := c.Observe(ctx, "m-1", milestone.MetricMessages, -1)

			Convey("Then it should be an input error", func() {
				So(errors.Is(err1, errs.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(err2, errs.ErrInvalidInput), ShouldBeTrue)
			})
		})
	})
}
