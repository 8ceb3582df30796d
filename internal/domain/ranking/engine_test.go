package ranking_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/okian/tandem/internal/domain/errs"
	"github.com/okian/tandem/internal/domain/model"
	"github.com/okian/tandem/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func coord(v float64) *float64 { return &v }

type fixedPool struct {
	actor model.Profile
	pool  []model.Profile
	calls int
}

func (f *fixedPool) Profile(_ context.Context, id string) (model.Profile, error) {
	if id != f.actor.ID {
		return model.Profile{}, errs.ErrNotFound
	}
	return f.actor, nil
}

func (f *fixedPool) CandidatePool(_ context.Context, _ model.Profile, limit int) ([]model.Profile, error) {
	f.calls++
	if len(f.pool) > limit {
		return f.pool[:limit], nil
	}
	return f.pool, nil
}

func berlinFixture() *fixedPool {
	twin := model.Profile{
		ID: "noor", Name: "Noor", Bio: strings.Repeat("b", 20), City: "Berlin",
		PhotoCount: 3, Interests: "climbing,film,tea", HasVoiceIntro: true,
		UpdatedAt: now.Add(-30 * time.Minute),
	}
	quinn := twin
	quinn.ID, quinn.Name = "quinn", "Quinn"
	return &fixedPool{
		actor: model.Profile{ID: "actor", Name: "Ada", Latitude: coord(52.52), Longitude: coord(13.405)},
		pool: []model.Profile{
			{
				ID: "mila", Name: "Mila", Bio: strings.Repeat("m", 80), Verified: true, PhotoCount: 5,
				Latitude: coord(52.40), Longitude: coord(13.06), UpdatedAt: now.Add(-2 * time.Hour),
			},
			twin,
			{
				ID: "ola", Name: "Ola", Verified: true, PhotoCount: 1,
				Latitude: coord(52.52), Longitude: coord(13.405), UpdatedAt: now.Add(-10 * 24 * time.Hour),
			},
			{
				ID: "pia", Name: "Pia", Bio: strings.Repeat("p", 60), PhotoCount: 2,
				Latitude: coord(53.55), Longitude: coord(10.0), UpdatedAt: now.Add(-40 * 24 * time.Hour),
			},
			quinn,
			{
				ID: "rae", Name: "Rae", Bio: strings.Repeat("r", 100), Verified: true, PhotoCount: 6,
				Latitude: coord(52.52), Longitude: coord(13.45), Interests: "art,books,cats,dance",
				HasVoiceIntro: true, UpdatedAt: now.Add(-5 * time.Hour),
			},
		},
	}
}

// verifiedTwinFixture pairs a verified candidate with an otherwise identical
// unverified one, seen by an actor without coordinates.
func verifiedTwinFixture() *fixedPool {
	b := model.Profile{
		ID: "b", Name: "B", Bio: strings.Repeat("x", 80), Verified: true, PhotoCount: 5,
		Latitude: coord(48.1), Longitude: coord(11.6), UpdatedAt: now.Add(-2 * time.Hour),
	}
	twin := b
	twin.ID, twin.Verified = "b-twin", false
	return &fixedPool{actor: model.Profile{ID: "a", Name: "A"}, pool: []model.Profile{twin, b}}
}

func render(res ranking.Result) []byte {
	var b strings.Builder
	b.WriteString("rank\tid\tcomposite\tcompleteness\trecency\tproximity\tverified_bonus\n")
	for i, c := range res.Candidates {
		fmt.Fprintf(&b, "%d\t%s\t%.2f\t%.0f\t%.0f\t%.0f\t%.0f\n",
			i+1, c.Profile.ID, c.Score.Composite, c.Score.Completeness, c.Score.Recency, c.Score.Proximity, c.Score.VerifiedBonus)
	}
	fmt.Fprintf(&b, "pool=%d refresh_at=%s refresh_in=%s\n", res.PoolSize, res.RefreshAt.Format(time.RFC3339), res.RefreshIn)
	return []byte(b.String())
}

func TestTopPicksGolden(t *testing.T) {
	e := ranking.NewEngine(berlinFixture(),
		ranking.WithClock(func() time.Time { return now }),
		ranking.WithLocation(time.UTC),
	)
	res, err := e.Rank(context.Background(), "actor", 100, 5)
	if err != nil {
		t.Fatal(err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "top_picks", render(res))
}

func TestVerifiedTwinGolden(t *testing.T) {
	e := ranking.NewEngine(verifiedTwinFixture(),
		ranking.WithClock(func() time.Time { return now }),
		ranking.WithLocation(time.UTC),
	)
	res, err := e.Rank(context.Background(), "a", 100, 10)
	if err != nil {
		t.Fatal(err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "verified_twin", render(res))
}

func TestAntipodalScore(t *testing.T) {
	Convey("Given an actor and a candidate on opposite sides of the globe", t, func() {
		e := ranking.NewEngine(&fixedPool{})
		actor := model.Profile{ID: "a", Latitude: coord(10), Longitude: coord(20)}
		candidate := model.Profile{ID: "c", Name: "C", Latitude: coord(-10), Longitude: coord(-160), UpdatedAt: now}

		Convey("When scoring the candidate", func() {
			s := e.Score(actor, candidate, now)

			Convey("Then the distance should be half the circumference, not NaN", func() {
				So(s.DistanceKm, ShouldNotBeNil)
				So(math.IsNaN(*s.DistanceKm), ShouldBeFalse)
				So(*s.DistanceKm, ShouldAlmostEqual, 20015.09, 0.01)
				So(s.Proximity, ShouldEqual, 15)
			})

			Convey("Then a result carrying it should encode as JSON", func() {
				_, err := json.Marshal(ranking.Result{Candidates: []ranking.Candidate{{Profile: candidate, Score: s}}})
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestRank(t *testing.T) {
	ctx := context.Background()

	Convey("Given the Berlin fixture", t, func() {
		fx := berlinFixture()
		e := ranking.NewEngine(fx,
			ranking.WithClock(func() time.Time { return now }),
			ranking.WithLocation(time.UTC),
		)

		Convey("When ranking twice without data changes", func() {
			first, err1 := e.Rank(ctx, "actor", 100, 10)
			second, err2 := e.Rank(ctx, "actor", 100, 10)

			Convey("Then the output should be identical", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(second, ShouldResemble, first)
			})

			Convey("Then equal composites should keep pool order", func() {
				So(first.Candidates[2].Profile.ID, ShouldEqual, "noor")
				So(first.Candidates[3].Profile.ID, ShouldEqual, "quinn")
			})

			Convey("Then a verified, complete candidate may exceed 100", func() {
				So(first.Candidates[0].Profile.ID, ShouldEqual, "rae")
				So(first.Candidates[0].Score.Composite, ShouldEqual, 104)
			})

			Convey("Then distances should be explained when both sides have coordinates", func() {
				So(first.Candidates[0].Score.DistanceKm, ShouldNotBeNil)
				So(first.Candidates[2].Score.DistanceKm, ShouldBeNil)
			})
		})

		Convey("When the pool is smaller than the stored population", func() {
			res, err := e.Rank(ctx, "actor", 2, 10)

			Convey("Then only the first pool entries should be scored", func() {
				So(err, ShouldBeNil)
				So(res.PoolSize, ShouldEqual, 2)
				So(len(res.Candidates), ShouldEqual, 2)
				So(res.Candidates[0].Profile.ID, ShouldEqual, "mila")
			})
		})

		Convey("When the actor is unknown", func() {
			_, err := e.Rank(ctx, "ghost", 100, 10)

			Convey("Then it should be not found", func() {
				So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
				So(fx.calls, ShouldEqual, 0)
			})
		})

		Convey("When sizes are not positive", func() {
			_, err := e.Rank(ctx, "actor", 0, 10)

			Convey("Then it should be an input error", func() {
				So(errors.Is(err, errs.ErrInvalidInput), ShouldBeTrue)
			})
		})
	})

	Convey("Given an actor without coordinates and a verified candidate", t, func() {
		fx := verifiedTwinFixture()

		Convey("When missing coordinates count as zero distance", func() {
			e := ranking.NewEngine(fx, ranking.WithClock(func() time.Time { return now }))
			res, err := e.Rank(ctx, "a", 100, 10)

			Convey("Then the verified candidate should score 97.2 and rank first", func() {
				So(err, ShouldBeNil)
				So(res.Candidates[0].Profile.ID, ShouldEqual, "b")
				So(res.Candidates[0].Score.Completeness, ShouldEqual, 83)
				So(res.Candidates[0].Score.Recency, ShouldEqual, 90)
				So(res.Candidates[0].Score.Proximity, ShouldEqual, 90)
				So(res.Candidates[0].Score.Composite, ShouldEqual, 97.2)
				So(res.Candidates[1].Profile.ID, ShouldEqual, "b-twin")
			})

			Convey("Then the unverified twin should lose both the bonus and the completeness points", func() {
				So(res.Candidates[1].Score.Completeness, ShouldEqual, 63)
				So(res.Candidates[1].Score.VerifiedBonus, ShouldEqual, 0)
				So(res.Candidates[1].Score.Composite, ShouldEqual, 79.2)
			})
		})

		Convey("When missing coordinates count as farthest", func() {
			e := ranking.NewEngine(fx,
				ranking.WithClock(func() time.Time { return now }),
				ranking.WithMissingCoordinatesPolicy(ranking.Farthest),
			)
			res, _ := e.Rank(ctx, "a", 100, 10)

			Convey("Then proximity should drop to the lowest bucket", func() {
				So(res.Candidates[0].Score.Proximity, ShouldEqual, 15)
				So(res.Candidates[0].Score.Composite, ShouldEqual, 78.45)
			})
		})

		Convey("When weights and bonus are configured", func() {
			e := ranking.NewEngine(fx,
				ranking.WithClock(func() time.Time { return now }),
				ranking.WithWeights(ranking.Weights{Completeness: 1}),
				ranking.WithVerifiedBonus(0),
			)
			res, _ := e.Rank(ctx, "a", 100, 10)

			Convey("Then the composite should follow them", func() {
				So(res.Candidates[0].Score.Composite, ShouldEqual, 83)
				So(res.Candidates[1].Score.Composite, ShouldEqual, 63)
			})
		})
	})
}

func TestSubScores(t *testing.T) {
	Convey("Given sub-score inputs", t, func() {
		Convey("Then completeness should add points and cap at 100", func() {
			So(ranking.Completeness(model.Profile{}), ShouldEqual, 0)
			So(ranking.Completeness(model.Profile{Name: "x", City: "Oslo", PhotoCount: 1}), ShouldEqual, 30)
			full := model.Profile{
				Name: "x", Bio: strings.Repeat("y", 50), City: "Oslo", PhotoCount: 9, Verified: true,
				Interests: "a,b,c", HasVoiceIntro: true,
			}
			So(ranking.Completeness(full), ShouldEqual, 100)
		})

		Convey("Then recency buckets should match their boundaries", func() {
			So(ranking.Recency(now.Add(-59*time.Minute), now), ShouldEqual, 100)
			So(ranking.Recency(now.Add(-time.Hour), now), ShouldEqual, 90)
			So(ranking.Recency(now.Add(-23*time.Hour), now), ShouldEqual, 75)
			So(ranking.Recency(now.Add(-48*time.Hour), now), ShouldEqual, 60)
			So(ranking.Recency(now.Add(-4*24*time.Hour), now), ShouldEqual, 40)
			So(ranking.Recency(now.Add(-29*24*time.Hour), now), ShouldEqual, 20)
			So(ranking.Recency(time.Time{}, now), ShouldEqual, 5)
		})

		Convey("Then proximity buckets should be inclusive", func() {
			So(ranking.Proximity(0), ShouldEqual, 90)
			So(ranking.Proximity(5), ShouldEqual, 90)
			So(ranking.Proximity(15), ShouldEqual, 75)
			So(ranking.Proximity(30), ShouldEqual, 60)
			So(ranking.Proximity(50), ShouldEqual, 45)
			So(ranking.Proximity(100), ShouldEqual, 30)
			So(ranking.Proximity(100.01), ShouldEqual, 15)
		})

		Convey("Then haversine should measure Berlin to Hamburg", func() {
			So(ranking.Haversine(52.52, 13.405, 53.55, 10.0), ShouldAlmostEqual, 255, 5)
		})

		Convey("Then haversine should stay finite for antipodal points", func() {
			for _, p := range [][4]float64{
				{10, 20, -10, -160},
				{0, 0, 0, 180},
				{45, 90, -45, -90},
				{90, 0, -90, 0},
			} {
				d := ranking.Haversine(p[0], p[1], p[2], p[3])
				So(math.IsNaN(d), ShouldBeFalse)
				So(d, ShouldAlmostEqual, math.Pi*6371.0, 0.01)
			}
		})

		Convey("Then the refresh should land on the next local midnight", func() {
			at := ranking.NextRefresh(now, time.UTC)
			So(at, ShouldEqual, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC))
		})
	})
}
