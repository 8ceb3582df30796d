package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/tandem/internal/adapters/http/api"
	"github.com/okian/tandem/internal/adapters/repository"
	"github.com/okian/tandem/internal/config"
	"github.com/okian/tandem/internal/domain/model"
	"github.com/okian/tandem/pkg/logger"
	"github.com/okian/tandem/pkg/metrics"
)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.DBDSN = "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	cfg.PriorityDailyQuota = 1
	cfg.NotifyWorkers = 1
	return cfg
}

func TestWiring(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a default configuration on an in-memory database", t, func() {
		cfg := testConfig()
		db, err := openDatabase(ctx, cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		defer func() { _ = repository.Close(db) }()

		svc := newService(db, nil, cfg, logger.Nop())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		for _, id := range []string{"alice", "bob", "carol"} {
			p := model.Profile{ID: id, Name: id, PhotoCount: 1, UpdatedAt: time.Now()}
			convey.So(svc.PutProfile(ctx, &p), convey.ShouldBeNil)
		}
		srv := newHTTPServer(":0", svc, logger.Nop())

		post := func(user, body string) int {
			req := httptest.NewRequest(http.MethodPost, "/v1/interests", strings.NewReader(body))
			req.Header.Set(api.HeaderUserID, user)
			rec := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rec, req)
			return rec.Code
		}

		convey.Convey("When two users like each other through the HTTP server", func() {
			convey.So(post("alice", `{"target_id":"bob","disposition":"like"}`), convey.ShouldEqual, http.StatusCreated)
			convey.So(post("bob", `{"target_id":"alice","disposition":"like"}`), convey.ShouldEqual, http.StatusCreated)

			convey.Convey("Then the stats should show one active match", func() {
				st, err := svc.GetStats(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(st.Counts.ActiveMatches, convey.ShouldEqual, 1)
				convey.So(st.Started, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the configured priority quota is exceeded", func() {
			convey.So(post("alice", `{"target_id":"bob","disposition":"like","priority":true}`), convey.ShouldEqual, http.StatusCreated)

			convey.Convey("Then the next priority like should be refused", func() {
				convey.So(post("alice", `{"target_id":"carol","disposition":"like","priority":true}`), convey.ShouldEqual, http.StatusTooManyRequests)
			})
		})

		convey.Convey("When fetching the API description", func() {
			req := httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody)
			rec := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rec, req)

			convey.Convey("Then it should be served next to the API", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "/v1/interests")
			})
		})

		convey.Convey("When the service metrics are refreshed", func() {
			convey.Convey("Then it should not panic", func() {
				convey.So(func() {
					updateSystemMetrics()
					updateServiceMetrics(ctx, svc)
				}, convey.ShouldNotPanic)
			})
		})
	})

	convey.Convey("Given an unknown database driver", t, func() {
		cfg := testConfig()
		cfg.DBDriver = "oracle"

		convey.Convey("Then opening should fail", func() {
			_, err := openDatabase(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given an unreachable redis", t, func() {
		cctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()

		convey.Convey("Then opening should fail", func() {
			_, err := openRedis(cctx, "127.0.0.1:1")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the system metrics updater on a short interval", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			startSystemMetricsUpdater(ctx, 5*time.Millisecond)
		}()
		time.Sleep(30 * time.Millisecond)
		cancel()

		convey.Convey("Then it should tick and stop with its context", func() {
			select {
			case <-done:
			case <-time.After(time.Second):
				convey.So("updater still running", convey.ShouldBeEmpty)
			}
			families, err := metrics.GetRegistry().Gather()
			convey.So(err, convey.ShouldBeNil)
			found := false
			for _, f := range families {
				if strings.HasSuffix(f.GetName(), "goroutine_count") && f.GetMetric()[0].GetGauge().GetValue() > 0 {
					found = true
				}
			}
			convey.So(found, convey.ShouldBeTrue)
		})
	})
}
