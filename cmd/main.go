package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	capadapter "github.com/okian/tandem/internal/adapters/capability"
	"github.com/okian/tandem/internal/adapters/http/api"
	"github.com/okian/tandem/internal/adapters/http/swagger"
	"github.com/okian/tandem/internal/adapters/mq"
	notifyadapter "github.com/okian/tandem/internal/adapters/notify"
	"github.com/okian/tandem/internal/adapters/repository"
	service "github.com/okian/tandem/internal/app"
	"github.com/okian/tandem/internal/config"
	"github.com/okian/tandem/internal/domain/capability"
	"github.com/okian/tandem/internal/domain/notify"
	"github.com/okian/tandem/internal/domain/ranking"
	"github.com/okian/tandem/internal/domain/scoring"
	"github.com/okian/tandem/pkg/logger"
	"github.com/okian/tandem/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	redisDialTimeout          = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.InitWithWriter(os.Stdout, logger.Format(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()
	metrics.Configure(
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithRefreshInterval(time.Duration(cfg.MetricsRefreshMS)*time.Millisecond),
	)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(context.Background(), "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "tandem exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = repository.Close(db) }()

	var broker redis.Cmdable
	if cfg.RedisAddr != "" {
		rdb, err := openRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		broker = rdb
	}

	svc := newService(db, broker, cfg, log)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Warn(stopCtx, "service stop failed", logger.Error(err))
		}
	}()

	if metrics.Enabled() {
		go startSystemMetricsUpdater(ctx, metrics.RefreshInterval())
		go startServiceMetricsUpdater(ctx, svc, metrics.RefreshInterval())
	}

	srv := newHTTPServer(cfg.Addr, svc, log)
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config, log logger.Logger) (*gorm.DB, error) {
	db, err := repository.Open(cfg.DBDriver, cfg.DBDSN,
		repository.WithMaxOpenConns(cfg.DBMaxOpenConns),
		repository.WithLogger(log.Named("db")),
	)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repository.Migrate(ctx, db); err != nil {
		_ = repository.Close(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: redisDialTimeout})
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// newService assembles the service. rdb may be nil, in which case quotas are
// kept in process and notifications are logged.
func newService(db *gorm.DB, rdb redis.Cmdable, cfg *config.Config, log logger.Logger) *service.Service {
	limits := []capadapter.Option{
		capadapter.WithLimit(capability.ActionStandardInterest, cfg.StandardDailyQuota),
		capadapter.WithLimit(capability.ActionPriorityInterest, cfg.PriorityDailyQuota),
	}
	var gate capability.Gate
	var sink notify.Sink
	if rdb != nil {
		gate = capadapter.NewRedisGate(rdb, limits...)
		sink = notifyadapter.NewRedisSink(rdb, cfg.RedisChannel)
	} else {
		gate = capadapter.NewMemoryGate(limits...)
		sink = notifyadapter.NewLogSink(log.Named("notifications"))
	}

	breaker := notifyadapter.DefaultBreakerSettings()
	breaker.FailureThreshold = uint32(cfg.BreakerFailureThreshold)
	breaker.Timeout = time.Duration(cfg.BreakerTimeoutMS) * time.Millisecond
	sink = notifyadapter.NewBreakerSink(sink, breaker, log.Named("breaker"))

	var seeder scoring.Seeder = scoring.NewFlatSeeder(cfg.DefaultInitialScore)
	if cfg.Seeder == config.SeederSimilarity {
		seeder = scoring.NewSimilaritySeeder(scoring.WithBase(cfg.DefaultInitialScore))
	}

	return service.New(db,
		service.WithLogger(log.Named("service")),
		service.WithGate(gate),
		service.WithSink(sink,
			mq.WithQueueSize(cfg.NotifyQueueSize),
			mq.WithWorkers(cfg.NotifyWorkers),
			mq.WithDedupeSize(cfg.NotifyDedupeSize),
		),
		service.WithSeeder(seeder),
		service.WithPoolSize(cfg.PoolSize),
		service.WithResultSize(cfg.ResultSize),
		service.WithRankingOptions(
			ranking.WithWeights(ranking.Weights{
				Completeness: cfg.WeightCompleteness,
				Recency:      cfg.WeightRecency,
				Proximity:    cfg.WeightProximity,
			}),
			ranking.WithVerifiedBonus(cfg.VerifiedBonus),
			ranking.WithMissingCoordinatesPolicy(ranking.MissingCoordinatesPolicy(cfg.MissingCoordinatesPolicy)),
		),
	)
}

func newHTTPServer(addr string, svc *service.Service, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	api.NewServer(svc, svc, log.Named("http")).Register(mux)
	swagger.Register(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes gauges derived from service state.
func updateServiceMetrics(ctx context.Context, svc *service.Service) {
	stats, err := svc.GetStats(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("service", "stats")
		return
	}
	metrics.UpdateQueueSize(stats.PendingNotifications)
}
