// Package repository persists interests, matches, milestone ledgers and profiles with gorm.
package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/okian/tandem/internal/domain/model"
	"github.com/okian/tandem/pkg/logger"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const defaultSlowThreshold = 200 * time.Millisecond

type openOptions struct {
	maxOpenConns  int
	slowThreshold time.Duration
	logger        logger.Logger
}

// Option configures Open.
type Option func(*openOptions)

// WithMaxOpenConns caps the pool. SQLite always uses a single connection.
func WithMaxOpenConns(n int) Option {
	return func(o *openOptions) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// WithSlowThreshold sets when a query is logged as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(o *openOptions) {
		if d > 0 {
			o.slowThreshold = d
		}
	}
}

// WithLogger routes gorm's warnings and errors to l.
func WithLogger(l logger.Logger) Option {
	return func(o *openOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Open connects to the database and configures the pool.
func Open(driver, dsn string, opts ...Option) (*gorm.DB, error) {
	o := &openOptions{maxOpenConns: 10, slowThreshold: defaultSlowThreshold, logger: logger.Nop()}
	for _, opt := range opts {
		opt(o)
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("open database: unknown driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLog(o.logger, o.slowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer; also keeps a shared in-memory database alive.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(o.maxOpenConns)
		sqlDB.SetMaxIdleConns(o.maxOpenConns)
	}
	return db, nil
}

// Migrate creates or updates every table and index the core relies on.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&model.Profile{},
		&model.Interest{},
		&model.Match{},
		&model.MilestoneEntry{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormLog adapts gorm's logger to the service logger.
type gormLog struct {
	log   logger.Logger
	level gormLogger.LogLevel
	slow  time.Duration
}

func newGormLog(l logger.Logger, slow time.Duration) *gormLog {
	return &gormLog{log: l.Named("gorm"), level: gormLogger.Warn, slow: slow}
}

func (g *gormLog) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	c := *g
	c.level = level
	return &c
}

func (g *gormLog) Info(ctx context.Context, msg string, args ...any) {
	if g.level >= gormLogger.Info {
		g.log.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLog) Warn(ctx context.Context, msg string, args ...any) {
	if g.level >= gormLogger.Warn {
		g.log.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLog) Error(ctx context.Context, msg string, args ...any) {
	if g.level >= gormLogger.Error {
		g.log.Error(ctx, fmt.Sprintf(msg, args...))
	}
}

// Trace logs slow queries and unexpected failures. Not-found and
// uniqueness errors are part of normal control flow and stay quiet.
func (g *gormLog) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormLogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !isExpected(err) && g.level >= gormLogger.Error:
		sql, rows := fc()
		g.log.Error(ctx, "query failed",
			logger.String("sql", sql), logger.Int64("rows", rows),
			logger.Duration("elapsed", elapsed), logger.Error(err))
	case g.slow > 0 && elapsed > g.slow && g.level >= gormLogger.Warn:
		sql, rows := fc()
		g.log.Warn(ctx, "slow query",
			logger.String("sql", sql), logger.Int64("rows", rows), logger.Duration("elapsed", elapsed))
	}
}
