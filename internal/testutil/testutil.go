// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/okian/tandem/internal/adapters/repository"
)

// DB returns a migrated, private in-memory SQLite database.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := repository.Open(repository.DriverSQLite, dsn)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	if err := repository.Migrate(context.Background(), db); err != nil {
		tb.Fatalf("migrate sqlite: %v", err)
	}
	tb.Cleanup(func() { _ = repository.Close(db) })
	return db
}

// PostgresDB returns a migrated database at TEST_POSTGRES_DSN, skipping the
// test when the variable is unset. Tables are emptied before use.
func PostgresDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("set TEST_POSTGRES_DSN to run postgres integration tests")
	}
	db, err := repository.Open(repository.DriverPostgres, dsn, repository.WithMaxOpenConns(16))
	if err != nil {
		tb.Fatalf("open postgres: %v", err)
	}
	if err := repository.Migrate(context.Background(), db); err != nil {
		tb.Fatalf("migrate postgres: %v", err)
	}
	if err := db.Exec("TRUNCATE profiles, interests, matches, match_milestones RESTART IDENTITY").Error; err != nil {
		tb.Fatalf("truncate postgres: %v", err)
	}
	tb.Cleanup(func() { _ = repository.Close(db) })
	return db
}

// RedisAddr returns TEST_REDIS_ADDR or skips the test.
func RedisAddr(tb testing.TB) string {
	tb.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		tb.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	return addr
}
