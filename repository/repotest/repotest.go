// Package repotest opens throwaway asset stores for tests.
package repotest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ahmadzakiakmal/panelchain/logger"
	"github.com/ahmadzakiakmal/panelchain/repository"
)

// SQLite returns a migrated store backed by a file in t.TempDir.
func SQLite(tb testing.TB) *repository.Repository {
	tb.Helper()

	repo := repository.NewRepository(logger.NewNop())
	if err := repo.OpenSQLite(filepath.Join(tb.TempDir(), "panelchain.db")); err != nil {
		tb.Fatalf("failed to open sqlite store: %v", err)
	}
	tb.Cleanup(func() { _ = repo.Close() })
	return repo
}

// Postgres returns a migrated store on TEST_POSTGRES_DSN, skipping the test
// when the variable is unset.
func Postgres(tb testing.TB) *repository.Repository {
	tb.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("set TEST_POSTGRES_DSN to run postgres integration tests")
	}
	repo := repository.NewRepository(logger.NewNop())
	if err := repo.ConnectDB(dsn); err != nil {
		tb.Fatalf("failed to connect postgres store: %v", err)
	}
	tb.Cleanup(func() { _ = repo.Close() })
	return repo
}
