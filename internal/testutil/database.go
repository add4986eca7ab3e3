// Package testutil builds throwaway stores for tests.
package testutil

import (
	"testing"

	"github.com/microblog/microblog/internal/config"
	"github.com/microblog/microblog/internal/repository"
	"github.com/stretchr/testify/require"
)

// NewDatabase returns a migrated in-memory sqlite database with foreign keys
// enforced. It is closed when the test ends.
func NewDatabase(t testing.TB) *repository.Database {
	t.Helper()

	db, err := repository.NewDatabase(&config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     "file::memory:?_foreign_keys=on",
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
