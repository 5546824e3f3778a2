package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slopoverlord/slopoverlord/internal/store"
)

func TestMigrate(t *testing.T) {
	sqlDB, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	require.NoError(t, store.Migrate(sqlDB))

	for _, table := range []string{"events", "aggregates"} {
		var count int64
		err := sqlDB.QueryRow("SELECT count(*) FROM " + table).Scan(&count)
		require.NoError(t, err, "table %q does not exist or is not queryable", table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	sqlDB, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	require.NoError(t, store.Migrate(sqlDB))
	require.NoError(t, store.Migrate(sqlDB))
}
