package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopoverlord/slopoverlord/internal/store"
)

func TestOpenSQLite_InMemory(t *testing.T) {
	sqlDB, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	require.NoError(t, sqlDB.Ping())

	var fkEnabled int
	require.NoError(t, sqlDB.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled))
	assert.Equal(t, 1, fkEnabled)
}
