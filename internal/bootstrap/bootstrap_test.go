package bootstrap_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopoverlord/slopoverlord/internal/bootstrap"
	"github.com/slopoverlord/slopoverlord/internal/store"
)

func TestBoard_SeedsDefaultOnFirstRun(t *testing.T) {
	adapter := store.NewMemoryAdapter()
	ctx := context.Background()

	b, err := bootstrap.Board(ctx, adapter)
	require.NoError(t, err)

	assert.NotEmpty(t, b.Nodes)
	assert.True(t, b.CanClaim("human:dispatcher", "agent:assistant"))
}

func TestBoard_Idempotent(t *testing.T) {
	adapter := store.NewMemoryAdapter()
	ctx := context.Background()

	first, err := bootstrap.Board(ctx, adapter)
	require.NoError(t, err)

	second, err := bootstrap.Board(ctx, adapter)
	require.NoError(t, err)

	assert.Equal(t, len(first.Nodes), len(second.Nodes))
	assert.Equal(t, len(first.Links), len(second.Links))
}
