package runtime_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slopoverlord/slopoverlord/internal/config"
	"github.com/slopoverlord/slopoverlord/internal/runtime"
)

func TestNew_WiresCollaboratorsAgainstInMemoryAdapter(t *testing.T) {
	cfg := config.Defaults()
	cfg.WorkspaceRoot = t.TempDir()
	cfg.DBPath = ":memory:"
	cfgStore := config.NewStore(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := runtime.New(ctx, cfgStore)
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, rt.Dispatcher.Ingest(ctx, "general", "u1", "hello there"))
}
