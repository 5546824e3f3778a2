package dispatcher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopoverlord/slopoverlord/internal/actorboard"
	"github.com/slopoverlord/slopoverlord/internal/branch"
	"github.com/slopoverlord/slopoverlord/internal/compactor"
	"github.com/slopoverlord/slopoverlord/internal/dispatcher"
	"github.com/slopoverlord/slopoverlord/internal/envelope"
	"github.com/slopoverlord/slopoverlord/internal/provider"
	"github.com/slopoverlord/slopoverlord/internal/store"
	"github.com/slopoverlord/slopoverlord/internal/visor"
	"github.com/slopoverlord/slopoverlord/internal/worker"
)

func newDispatcher(t *testing.T) (*dispatcher.Dispatcher, *envelope.Store) {
	t.Helper()
	envStore, err := envelope.New(store.NewMemoryAdapter())
	require.NoError(t, err)

	sched := worker.New(envStore)
	branchRT := branch.New(provider.NullProvider{})
	comp := compactor.New(envStore, compactor.SummarizerFunc(func(_ context.Context, envs []envelope.Envelope) (string, error) {
		return "digest", nil
	}))
	v := visor.New(t.TempDir(), envStore, actorboard.NewDefault(), sched)
	sched.OnCompleted = v.HandleWorkerCompleted
	sched.OnFailed = v.HandleWorkerFailed

	return dispatcher.New(envStore, sched, branchRT, comp, v), envStore
}

func TestIngest_ShortMessageRespondsInline(t *testing.T) {
	ctx := context.Background()
	d, envStore := newDispatcher(t)

	require.NoError(t, d.Ingest(ctx, "general", "u1", "hey there"))

	envs, err := envStore.ReadAll(ctx, "general", 0)
	require.NoError(t, err)

	var sawReceived, sawDecision int
	var lastDecisionPos, firstMessagePos int64 = -1, -1
	for _, e := range envs {
		switch e.MessageType {
		case envelope.TypeChannelMessageReceived:
			sawReceived++
			if firstMessagePos == -1 {
				firstMessagePos = e.Position
			}
		case envelope.TypeChannelRouteDecided:
			sawDecision++
			lastDecisionPos = e.Position
		}
	}
	assert.GreaterOrEqual(t, sawReceived, 1)
	assert.Equal(t, 1, sawDecision)
	assert.Greater(t, lastDecisionPos, firstMessagePos)
}

func TestIngest_ToolObjectiveSpawnsWorker(t *testing.T) {
	ctx := context.Background()
	d, envStore := newDispatcher(t)

	require.NoError(t, d.Ingest(ctx, "general", "u1", "please deploy the release tonight"))

	envs, err := envStore.ReadAll(ctx, "general", 0)
	require.NoError(t, err)

	var sawWorkerSpawned bool
	for _, e := range envs {
		if e.MessageType == envelope.TypeWorkerSpawned {
			sawWorkerSpawned = true
		}
	}
	assert.True(t, sawWorkerSpawned)
}

func TestIngest_QuarantinedChannelRejectsMessage(t *testing.T) {
	ctx := context.Background()
	d, _ := newDispatcher(t)

	var quarantinedAt int
	for i := 0; i < 600; i++ {
		if err := d.Ingest(ctx, "busy", "u1", "short"); err != nil {
			quarantinedAt = i
			break
		}
	}
	require.NotZero(t, quarantinedAt, "expected the channel to quarantine before exhausting the loop")

	err := d.Ingest(ctx, "busy", "u1", "one more")
	assert.Error(t, err)
}
