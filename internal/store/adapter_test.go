package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopoverlord/slopoverlord/internal/apperr"
	"github.com/slopoverlord/slopoverlord/internal/store"
)

func adapters(t *testing.T) map[string]store.Adapter {
	t.Helper()
	sqliteAdapter, err := store.OpenSQLiteAdapter(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteAdapter.Close() })

	return map[string]store.Adapter{
		"sqlite": sqliteAdapter,
		"memory": store.NewMemoryAdapter(),
	}
}

func TestAdapter_AppendAndScan(t *testing.T) {
	ctx := context.Background()
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			pos0, err := a.AppendEnvelope(ctx, store.EnvelopeRow{
				ChannelID: "general", MessageID: "m1", Type: "channel.message.received",
				Ts: time.Now(), Payload: []byte(`{}`),
			})
			require.NoError(t, err)
			assert.Equal(t, int64(0), pos0)

			pos1, err := a.AppendEnvelope(ctx, store.EnvelopeRow{
				ChannelID: "general", MessageID: "m2", Type: "channel.route.decided",
				Ts: time.Now(), Payload: []byte(`{}`),
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), pos1)

			rows, err := a.ScanEnvelopes(ctx, "general", 0, 0)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "m1", rows[0].MessageID)
			assert.Equal(t, "m2", rows[1].MessageID)

			latest, err := a.LatestPosition(ctx, "general")
			require.NoError(t, err)
			assert.Equal(t, int64(1), latest)
		})
	}
}

func TestAdapter_DuplicateMessageID(t *testing.T) {
	ctx := context.Background()
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			row := store.EnvelopeRow{ChannelID: "c1", MessageID: "dup", Type: "x", Ts: time.Now(), Payload: []byte(`{}`)}
			_, err := a.AppendEnvelope(ctx, row)
			require.NoError(t, err)

			_, err = a.AppendEnvelope(ctx, row)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindDuplicateMessageID))
		})
	}
}

func TestAdapter_AggregateCRUD(t *testing.T) {
	ctx := context.Background()
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := a.GetAggregate(ctx, "tasks", "t1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, a.PutAggregate(ctx, "tasks", "t1", []byte(`{"status":"backlog"}`)))
			data, ok, err := a.GetAggregate(ctx, "tasks", "t1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.JSONEq(t, `{"status":"backlog"}`, string(data))

			require.NoError(t, a.PutAggregate(ctx, "tasks", "t2", []byte(`{"status":"ready"}`)))
			ids, docs, err := a.ListAggregates(ctx, "tasks")
			require.NoError(t, err)
			assert.Len(t, ids, 2)
			assert.Len(t, docs, 2)

			require.NoError(t, a.DeleteAggregate(ctx, "tasks", "t1"))
			_, ok, err = a.GetAggregate(ctx, "tasks", "t1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}
