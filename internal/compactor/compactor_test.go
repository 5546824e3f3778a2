package compactor_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopoverlord/slopoverlord/internal/compactor"
	"github.com/slopoverlord/slopoverlord/internal/envelope"
	"github.com/slopoverlord/slopoverlord/internal/store"
)

func TestClassifyLevel(t *testing.T) {
	assert.Equal(t, compactor.LevelNone, compactor.ClassifyLevel(0.80))
	assert.Equal(t, compactor.LevelSoft, compactor.ClassifyLevel(0.81))
	assert.Equal(t, compactor.LevelAggressive, compactor.ClassifyLevel(0.86))
	assert.Equal(t, compactor.LevelEmergency, compactor.ClassifyLevel(0.96))
}

func TestObserve_EmergencyQuarantinesThenReleases(t *testing.T) {
	envStore, err := envelope.New(store.NewMemoryAdapter())
	require.NoError(t, err)
	c := compactor.New(envStore, compactor.SummarizerFunc(func(_ context.Context, envs []envelope.Envelope) (string, error) {
		return "digest", nil
	}))

	c.Observe(context.Background(), "general", 0.96)
	assert.True(t, c.IsQuarantined("general"))

	c.Observe(context.Background(), "general", 0.50)
	assert.False(t, c.IsQuarantined("general"))
}

func TestObserve_SoftSchedulesSummaryApplied(t *testing.T) {
	ctx := context.Background()
	envStore, err := envelope.New(store.NewMemoryAdapter())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		payload, _ := json.Marshal(envelope.MessageReceivedPayload{UserID: "u", Content: "hello"})
		_, err := envStore.Append(ctx, envelope.Envelope{
			MessageID:   "m" + string(rune('a'+i)),
			MessageType: envelope.TypeChannelMessageReceived,
			Ts:          time.Now(),
			ChannelID:   "general",
			Payload:     payload,
		})
		require.NoError(t, err)
	}

	c := compactor.New(envStore, compactor.SummarizerFunc(func(_ context.Context, envs []envelope.Envelope) (string, error) {
		return "digest-of-" + string(rune('0'+len(envs))), nil
	}))

	c.Observe(ctx, "general", 0.82)

	require.Eventually(t, func() bool {
		envs, err := envStore.ReadAll(ctx, "general", 0)
		if err != nil {
			return false
		}
		for _, e := range envs {
			if e.MessageType == envelope.TypeCompactorSummaryApplied {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}
