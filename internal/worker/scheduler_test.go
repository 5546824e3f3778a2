package worker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopoverlord/slopoverlord/internal/envelope"
	"github.com/slopoverlord/slopoverlord/internal/store"
	"github.com/slopoverlord/slopoverlord/internal/worker"
)

func newScheduler(t *testing.T) (*worker.Scheduler, *envelope.Store) {
	t.Helper()
	envStore, err := envelope.New(store.NewMemoryAdapter())
	require.NoError(t, err)
	return worker.New(envStore), envStore
}

func TestSpawn_FireAndForgetCompletesSynchronously(t *testing.T) {
	ctx := context.Background()
	s, envStore := newScheduler(t)

	workerID, err := s.Spawn(ctx, worker.Spec{
		TaskID:    "task-1",
		ChannelID: "general",
		Title:     "fix bug",
		Objective: "fix the bug",
		Mode:      worker.ModeFireAndForget,
	})
	require.NoError(t, err)

	w, err := s.Status(workerID)
	require.NoError(t, err)
	assert.Equal(t, worker.StatusCompleted, w.Status)
	assert.NotEmpty(t, w.LatestReport)

	envs, err := envStore.ReadAll(ctx, "general", 0)
	require.NoError(t, err)

	var sawSpawned, sawCompleted bool
	for _, e := range envs {
		switch e.MessageType {
		case envelope.TypeWorkerSpawned:
			sawSpawned = true
		case envelope.TypeWorkerCompleted:
			sawCompleted = true
		}
	}
	assert.True(t, sawSpawned)
	assert.True(t, sawCompleted)
}

func TestSpawn_InteractiveWaitsForInput(t *testing.T) {
	ctx := context.Background()
	s, _ := newScheduler(t)

	workerID, err := s.Spawn(ctx, worker.Spec{
		TaskID:    "task-2",
		ChannelID: "general",
		Title:     "review PR",
		Objective: "review the PR",
		Mode:      worker.ModeInteractive,
	})
	require.NoError(t, err)

	w, err := s.Status(workerID)
	require.NoError(t, err)
	assert.Equal(t, worker.StatusWaitingInput, w.Status)
}

func TestRoute_FailMessageFailsWorker(t *testing.T) {
	ctx := context.Background()
	s, envStore := newScheduler(t)

	var failedCalls []worker.Worker
	s.OnFailed = func(w worker.Worker) { failedCalls = append(failedCalls, w) }

	workerID, err := s.Spawn(ctx, worker.Spec{
		TaskID:    "task-3",
		ChannelID: "general",
		Objective: "deploy",
		Mode:      worker.ModeInteractive,
	})
	require.NoError(t, err)

	w, err := s.Route(ctx, workerID, "fail")
	require.NoError(t, err)
	assert.Equal(t, worker.StatusFailed, w.Status)
	require.Len(t, failedCalls, 1)
	assert.Equal(t, workerID, failedCalls[0].WorkerID)

	envs, err := envStore.ReadAll(ctx, "general", 0)
	require.NoError(t, err)
	var sawFailed bool
	for _, e := range envs {
		if e.MessageType == envelope.TypeWorkerFailed {
			sawFailed = true
		}
	}
	assert.True(t, sawFailed)
}

func TestRoute_OtherMessageCompletesWorker(t *testing.T) {
	ctx := context.Background()
	s, _ := newScheduler(t)

	workerID, err := s.Spawn(ctx, worker.Spec{
		TaskID:    "task-4",
		ChannelID: "general",
		Objective: "deploy",
		Mode:      worker.ModeInteractive,
	})
	require.NoError(t, err)

	w, err := s.Route(ctx, workerID, "looks good")
	require.NoError(t, err)
	assert.Equal(t, worker.StatusCompleted, w.Status)
}

func TestRoute_RejectsWhenNotWaitingInput(t *testing.T) {
	ctx := context.Background()
	s, _ := newScheduler(t)

	workerID, err := s.Spawn(ctx, worker.Spec{
		TaskID:    "task-5",
		ChannelID: "general",
		Objective: "deploy",
		Mode:      worker.ModeFireAndForget,
	})
	require.NoError(t, err)

	_, err = s.Route(ctx, workerID, "hi")
	assert.Error(t, err)
}

func TestInterrupt_CancelsRunningWorker(t *testing.T) {
	ctx := context.Background()
	s, _ := newScheduler(t)

	workerID, err := s.Spawn(ctx, worker.Spec{
		TaskID:    "task-6",
		ChannelID: "general",
		Objective: "deploy",
		Mode:      worker.ModeInteractive,
	})
	require.NoError(t, err)

	err = s.Interrupt(ctx, workerID)
	require.NoError(t, err)

	w, err := s.Status(workerID)
	require.NoError(t, err)
	assert.Equal(t, worker.StatusFailed, w.Status)
	assert.Equal(t, "cancelled", w.FailReason)
}

func TestList_ReturnsAllWorkers(t *testing.T) {
	ctx := context.Background()
	s, _ := newScheduler(t)

	_, err := s.Spawn(ctx, worker.Spec{TaskID: "t1", ChannelID: "c1", Mode: worker.ModeFireAndForget})
	require.NoError(t, err)
	_, err = s.Spawn(ctx, worker.Spec{TaskID: "t2", ChannelID: "c2", Mode: worker.ModeFireAndForget})
	require.NoError(t, err)

	assert.Len(t, s.List(), 2)
}
