package visor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopoverlord/slopoverlord/internal/actorboard"
	"github.com/slopoverlord/slopoverlord/internal/envelope"
	"github.com/slopoverlord/slopoverlord/internal/store"
	"github.com/slopoverlord/slopoverlord/internal/visor"
	"github.com/slopoverlord/slopoverlord/internal/worker"
)

func newVisor(t *testing.T) (*visor.Visor, *worker.Scheduler) {
	t.Helper()
	envStore, err := envelope.New(store.NewMemoryAdapter())
	require.NoError(t, err)
	sched := worker.New(envStore)
	v := visor.New(t.TempDir(), envStore, actorboard.NewDefault(), sched)
	sched.OnCompleted = v.HandleWorkerCompleted
	sched.OnFailed = v.HandleWorkerFailed
	return v, sched
}

func TestOnMessageReceived_ExtractsBacklogTODO(t *testing.T) {
	ctx := context.Background()
	v, _ := newVisor(t)

	p := v.CreateProject("demo", "demo project")
	require.NoError(t, v.BindChannel(p.ID, "general", "General"))

	require.NoError(t, v.OnMessageReceived(ctx, "general", "- [ ] write the launch doc\nTODO: ping legal"))

	assert.Len(t, p.Tasks, 2)
	assert.Equal(t, visor.StatusBacklog, p.Tasks[0].Status)
}

func TestOnMessageReceived_SkipsUnboundChannel(t *testing.T) {
	ctx := context.Background()
	v, _ := newVisor(t)

	require.NoError(t, v.OnMessageReceived(ctx, "unbound", "- [ ] should not be created"))
}

func TestApprovalCommand_ReadyThenAutoSpawnsAndCompletes(t *testing.T) {
	ctx := context.Background()
	v, _ := newVisor(t)

	p := v.CreateProject("demo", "demo project")
	require.NoError(t, v.BindChannel(p.ID, "general", "General"))
	require.NoError(t, v.OnMessageReceived(ctx, "general", "- [ ] ship the release"))

	require.NoError(t, v.OnMessageReceived(ctx, "general", "pick up #1"))

	task, err := v.Task(p.Tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, visor.StatusDone, task.Status)
	assert.Contains(t, task.Description, "Artifact:")
}

func TestWorkerFailure_RewindsTaskToBacklog(t *testing.T) {
	ctx := context.Background()
	v, sched := newVisor(t)

	p := v.CreateProject("demo", "demo project")
	require.NoError(t, v.BindChannel(p.ID, "general", "General"))
	require.NoError(t, v.OnMessageReceived(ctx, "general", "- [ ] deploy the service"))
	task := p.Tasks[0]

	workerID, err := sched.Spawn(ctx, worker.Spec{
		TaskID:    task.ID,
		ChannelID: "general",
		Title:     task.Title,
		Objective: task.Description,
		Mode:      worker.ModeInteractive,
	})
	require.NoError(t, err)
	v.BindWorkerToTask(workerID, task.ID)

	_, err = sched.Route(ctx, workerID, "fail")
	require.NoError(t, err)

	got, err := v.Task(task.ID)
	require.NoError(t, err)
	assert.Equal(t, visor.StatusBacklog, got.Status)
	assert.Contains(t, got.Description, "Worker failed at")
}
