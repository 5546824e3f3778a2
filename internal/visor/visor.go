package visor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slopoverlord/slopoverlord/internal/actorboard"
	"github.com/slopoverlord/slopoverlord/internal/apperr"
	"github.com/slopoverlord/slopoverlord/internal/envelope"
	"github.com/slopoverlord/slopoverlord/internal/id"
	"github.com/slopoverlord/slopoverlord/internal/router"
	"github.com/slopoverlord/slopoverlord/internal/util/timefmt"
	"github.com/slopoverlord/slopoverlord/internal/worker"
)

// defaultClaimActorID is consulted when a task names no explicit
// actorId, so auto-spawn has a recipient to resolve a claim against.
const defaultClaimActorID = "agent:assistant"

// dispatcherActorID is the claimant of record for every auto-spawn,
// matching the board's seeded human:dispatcher node.
const dispatcherActorID = "human:dispatcher"

// Visor is the Project/Task Visor.
type Visor struct {
	workspaceRoot string
	envStore      *envelope.Store
	board         *actorboard.Board
	scheduler     *worker.Scheduler

	mu             sync.Mutex
	projects       map[string]*Project
	channelProject map[string]string // channelId -> projectId
	tasks          map[string]*Task  // taskId -> task
	workerTask     map[string]string // workerId -> taskId
}

// New creates a Visor. board gates auto-spawn claims; scheduler is used
// to spawn workers bound to ready tasks.
func New(workspaceRoot string, envStore *envelope.Store, board *actorboard.Board, scheduler *worker.Scheduler) *Visor {
	return &Visor{
		workspaceRoot:  workspaceRoot,
		envStore:       envStore,
		board:          board,
		scheduler:      scheduler,
		projects:       make(map[string]*Project),
		channelProject: make(map[string]string),
		tasks:          make(map[string]*Task),
		workerTask:     make(map[string]string),
	}
}

// CreateProject registers a new project.
func (v *Visor) CreateProject(name, description string) *Project {
	now := time.Now()
	p := &Project{
		ID:          id.Generate(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	v.mu.Lock()
	v.projects[p.ID] = p
	v.mu.Unlock()
	return p
}

// BindChannel maps channelID to projectID under the given display title.
func (v *Visor) BindChannel(projectID, channelID, title string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.projects[projectID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "project "+projectID)
	}
	p.Channels = append(p.Channels, ChannelRef{ChannelID: channelID, Title: title})
	p.UpdatedAt = time.Now()
	v.channelProject[channelID] = projectID
	return nil
}

func (v *Visor) projectForChannelLocked(channelID string) (*Project, bool) {
	pid, ok := v.channelProject[channelID]
	if !ok {
		return nil, false
	}
	return v.projects[pid], true
}

// OnMessageReceived implements the extraction duty: creates backlog
// tasks for every extracted TODO, and advances an approved task to
// ready on an approval command. Per the skip rule, it is a no-op when
// channelID belongs to no project.
func (v *Visor) OnMessageReceived(ctx context.Context, channelID, content string) error {
	v.mu.Lock()
	project, ok := v.projectForChannelLocked(channelID)
	if !ok {
		v.mu.Unlock()
		return nil
	}

	for _, extracted := range ExtractTODOs(content) {
		if v.hasDuplicateBacklogTitleLocked(project, extracted.Title) {
			continue
		}
		now := time.Now()
		t := &Task{
			ID:    id.Generate(),
			Title: extracted.Title,
			Description: fmt.Sprintf("Source: visor-auto\nOrigin channel: %s", channelID),
			Priority:        PriorityMedium,
			Status:          StatusBacklog,
			ProjectID:       project.ID,
			OriginChannelID: channelID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		project.Tasks = append(project.Tasks, t)
		v.tasks[t.ID] = t
	}

	ref, ok := router.ApprovalCommandMatch(content)
	v.mu.Unlock()

	if !ok {
		return nil
	}
	return v.approve(ctx, project.ID, channelID, ref)
}

func (v *Visor) hasDuplicateBacklogTitleLocked(p *Project, title string) bool {
	key := normalizeTitle(title)
	for _, t := range p.Tasks {
		if t.Status == StatusBacklog && normalizeTitle(t.Title) == key {
			return true
		}
	}
	return false
}

// approve resolves ref (a 1-based backlog index, or a literal task id)
// to a task within project, transitions it to ready, and emits the
// channel.route.decided envelope the spec requires as a side effect of
// the approval command.
func (v *Visor) approve(ctx context.Context, projectID, channelID, ref string) error {
	v.mu.Lock()
	project, ok := v.projects[projectID]
	if !ok {
		v.mu.Unlock()
		return apperr.New(apperr.KindNotFound, "project "+projectID)
	}

	var target *Task
	if n, err := strconv.Atoi(ref); err == nil {
		backlog := make([]*Task, 0, len(project.Tasks))
		for _, t := range project.Tasks {
			if t.Status == StatusBacklog {
				backlog = append(backlog, t)
			}
		}
		if n >= 1 && n <= len(backlog) {
			target = backlog[n-1]
		}
	} else {
		target = v.tasks[ref]
	}

	if target == nil {
		v.mu.Unlock()
		return apperr.New(apperr.KindNotFound, "no task for approval reference "+ref)
	}

	target.Status = StatusReady
	target.UpdatedAt = time.Now()
	v.mu.Unlock()

	if err := v.appendRouteDecided(ctx, channelID, router.ActionRespond, "task_approved_command"); err != nil {
		return err
	}

	v.attemptAutoSpawn(ctx, target)
	return nil
}

// attemptAutoSpawn implements the ready -> in_progress transition's
// claim rule: if the task names an actor, the board must permit
// human:dispatcher -> actor on a task link, else the task stalls at
// ready with no claim.
func (v *Visor) attemptAutoSpawn(ctx context.Context, t *Task) {
	actorID := t.ActorID
	if actorID == "" {
		actorID = defaultClaimActorID
	}
	if !v.board.CanClaim(dispatcherActorID, actorID) {
		return
	}

	v.mu.Lock()
	if t.Status != StatusReady {
		v.mu.Unlock()
		return
	}
	t.Status = StatusInProgress
	t.ClaimedActorID = actorID
	t.ClaimedAgentID = actorID
	t.UpdatedAt = time.Now()
	v.mu.Unlock()

	workerID, err := v.scheduler.Spawn(ctx, worker.Spec{
		TaskID:    t.ID,
		ChannelID: t.OriginChannelID,
		Title:     t.Title,
		Objective: t.Description,
		Mode:      worker.ModeFireAndForget,
	})
	if err != nil {
		v.logTask(t.ProjectID, t.ID, "worker_spawn_failed", err.Error())
		return
	}

	v.BindWorkerToTask(workerID, t.ID)
	v.logTask(t.ProjectID, t.ID, "worker_spawned", "worker_id="+workerID)
}

// BindWorkerToTask records that workerID is working on behalf of
// taskID, so a later worker.completed/worker.failed report can find
// its way back to the right task. Exposed so callers spawning workers
// outside attemptAutoSpawn (e.g. interactive workers driven by
// explicit route() calls) can still participate in the task lifecycle.
func (v *Visor) BindWorkerToTask(workerID, taskID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.workerTask[workerID] = taskID
}

// HandleWorkerCompleted is registered as the scheduler's OnCompleted
// hook: in_progress -> done, persisting the report as an artifact file.
func (v *Visor) HandleWorkerCompleted(w worker.Worker) {
	t := v.taskForWorker(w)
	if t == nil {
		return
	}

	relPath := fmt.Sprintf("projects/%s/artifacts/task-%s-report.txt", t.ProjectID, t.ID)
	if err := v.writeArtifact(relPath, w.LatestReport); err == nil {
		v.mu.Lock()
		t.Description += "\nArtifact: " + relPath
		v.mu.Unlock()
	}

	v.mu.Lock()
	t.Status = StatusDone
	t.UpdatedAt = time.Now()
	v.mu.Unlock()

	v.logTask(t.ProjectID, t.ID, "completed", "worker_id="+w.WorkerID)
}

// HandleWorkerFailed is registered as the scheduler's OnFailed hook:
// in_progress -> backlog, recording the failure timestamp.
func (v *Visor) HandleWorkerFailed(w worker.Worker) {
	t := v.taskForWorker(w)
	if t == nil {
		return
	}

	v.mu.Lock()
	t.Status = StatusBacklog
	t.Description += "\nWorker failed at " + timefmt.Format(time.Now())
	t.ClaimedActorID = ""
	t.ClaimedAgentID = ""
	t.UpdatedAt = time.Now()
	v.mu.Unlock()

	v.logTask(t.ProjectID, t.ID, "failed", "worker_id="+w.WorkerID+" reason="+w.FailReason)
}

// taskForWorker resolves the task a completed/failed worker report
// belongs to. It prefers w.TaskID, set directly on the worker at spawn
// time, over the workerTask map: Scheduler.Spawn is synchronous for
// fire-and-forget workers and invokes OnCompleted/OnFailed before
// returning the worker id, so a caller that binds workerTask only
// after Spawn returns (as attemptAutoSpawn does) would otherwise race
// this lookup. The map lookup remains as a fallback for workers spawned
// without a TaskID that are bound later via BindWorkerToTask.
func (v *Visor) taskForWorker(w worker.Worker) *Task {
	v.mu.Lock()
	defer v.mu.Unlock()
	if w.TaskID != "" {
		if t, ok := v.tasks[w.TaskID]; ok {
			return t
		}
	}
	taskID, ok := v.workerTask[w.WorkerID]
	if !ok {
		return nil
	}
	return v.tasks[taskID]
}

// Task returns a copy of taskID's current state.
func (v *Visor) Task(taskID string) (Task, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.tasks[taskID]
	if !ok {
		return Task{}, apperr.New(apperr.KindNotFound, "task "+taskID)
	}
	return *t, nil
}

func (v *Visor) appendRouteDecided(ctx context.Context, channelID, action, reason string) error {
	payload, err := json.Marshal(router.RouteDecision{Action: action, Reason: reason, Confidence: 1.0})
	if err != nil {
		return fmt.Errorf("encode route decision: %w", err)
	}
	_, err = v.envStore.Append(ctx, envelope.Envelope{
		MessageID:   id.NewUUID(),
		MessageType: envelope.TypeChannelRouteDecided,
		Ts:          time.Now(),
		ChannelID:   channelID,
		Payload:     payload,
	})
	return err
}

func (v *Visor) writeArtifact(relPath, content string) error {
	full := filepath.Join(v.workspaceRoot, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	return os.WriteFile(full, []byte(content), 0o644)
}

func (v *Visor) logTask(projectID, taskID, stage, extra string) {
	relDir := filepath.Join(v.workspaceRoot, "projects", projectID, "logs")
	if err := os.MkdirAll(relDir, 0o755); err != nil {
		return
	}
	path := filepath.Join(relDir, "task-"+taskID+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	line := fmt.Sprintf("stage=%s ts=%s %s\n", stage, timefmt.Format(time.Now()), strings.TrimSpace(extra))
	_, _ = f.WriteString(line)
}
