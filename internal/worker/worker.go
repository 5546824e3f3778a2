// Package worker implements the Worker Scheduler: durable task-bound
// workers with status transitions, interactive routing, and failure
// recovery. Grounded in leapmux's workermgr.Manager registry and
// PendingRequests request/response correlation, retargeted from
// network connections to in-process cooperative tasks.
package worker

import (
	"time"
)

// Mode is a worker's execution mode.
type Mode string

const (
	ModeFireAndForget Mode = "fire_and_forget"
	ModeInteractive   Mode = "interactive"
)

// Status is a worker's lifecycle state.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusRunning      Status = "running"
	StatusWaitingInput Status = "waiting_input"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Spec describes a worker to spawn.
type Spec struct {
	TaskID    string
	ChannelID string
	Title     string
	Objective string
	Tools     []string
	Mode      Mode
}

// Worker is the scheduler-owned aggregate. Exclusively owned by the
// Scheduler; mutated only by its transition methods.
type Worker struct {
	WorkerID  string
	TaskID    string
	ChannelID string
	Title     string
	Objective string
	Tools     []string
	Mode      Mode
	Status    Status

	CreatedAt time.Time
	UpdatedAt time.Time

	LatestReport string
	FailReason   string
}

func (w Worker) clone() Worker {
	toolsCopy := make([]string, len(w.Tools))
	copy(toolsCopy, w.Tools)
	w.Tools = toolsCopy
	return w
}
