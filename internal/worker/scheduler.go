package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/slopoverlord/slopoverlord/internal/apperr"
	"github.com/slopoverlord/slopoverlord/internal/envelope"
	"github.com/slopoverlord/slopoverlord/internal/id"
	"github.com/slopoverlord/slopoverlord/internal/metrics"
)

const dispatchQueueCapacity = 256

// dispatchQueue serializes progress application for a single
// channelId, per the concurrency model's "bounded dispatch queue per
// channelId" requirement. Grounded in workermgr's registry-of-owned-
// state pattern, generalized from a connection map to a job queue.
type dispatchQueue struct {
	jobs chan func()
}

func newDispatchQueue() *dispatchQueue {
	q := &dispatchQueue{jobs: make(chan func(), dispatchQueueCapacity)}
	go func() {
		for job := range q.jobs {
			job()
		}
	}()
	return q
}

// Scheduler maintains the set of Workers keyed by workerId.
type Scheduler struct {
	envStore *envelope.Store

	mu      sync.RWMutex
	workers map[string]*Worker

	queuesMu sync.Mutex
	queues   map[string]*dispatchQueue

	// OnFailed is invoked (outside any lock) after a worker transitions
	// to failed, so the Visor can rewind the bound task. Optional.
	OnFailed func(w Worker)
	// OnCompleted is invoked after a worker transitions to completed.
	OnCompleted func(w Worker)
}

// New creates a Scheduler backed by envStore for emitting worker.*
// envelopes.
func New(envStore *envelope.Store) *Scheduler {
	return &Scheduler{
		envStore: envStore,
		workers:  make(map[string]*Worker),
		queues:   make(map[string]*dispatchQueue),
	}
}

func (s *Scheduler) queueFor(channelID string) *dispatchQueue {
	s.queuesMu.Lock()
	defer s.queuesMu.Unlock()
	q, ok := s.queues[channelID]
	if !ok {
		q = newDispatchQueue()
		s.queues[channelID] = q
	}
	return q
}

// Spawn creates a new worker from spec and returns its workerId. The
// worker runs in its channel's dispatch queue and Spawn waits for that
// run: a fire_and_forget worker has completed by the time Spawn
// returns; an interactive worker starts and immediately yields to
// waiting_input.
func (s *Scheduler) Spawn(ctx context.Context, spec Spec) (string, error) {
	now := time.Now()
	w := &Worker{
		WorkerID:  id.Generate(),
		TaskID:    spec.TaskID,
		ChannelID: spec.ChannelID,
		Title:     spec.Title,
		Objective: spec.Objective,
		Tools:     spec.Tools,
		Mode:      spec.Mode,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.workers[w.WorkerID] = w
	s.mu.Unlock()
	metrics.ActiveWorkers.Inc()
	metrics.WorkerTransitionsTotal.WithLabelValues(string(StatusQueued)).Inc()

	if err := s.appendEnvelope(ctx, w.ChannelID, envelope.TypeWorkerSpawned, envelope.WorkerSpawnedPayload{
		WorkerID: w.WorkerID, TaskID: w.TaskID, Title: w.Title, Objective: w.Objective,
	}, w.TaskID, "", w.WorkerID); err != nil {
		return "", err
	}

	done := make(chan error, 1)
	s.queueFor(w.ChannelID).jobs <- func() {
		done <- s.run(ctx, w.WorkerID)
	}
	if err := <-done; err != nil {
		return "", err
	}

	return w.WorkerID, nil
}

// run drives a queued worker to running, then to its mode-specific next
// state. Always executed from the worker's channel dispatch queue.
func (s *Scheduler) run(ctx context.Context, workerID string) error {
	if err := s.transition(workerID, StatusQueued, StatusRunning); err != nil {
		return err
	}
	metrics.WorkerTransitionsTotal.WithLabelValues(string(StatusRunning)).Inc()

	s.mu.RLock()
	w := *s.workers[workerID]
	s.mu.RUnlock()

	switch w.Mode {
	case ModeInteractive:
		if err := s.transition(workerID, StatusRunning, StatusWaitingInput); err != nil {
			return err
		}
		metrics.WorkerTransitionsTotal.WithLabelValues(string(StatusWaitingInput)).Inc()
		return nil

	default: // fire_and_forget
		report := fmt.Sprintf("completed objective: %s", w.Objective)
		s.mu.Lock()
		s.workers[workerID].LatestReport = report
		s.workers[workerID].Status = StatusCompleted
		s.workers[workerID].UpdatedAt = time.Now()
		final := s.workers[workerID].clone()
		s.mu.Unlock()
		metrics.ActiveWorkers.Dec()
		metrics.WorkerTransitionsTotal.WithLabelValues(string(StatusCompleted)).Inc()

		if err := s.appendEnvelope(ctx, w.ChannelID, envelope.TypeWorkerCompleted, envelope.WorkerCompletedPayload{
			WorkerID: workerID, Report: report,
		}, w.TaskID, "", workerID); err != nil {
			return err
		}
		if s.OnCompleted != nil {
			s.OnCompleted(final)
		}
		return nil
	}
}

// transition moves a worker from `from` to `to`, failing with
// KindConflict if its current status doesn't match `from`.
func (s *Scheduler) transition(workerID string, from, to Status) error {
	s.mu.Lock()
	w, ok := s.workers[workerID]
	if !ok {
		s.mu.Unlock()
		return apperr.New(apperr.KindNotFound, workerID)
	}
	if w.Status != from {
		s.mu.Unlock()
		return apperr.New(apperr.KindConflict, fmt.Sprintf("worker %s not in status %s", workerID, from))
	}
	w.Status = to
	w.UpdatedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// Status returns a snapshot of a worker.
func (s *Scheduler) Status(workerID string) (Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[workerID]
	if !ok {
		return Worker{}, apperr.New(apperr.KindNotFound, workerID)
	}
	return w.clone(), nil
}

// List returns a snapshot of every worker.
func (s *Scheduler) List() []Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w.clone())
	}
	return out
}

// Route delivers message to an interactive worker that is currently
// waiting_input and yields the next progress report (completion or
// failure). The literal content "fail" drives the worker to a failed
// terminal state, grounding the spec's worker-failure-rewinds-task
// scenario without a real tool-executing agent behind it.
func (s *Scheduler) Route(ctx context.Context, workerID, message string) (Worker, error) {
	s.mu.Lock()
	w, ok := s.workers[workerID]
	if !ok {
		s.mu.Unlock()
		return Worker{}, apperr.New(apperr.KindNotFound, workerID)
	}
	if w.Status != StatusWaitingInput {
		s.mu.Unlock()
		return Worker{}, apperr.New(apperr.KindConflict, fmt.Sprintf("worker %s not waiting_input", workerID))
	}
	w.Status = StatusRunning
	w.UpdatedAt = time.Now()
	channelID, taskID := w.ChannelID, w.TaskID
	s.mu.Unlock()

	done := make(chan error, 1)
	s.queueFor(channelID).jobs <- func() {
		done <- s.applyRoutedMessage(ctx, workerID, taskID, channelID, message)
	}
	if err := <-done; err != nil {
		return Worker{}, err
	}

	return s.Status(workerID)
}

func (s *Scheduler) applyRoutedMessage(ctx context.Context, workerID, taskID, channelID, message string) error {
	if message == "fail" {
		reason := "requested"
		s.mu.Lock()
		s.workers[workerID].Status = StatusFailed
		s.workers[workerID].FailReason = reason
		s.workers[workerID].UpdatedAt = time.Now()
		final := s.workers[workerID].clone()
		s.mu.Unlock()
		metrics.ActiveWorkers.Dec()
		metrics.WorkerTransitionsTotal.WithLabelValues(string(StatusFailed)).Inc()

		if err := s.appendEnvelope(ctx, channelID, envelope.TypeWorkerFailed, envelope.WorkerFailedPayload{
			WorkerID: workerID, Reason: reason,
		}, taskID, "", workerID); err != nil {
			return err
		}
		if s.OnFailed != nil {
			s.OnFailed(final)
		}
		return nil
	}

	report := "acknowledged: " + message
	s.mu.Lock()
	s.workers[workerID].LatestReport = report
	s.workers[workerID].Status = StatusCompleted
	s.workers[workerID].UpdatedAt = time.Now()
	final := s.workers[workerID].clone()
	s.mu.Unlock()
	metrics.ActiveWorkers.Dec()
	metrics.WorkerTransitionsTotal.WithLabelValues(string(StatusCompleted)).Inc()

	if err := s.appendEnvelope(ctx, channelID, envelope.TypeWorkerCompleted, envelope.WorkerCompletedPayload{
		WorkerID: workerID, Report: report,
	}, taskID, "", workerID); err != nil {
		return err
	}
	if s.OnCompleted != nil {
		s.OnCompleted(final)
	}
	return nil
}

// Interrupt transitions a running or waiting_input worker to failed
// with reason "cancelled", matching the cancellation semantics in the
// concurrency model.
func (s *Scheduler) Interrupt(ctx context.Context, workerID string) error {
	s.mu.Lock()
	w, ok := s.workers[workerID]
	if !ok {
		s.mu.Unlock()
		return apperr.New(apperr.KindNotFound, workerID)
	}
	if w.Status != StatusRunning && w.Status != StatusWaitingInput {
		s.mu.Unlock()
		return apperr.New(apperr.KindConflict, fmt.Sprintf("worker %s not cancellable", workerID))
	}
	w.Status = StatusFailed
	w.FailReason = "cancelled"
	w.UpdatedAt = time.Now()
	channelID, taskID := w.ChannelID, w.TaskID
	final := w.clone()
	s.mu.Unlock()
	metrics.ActiveWorkers.Dec()
	metrics.WorkerTransitionsTotal.WithLabelValues(string(StatusFailed)).Inc()

	if err := s.appendEnvelope(ctx, channelID, envelope.TypeWorkerFailed, envelope.WorkerFailedPayload{
		WorkerID: workerID, Reason: "cancelled",
	}, taskID, "", workerID); err != nil {
		return err
	}
	if s.OnFailed != nil {
		s.OnFailed(final)
	}
	return nil
}

func (s *Scheduler) appendEnvelope(ctx context.Context, channelID string, msgType envelope.MessageType, payload any, taskID, branchID, workerID string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	_, err = s.envStore.Append(ctx, envelope.Envelope{
		MessageID:   id.NewUUID(),
		MessageType: msgType,
		Ts:          time.Now(),
		ChannelID:   channelID,
		TaskID:      taskID,
		BranchID:    branchID,
		WorkerID:    workerID,
		Payload:     raw,
	})
	return err
}
