// Package dispatcher implements the Channel Dispatcher: the single
// ingest entry point tying the Route Decider, Branch Runtime, Worker
// Scheduler, Compactor, and Visor together per incoming message.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slopoverlord/slopoverlord/internal/apperr"
	"github.com/slopoverlord/slopoverlord/internal/branch"
	"github.com/slopoverlord/slopoverlord/internal/compactor"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/slopoverlord/slopoverlord/internal/envelope"
	"github.com/slopoverlord/slopoverlord/internal/id"
	"github.com/slopoverlord/slopoverlord/internal/metrics"
	"github.com/slopoverlord/slopoverlord/internal/router"
	"github.com/slopoverlord/slopoverlord/internal/tracing"
	"github.com/slopoverlord/slopoverlord/internal/util/sanitize"
	"github.com/slopoverlord/slopoverlord/internal/visor"
	"github.com/slopoverlord/slopoverlord/internal/worker"
)

// utilizationCapacity is the envelope-count heuristic capacity used to
// approximate contextUtilization, matching the proportional approach
// the Compactor itself uses for reduction sizing.
const utilizationCapacity = 500

const titleMaxChars = 72

// Dispatcher is the Channel Dispatcher.
type Dispatcher struct {
	envStore  *envelope.Store
	scheduler *worker.Scheduler
	branchRT  *branch.Runtime
	compactor *compactor.Compactor
	visor     *visor.Visor

	mu          sync.Mutex
	priorAction map[string]string
}

// New wires a Dispatcher from its collaborators.
func New(envStore *envelope.Store, scheduler *worker.Scheduler, branchRT *branch.Runtime, comp *compactor.Compactor, v *visor.Visor) *Dispatcher {
	return &Dispatcher{
		envStore:    envStore,
		scheduler:   scheduler,
		branchRT:    branchRT,
		compactor:   comp,
		visor:       v,
		priorAction: make(map[string]string),
	}
}

// Ingest appends the user's message, invokes the Route Decider,
// executes its decision, and notifies the Compactor and Visor. The
// decision envelope's position is always greater than the message's
// since the Store serializes appends per channelId and the decision is
// appended synchronously before the parallel fan-out begins.
func (d *Dispatcher) Ingest(ctx context.Context, channelID, userID, content string) error {
	ctx, span := tracing.Tracer().Start(ctx, "dispatcher.Ingest",
		trace.WithAttributes(attribute.String("channel_id", channelID)))
	defer span.End()

	if d.compactor.IsQuarantined(channelID) {
		err := apperr.New(apperr.KindChannelOverloaded, "channel "+channelID+" is quarantined")
		span.RecordError(err)
		return err
	}

	msgPayload, err := json.Marshal(envelope.MessageReceivedPayload{UserID: userID, Content: content})
	if err != nil {
		return fmt.Errorf("encode message payload: %w", err)
	}
	if _, err := d.envStore.Append(ctx, envelope.Envelope{
		MessageID:   id.NewUUID(),
		MessageType: envelope.TypeChannelMessageReceived,
		Ts:          time.Now(),
		ChannelID:   channelID,
		Payload:     msgPayload,
	}); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	features := d.featuresFor(channelID, content)
	decision := router.Decide(content, features)
	metrics.RouteDecisionsTotal.WithLabelValues(decision.Action).Inc()
	span.SetAttributes(attribute.String("route.action", decision.Action))

	d.mu.Lock()
	d.priorAction[channelID] = decision.Action
	d.mu.Unlock()

	decisionPayload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("encode route decision: %w", err)
	}
	if _, err := d.envStore.Append(ctx, envelope.Envelope{
		MessageID:   id.NewUUID(),
		MessageType: envelope.TypeChannelRouteDecided,
		Ts:          time.Now(),
		ChannelID:   channelID,
		Payload:     decisionPayload,
	}); err != nil {
		return fmt.Errorf("append route decision: %w", err)
	}

	var wg sync.WaitGroup
	var execErr, visorErr error
	wg.Add(3)

	go func() {
		defer wg.Done()
		execErr = d.execute(ctx, channelID, content, decision)
	}()
	go func() {
		defer wg.Done()
		d.compactor.Observe(ctx, channelID, d.utilization(ctx, channelID))
	}()
	go func() {
		defer wg.Done()
		visorErr = d.visor.OnMessageReceived(ctx, channelID, content)
	}()
	wg.Wait()

	if execErr != nil {
		return execErr
	}
	return visorErr
}

func (d *Dispatcher) execute(ctx context.Context, channelID, content string, decision router.RouteDecision) error {
	switch decision.Action {
	case router.ActionSpawnWorker:
		_, err := d.scheduler.Spawn(ctx, worker.Spec{
			ChannelID: channelID,
			Title:     truncate(content, titleMaxChars),
			Objective: content,
			Mode:      worker.ModeFireAndForget,
		})
		return err

	case router.ActionSpawnBranch:
		return d.spawnBranch(ctx, channelID, content)

	case router.ActionRespond:
		return d.respond(ctx, channelID, content)

	default:
		return fmt.Errorf("unknown route action %q", decision.Action)
	}
}

func (d *Dispatcher) spawnBranch(ctx context.Context, channelID, content string) error {
	branchID := id.Generate()

	spawnedPayload, err := json.Marshal(envelope.BranchSpawnedPayload{BranchID: branchID, Prompt: content})
	if err != nil {
		return fmt.Errorf("encode branch spawned payload: %w", err)
	}
	if _, err := d.envStore.Append(ctx, envelope.Envelope{
		MessageID:   id.NewUUID(),
		MessageType: envelope.TypeBranchSpawned,
		Ts:          time.Now(),
		ChannelID:   channelID,
		BranchID:    branchID,
		Payload:     spawnedPayload,
	}); err != nil {
		return fmt.Errorf("append branch spawned: %w", err)
	}

	concl, err := d.branchRT.Run(ctx, content, nil, nil)
	if err != nil {
		return fmt.Errorf("run branch: %w", err)
	}

	conclPayload, err := json.Marshal(concl)
	if err != nil {
		return fmt.Errorf("encode branch conclusion payload: %w", err)
	}
	_, err = d.envStore.Append(ctx, envelope.Envelope{
		MessageID:   id.NewUUID(),
		MessageType: envelope.TypeBranchConclusion,
		Ts:          time.Now(),
		ChannelID:   channelID,
		BranchID:    branchID,
		Payload:     conclPayload,
	})
	return err
}

// respond posts the inline reply as a channel message authored by the
// routed-to agent, reusing channel.message.received's payload shape
// since the spec defines no dedicated inline-reply envelope type.
func (d *Dispatcher) respond(ctx context.Context, channelID, content string) error {
	concl, err := d.branchRT.Run(ctx, content, nil, nil)
	if err != nil {
		return fmt.Errorf("run inline reply: %w", err)
	}
	payload, err := json.Marshal(envelope.MessageReceivedPayload{UserID: "agent:assistant", Content: concl.Summary})
	if err != nil {
		return fmt.Errorf("encode inline reply payload: %w", err)
	}
	_, err = d.envStore.Append(ctx, envelope.Envelope{
		MessageID:   id.NewUUID(),
		MessageType: envelope.TypeChannelMessageReceived,
		Ts:          time.Now(),
		ChannelID:   channelID,
		Payload:     payload,
	})
	return err
}

func (d *Dispatcher) featuresFor(channelID, content string) router.Features {
	d.mu.Lock()
	prior := d.priorAction[channelID]
	d.mu.Unlock()

	openWorkers := 0
	for _, w := range d.scheduler.List() {
		if w.ChannelID == channelID && (w.Status == worker.StatusQueued || w.Status == worker.StatusRunning || w.Status == worker.StatusWaitingInput) {
			openWorkers++
		}
	}

	return router.Features{
		PriorAction:        prior,
		OpenWorkers:        openWorkers,
		ChannelUtilization: 0, // refined by utilization() after this decision is made
		KeywordHits:        strings.Count(strings.ToLower(content), "todo"),
	}
}

// utilization approximates contextUtilization as the channel's envelope
// count against a fixed capacity, matching the Compactor's own
// proportional accounting.
func (d *Dispatcher) utilization(ctx context.Context, channelID string) float64 {
	envs, err := d.envStore.ReadAll(ctx, channelID, 0)
	if err != nil {
		return 0
	}
	u := float64(len(envs)) / utilizationCapacity
	if u > 1 {
		u = 1
	}
	return u
}

// truncate sanitizes s (stripping HTML/control characters, since it
// arrives as raw channel content) and shortens it, used to derive a
// worker title from the triggering message. Input longer than max runes
// is cut to max runes and marked with a trailing "…"; sanitize.Title
// also stops adding runes once the text before the "…" reaches max
// bytes.
func truncate(s string, max int) string {
	clean := []rune(sanitize.StripHTML(strings.TrimSpace(s)))
	if len(clean) <= max {
		return sanitize.Title(string(clean), max)
	}
	return sanitize.Title(string(clean[:max]), max) + "…"
}
