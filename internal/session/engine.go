package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/slopoverlord/slopoverlord/internal/apperr"
	"github.com/slopoverlord/slopoverlord/internal/id"
	"github.com/slopoverlord/slopoverlord/internal/metrics"
	"github.com/slopoverlord/slopoverlord/internal/provider"
	"github.com/slopoverlord/slopoverlord/internal/router"
)

const bootstrapTag = "agent_session_context_bootstrap_v1"

// scaffoldDocuments are the per-agent context files folded into a new
// session's bootstrap message, resolved at agents/<agentId>/<name> under
// the workspace root. Missing files contribute an empty section rather
// than failing session creation.
var scaffoldDocuments = []string{"Agents.md", "User.md", "Identity.md", "Soul.md"}

type sessionState struct {
	mu      sync.Mutex
	summary Summary
	log     *diskLog
	seq     int64
	run     RunState
	bc      *broadcaster
}

// Engine is the Agent Session Engine: creates and drives sessions,
// persists their event logs to disk, and fans out live updates.
type Engine struct {
	workspaceRoot       string
	inlineAttachmentCap int64
	provider            provider.Provider

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// New creates an Engine rooted at workspaceRoot, using inlineAttachmentCap
// bytes as the threshold above which attachment content is dropped. It
// replies inline (provider.NullProvider) until SetProvider is called.
func New(workspaceRoot string, inlineAttachmentCap int64) *Engine {
	return &Engine{
		workspaceRoot:       workspaceRoot,
		inlineAttachmentCap: inlineAttachmentCap,
		provider:            provider.NullProvider{},
		sessions:            make(map[string]*sessionState),
	}
}

// SetProvider swaps the model provider used for assistant replies,
// letting the runtime rewire it on config hot-reload.
func (e *Engine) SetProvider(p provider.Provider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.provider = p
}

func (e *Engine) sessionsDir() string {
	return filepath.Join(e.workspaceRoot, "sessions")
}

func (e *Engine) agentDir(agentID string) string {
	return filepath.Join(e.workspaceRoot, "agents", agentID)
}

// CreateSession starts a new session for agentID and returns its
// summary plus the bootstrap events it emitted.
func (e *Engine) CreateSession(ctx context.Context, agentID, title, parentSessionID string) (Summary, []Event, error) {
	sessionID := id.NewUUID()
	now := time.Now()

	log, err := openDiskLog(e.sessionsDir(), sessionID)
	if err != nil {
		return Summary{}, nil, apperr.Wrap(apperr.KindInternal, "open session log", err)
	}

	st := &sessionState{
		log: log,
		run: RunDone,
		bc:  newBroadcaster(),
		summary: Summary{
			ID:              sessionID,
			AgentID:         agentID,
			Title:           title,
			ParentSessionID: parentSessionID,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}

	e.mu.Lock()
	e.sessions[sessionID] = st
	e.mu.Unlock()
	metrics.ActiveSessions.Inc()

	created, err := st.appendLocked(EventSessionCreated, SessionCreatedPayload{
		AgentID: agentID, Title: title, ParentSessionID: parentSessionID,
	})
	if err != nil {
		return Summary{}, nil, err
	}

	bootstrap, err := st.appendLocked(EventMessage, MessagePayload{
		Role:    RoleSystem,
		Content: e.renderBootstrapContent(agentID),
	})
	if err != nil {
		return Summary{}, nil, err
	}

	return st.summary, []Event{created, bootstrap}, nil
}

func (e *Engine) renderBootstrapContent(agentID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", bootstrapTag)
	for _, name := range scaffoldDocuments {
		content, err := os.ReadFile(filepath.Join(e.agentDir(agentID), name))
		if err != nil {
			content = nil
		}
		fmt.Fprintf(&b, "## %s\n%s\n", name, string(content))
	}
	return b.String()
}

func (e *Engine) get(sessionID string) (*sessionState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.sessions[sessionID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "session "+sessionID)
	}
	return st, nil
}

// appendLocked assigns the next sequence number, persists the event to
// disk, updates the summary, and fans it out to subscribers. Acquires
// st.mu itself; callers must not hold it.
func (st *sessionState) appendLocked(t EventType, payload any) (Event, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	raw, err := marshalPayload(payload)
	if err != nil {
		return Event{}, err
	}

	st.seq++
	ev := Event{
		Seq:       st.seq,
		SessionID: st.summary.ID,
		Type:      t,
		Ts:        time.Now(),
		Payload:   raw,
	}
	if err := st.log.append(ev); err != nil {
		return Event{}, apperr.Wrap(apperr.KindInternal, "append session event", err)
	}

	st.summary.UpdatedAt = ev.Ts
	if t == EventMessage {
		if mp, ok := payload.(MessagePayload); ok {
			st.summary.MessageCount++
			st.summary.LastMessagePreview = preview(mp.Content)
		}
	}

	st.bc.send(StreamUpdate{Kind: StreamKindEvent, Event: &ev})
	return ev, nil
}

// PostMessageRequest is the input to PostMessage.
type PostMessageRequest struct {
	Content     string
	Attachments []Attachment
}

// PostMessage appends the user message, synthesizes a run_status
// sequence, appends the assistant reply, and returns every event
// produced plus the RouteDecision as if the message had arrived on the
// session's synthetic channel.
func (e *Engine) PostMessage(ctx context.Context, agentID, sessionID string, req PostMessageRequest) ([]Event, router.RouteDecision, error) {
	st, err := e.get(sessionID)
	if err != nil {
		return nil, router.RouteDecision{}, err
	}

	var events []Event

	userEv, err := st.appendLocked(EventMessage, MessagePayload{
		Role: RoleUser, Content: req.Content, Attachments: req.Attachments,
	})
	if err != nil {
		return nil, router.RouteDecision{}, err
	}
	events = append(events, userEv)

	sequence := []RunState{RunThinking}
	if containsSearchSignal(req.Content) {
		sequence = append(sequence, RunSearching)
	}
	sequence = append(sequence, RunResponding, RunDone)

	for _, state := range sequence {
		st.mu.Lock()
		st.run = state
		st.mu.Unlock()
		ev, err := st.appendLocked(EventRunStatus, RunStatusPayload{State: state})
		if err != nil {
			return nil, router.RouteDecision{}, err
		}
		events = append(events, ev)
	}

	decision := router.Decide(req.Content, router.Features{})

	e.mu.RLock()
	p := e.provider
	e.mu.RUnlock()
	reply, err := p.Respond(ctx, req.Content, nil)
	if err != nil {
		return nil, router.RouteDecision{}, apperr.Wrap(apperr.KindProviderUnavailable, "provider respond", err)
	}
	assistantEv, err := st.appendLocked(EventMessage, MessagePayload{Role: RoleAssistant, Content: reply})
	if err != nil {
		return nil, router.RouteDecision{}, err
	}
	events = append(events, assistantEv)

	return events, decision, nil
}

// containsSearchSignal is a coarse heuristic deciding whether the
// synthesized run sequence includes a "searching" phase.
func containsSearchSignal(content string) bool {
	lower := strings.ToLower(content)
	return strings.Contains(lower, "find") || strings.Contains(lower, "search") || strings.Contains(lower, "look up")
}

// Control appends a run_control event and updates run state. interrupt
// transitions any in-flight run to interrupted.
func (e *Engine) Control(ctx context.Context, agentID, sessionID, action, requestedBy, reason string) (Event, error) {
	st, err := e.get(sessionID)
	if err != nil {
		return Event{}, err
	}

	switch action {
	case "pause":
		st.mu.Lock()
		st.run = RunPaused
		st.mu.Unlock()
	case "resume":
		st.mu.Lock()
		st.run = RunResponding
		st.mu.Unlock()
	case "interrupt":
		st.mu.Lock()
		st.run = RunInterrupted
		st.mu.Unlock()
	default:
		return Event{}, apperr.New(apperr.KindMalformedRequest, "unknown control action "+action)
	}

	return st.appendLocked(EventRunControl, RunControlPayload{
		Action: action, RequestedBy: requestedBy, Reason: reason,
	})
}

// Stream subscribes to sessionID's live updates. The subscription's
// first chunk is always session_ready.
func (e *Engine) Stream(ctx context.Context, agentID, sessionID string) (*Subscription, error) {
	st, err := e.get(sessionID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	sub := st.bc.subscribe()
	sub.ch <- StreamUpdate{Kind: StreamKindSessionReady}
	st.mu.Unlock()

	return sub, nil
}

// Unsubscribe detaches sub from sessionID's fan-out.
func (e *Engine) Unsubscribe(sessionID string, sub *Subscription) {
	st, err := e.get(sessionID)
	if err != nil {
		return
	}
	st.mu.Lock()
	st.bc.unsubscribe(sub)
	st.mu.Unlock()
}

// DeleteSession closes out subscribers with end_of_stream and removes
// the session from the in-memory index. The on-disk log is left intact.
func (e *Engine) DeleteSession(sessionID string) error {
	e.mu.Lock()
	st, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return apperr.New(apperr.KindNotFound, "session "+sessionID)
	}
	delete(e.sessions, sessionID)
	e.mu.Unlock()
	metrics.ActiveSessions.Dec()

	st.mu.Lock()
	defer st.mu.Unlock()
	st.bc.closeAll()
	return st.log.close()
}

// NewAttachment builds an Attachment from raw upload bytes, dropping
// inline content (but keeping metadata) when content exceeds the
// configured inline cap.
func (e *Engine) NewAttachment(name, mimeType string, content []byte) Attachment {
	a := Attachment{
		ID:        id.Generate(),
		Name:      name,
		MimeType:  mimeType,
		SizeBytes: int64(len(content)),
	}
	if int64(len(content)) > e.inlineAttachmentCap {
		a.Truncated = true
		return a
	}
	a.ContentBase64 = base64.StdEncoding.EncodeToString(content)
	return a
}
