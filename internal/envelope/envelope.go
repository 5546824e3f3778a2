// Package envelope implements the Event Envelope & Store: typed,
// append-only event records with a persistent log per channel.
package envelope

import (
	"encoding/json"
	"time"
)

// MessageType tags the payload variant an Envelope carries.
type MessageType string

const (
	TypeChannelMessageReceived   MessageType = "channel.message.received"
	TypeChannelRouteDecided      MessageType = "channel.route.decided"
	TypeBranchSpawned            MessageType = "branch.spawned"
	TypeBranchConclusion         MessageType = "branch.conclusion"
	TypeWorkerSpawned            MessageType = "worker.spawned"
	TypeWorkerProgress           MessageType = "worker.progress"
	TypeWorkerCompleted          MessageType = "worker.completed"
	TypeWorkerFailed             MessageType = "worker.failed"
	TypeCompactorThresholdHit    MessageType = "compactor.threshold.hit"
	TypeCompactorSummaryApplied MessageType = "compactor.summary.applied"
	TypeVisorBulletinGenerated   MessageType = "visor.bulletin.generated"
	TypeActorDiscussionStarted   MessageType = "actor.discussion.started"
	TypeActorDiscussionConcluded MessageType = "actor.discussion.concluded"
)

// ProtocolVersion is the current envelope wire format version.
const ProtocolVersion = 1

// Envelope is the typed event record. It is immutable after Append;
// unknown Extensions keys are preserved verbatim on read.
type Envelope struct {
	ProtocolVersion int                        `json:"protocolVersion"`
	MessageID       string                     `json:"messageId"`
	MessageType     MessageType                `json:"messageType"`
	Ts              time.Time                  `json:"ts"`
	TraceID         string                     `json:"traceId"`
	ChannelID       string                     `json:"channelId"`
	TaskID          string                     `json:"taskId,omitempty"`
	BranchID        string                     `json:"branchId,omitempty"`
	WorkerID        string                     `json:"workerId,omitempty"`
	Payload         json.RawMessage            `json:"payload"`
	Extensions      map[string]json.RawMessage `json:"extensions,omitempty"`

	// Position is set on read (Append returns it instead); not part of
	// the wire payload (the store computes it, callers never supply it).
	Position int64 `json:"-"`
}

// Payload variants, one per MessageType. Marshalled into Envelope.Payload.

type MessageReceivedPayload struct {
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

type RouteDecidedPayload struct {
	Action      string  `json:"action"`
	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence"`
	TokenBudget int     `json:"tokenBudget"`
}

type BranchSpawnedPayload struct {
	BranchID string `json:"branchId"`
	Prompt   string `json:"prompt"`
}

type BranchConclusionPayload struct {
	Summary     string   `json:"summary"`
	ArtifactRefs []string `json:"artifactRefs"`
	MemoryRefs   []string `json:"memoryRefs"`
	PromptTokens int      `json:"promptTokens"`
	CompletionTokens int  `json:"completionTokens"`
}

type WorkerSpawnedPayload struct {
	WorkerID  string `json:"workerId"`
	TaskID    string `json:"taskId"`
	Title     string `json:"title"`
	Objective string `json:"objective"`
}

type WorkerProgressPayload struct {
	WorkerID string `json:"workerId"`
	Status   string `json:"status"`
	Note     string `json:"note,omitempty"`
}

type WorkerCompletedPayload struct {
	WorkerID string `json:"workerId"`
	Report   string `json:"report"`
}

type WorkerFailedPayload struct {
	WorkerID string `json:"workerId"`
	Reason   string `json:"reason"`
}

type CompactorThresholdHitPayload struct {
	Level      string  `json:"level"` // soft|aggressive|emergency
	Utilization float64 `json:"utilization"`
}

type CompactorSummaryAppliedPayload struct {
	Digest              string   `json:"digest"`
	SupersededMessageIDs []string `json:"supersededMessageIds"`
}

type VisorBulletinGeneratedPayload struct {
	Summary string   `json:"summary"`
	TaskIDs []string `json:"taskIds"`
}

type ActorDiscussionStartedPayload struct {
	FromActorID string   `json:"fromActorId"`
	ToActorIDs  []string `json:"toActorIds"`
	Topic       string   `json:"topic"`
}

type ActorDiscussionConcludedPayload struct {
	FromActorID string `json:"fromActorId"`
	Outcome     string `json:"outcome"`
}
