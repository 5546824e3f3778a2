package store

import (
	"context"
	"time"
)

// EnvelopeRow is the raw, backend-agnostic row shape for an appended
// event. The envelope package owns encoding/decoding of Payload; the
// adapter only ever sees opaque bytes plus the columns it must index
// or enforce uniqueness on.
type EnvelopeRow struct {
	ChannelID string
	Position  int64
	MessageID string
	Type      string
	Ts        time.Time
	Payload   []byte
}

// Adapter is the Persistence Adapter described in the spec: uniform
// key/ordered-log operations, implementable by an embedded SQL engine
// or a purely in-memory backend. Aggregate read/write is serialized per
// aggregate id by the caller (internal/envelope and friends each hold
// their own keyed mutex); the adapter itself only guarantees atomicity
// of a single call.
type Adapter interface {
	// AppendEnvelope assigns the next position for row.ChannelID and
	// inserts the row. Returns apperr with KindDuplicateMessageID if
	// row.MessageID already exists anywhere in the store.
	AppendEnvelope(ctx context.Context, row EnvelopeRow) (position int64, err error)

	// ScanEnvelopes returns up to limit rows for channelID with
	// position >= fromPosition, ordered by position ascending. limit<=0
	// means unlimited.
	ScanEnvelopes(ctx context.Context, channelID string, fromPosition int64, limit int) ([]EnvelopeRow, error)

	// LatestPosition returns the highest position appended for
	// channelID, or -1 if the channel has no envelopes.
	LatestPosition(ctx context.Context, channelID string) (int64, error)

	// PutAggregate upserts an opaque aggregate document under
	// (kind, id).
	PutAggregate(ctx context.Context, kind, id string, data []byte) error

	// GetAggregate fetches an aggregate document. ok is false if absent.
	GetAggregate(ctx context.Context, kind, id string) (data []byte, ok bool, err error)

	// DeleteAggregate removes an aggregate document. Not an error if
	// absent.
	DeleteAggregate(ctx context.Context, kind, id string) error

	// ListAggregates returns every (id, data) pair stored under kind, in
	// unspecified order.
	ListAggregates(ctx context.Context, kind string) (ids []string, docs [][]byte, err error)

	// Close releases backend resources.
	Close() error
}
