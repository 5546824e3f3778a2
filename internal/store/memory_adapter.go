package store

import (
	"context"
	"sync"

	"github.com/slopoverlord/slopoverlord/internal/apperr"
)

// MemoryAdapter is the purely in-memory Adapter implementation used by
// tests; it mirrors every operation SQLiteAdapter performs.
type MemoryAdapter struct {
	mu sync.Mutex

	byChannel map[string][]EnvelopeRow // channelID -> ordered rows
	messageID map[string]struct{}      // global message id set

	aggregates map[string]map[string][]byte // kind -> id -> data
}

// NewMemoryAdapter constructs an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		byChannel:  make(map[string][]EnvelopeRow),
		messageID:  make(map[string]struct{}),
		aggregates: make(map[string]map[string][]byte),
	}
}

func (a *MemoryAdapter) AppendEnvelope(_ context.Context, row EnvelopeRow) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.messageID[row.MessageID]; exists {
		return 0, apperr.New(apperr.KindDuplicateMessageID, row.MessageID)
	}

	position := int64(len(a.byChannel[row.ChannelID]))
	row.Position = position
	a.byChannel[row.ChannelID] = append(a.byChannel[row.ChannelID], row)
	a.messageID[row.MessageID] = struct{}{}
	return position, nil
}

func (a *MemoryAdapter) ScanEnvelopes(_ context.Context, channelID string, fromPosition int64, limit int) ([]EnvelopeRow, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows := a.byChannel[channelID]
	var out []EnvelopeRow
	for _, r := range rows {
		if r.Position < fromPosition {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (a *MemoryAdapter) LatestPosition(_ context.Context, channelID string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows := a.byChannel[channelID]
	if len(rows) == 0 {
		return -1, nil
	}
	return rows[len(rows)-1].Position, nil
}

func (a *MemoryAdapter) PutAggregate(_ context.Context, kind, id string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.aggregates[kind] == nil {
		a.aggregates[kind] = make(map[string][]byte)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	a.aggregates[kind][id] = cp
	return nil
}

func (a *MemoryAdapter) GetAggregate(_ context.Context, kind, id string) ([]byte, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, ok := a.aggregates[kind][id]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}

func (a *MemoryAdapter) DeleteAggregate(_ context.Context, kind, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.aggregates[kind], id)
	return nil
}

func (a *MemoryAdapter) ListAggregates(_ context.Context, kind string) ([]string, [][]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var ids []string
	var docs [][]byte
	for id, data := range a.aggregates[kind] {
		ids = append(ids, id)
		cp := make([]byte, len(data))
		copy(cp, data)
		docs = append(docs, cp)
	}
	return ids, docs, nil
}

func (a *MemoryAdapter) Close() error { return nil }
