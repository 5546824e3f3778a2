package envelope

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/slopoverlord/slopoverlord/internal/apperr"
	"github.com/slopoverlord/slopoverlord/internal/store"
)

// Store is the Event Envelope & Store component. Writes to the same
// channelId are serialized by a single-owner lock (a keyed mutex);
// reads are lock-free against the adapter's own snapshot.
type Store struct {
	adapter store.Adapter

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New wraps a persistence Adapter.
func New(adapter store.Adapter) (*Store, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Store{
		adapter: adapter,
		locks:   make(map[string]*sync.Mutex),
		enc:     enc,
		dec:     dec,
	}, nil
}

func (s *Store) lockFor(channelID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[channelID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[channelID] = l
	}
	return l
}

// Append writes env to its ChannelID's log and returns the assigned
// position. Fails with apperr.KindDuplicateMessageID if env.MessageID
// already exists anywhere in the store.
func (s *Store) Append(ctx context.Context, env Envelope) (int64, error) {
	if env.ProtocolVersion == 0 {
		env.ProtocolVersion = ProtocolVersion
	}

	lock := s.lockFor(env.ChannelID)
	lock.Lock()
	defer lock.Unlock()

	raw, err := json.Marshal(env)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindMalformedRequest, "encode envelope", err)
	}
	compressed := s.enc.EncodeAll(raw, nil)

	position, err := s.adapter.AppendEnvelope(ctx, store.EnvelopeRow{
		ChannelID: env.ChannelID,
		MessageID: env.MessageID,
		Type:      string(env.MessageType),
		Ts:        env.Ts,
		Payload:   compressed,
	})
	if err != nil {
		return 0, err
	}
	return position, nil
}

// Read returns a lazy sequence of envelopes for channelID starting at
// fromPosition, in append order. Iteration stops and yields the error
// if the underlying scan fails.
func (s *Store) Read(ctx context.Context, channelID string, fromPosition int64) iter.Seq2[Envelope, error] {
	return func(yield func(Envelope, error) bool) {
		rows, err := s.adapter.ScanEnvelopes(ctx, channelID, fromPosition, 0)
		if err != nil {
			yield(Envelope{}, err)
			return
		}
		for _, row := range rows {
			raw, err := s.dec.DecodeAll(row.Payload, nil)
			if err != nil {
				if !yield(Envelope{}, apperr.Wrap(apperr.KindInternal, "decode envelope payload", err)) {
					return
				}
				continue
			}
			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				if !yield(Envelope{}, apperr.Wrap(apperr.KindInternal, "unmarshal envelope", err)) {
					return
				}
				continue
			}
			env.Position = row.Position
			if !yield(env, nil) {
				return
			}
		}
	}
}

// ReadAll drains Read into a slice; a convenience for callers (snapshot
// recomputation, tests) that don't need the lazy form.
func (s *Store) ReadAll(ctx context.Context, channelID string, fromPosition int64) ([]Envelope, error) {
	var out []Envelope
	for env, err := range s.Read(ctx, channelID, fromPosition) {
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}
