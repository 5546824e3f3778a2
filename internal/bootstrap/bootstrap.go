// Package bootstrap seeds first-run state into the persistence
// Adapter. This is a no-op once that state already exists.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/slopoverlord/slopoverlord/internal/actorboard"
	"github.com/slopoverlord/slopoverlord/internal/store"
)

const (
	boardAggregateKind = "board"
	boardAggregateID   = "default"
)

// Board loads the persisted actor board, seeding it with
// actorboard.NewDefault() on first run. This is a no-op if a board
// document already exists.
func Board(ctx context.Context, adapter store.Adapter) (*actorboard.Board, error) {
	data, ok, err := adapter.GetAggregate(ctx, boardAggregateKind, boardAggregateID)
	if err != nil {
		return nil, fmt.Errorf("load board aggregate: %w", err)
	}
	if ok {
		var b actorboard.Board
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("unmarshal board aggregate: %w", err)
		}
		slog.Info("bootstrap: loaded existing actor board", "nodes", len(b.Nodes), "links", len(b.Links))
		return &b, nil
	}

	b := actorboard.NewDefault()
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode default board: %w", err)
	}
	if err := adapter.PutAggregate(ctx, boardAggregateKind, boardAggregateID, raw); err != nil {
		return nil, fmt.Errorf("persist default board: %w", err)
	}

	slog.Info("bootstrap: seeded default actor board", "nodes", len(b.Nodes), "links", len(b.Links))
	return b, nil
}
