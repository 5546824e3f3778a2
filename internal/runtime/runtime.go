// Package runtime constructs the process-wide object graph: the single
// root value every other package is threaded through, per the design
// note that process state lives in one root with atomic swap+notify on
// reload rather than scattered globals.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/slopoverlord/slopoverlord/internal/actorboard"
	"github.com/slopoverlord/slopoverlord/internal/bootstrap"
	"github.com/slopoverlord/slopoverlord/internal/branch"
	"github.com/slopoverlord/slopoverlord/internal/compactor"
	"github.com/slopoverlord/slopoverlord/internal/config"
	"github.com/slopoverlord/slopoverlord/internal/dispatcher"
	"github.com/slopoverlord/slopoverlord/internal/envelope"
	"github.com/slopoverlord/slopoverlord/internal/provider"
	"github.com/slopoverlord/slopoverlord/internal/session"
	"github.com/slopoverlord/slopoverlord/internal/store"
	"github.com/slopoverlord/slopoverlord/internal/toolauth"
	"github.com/slopoverlord/slopoverlord/internal/visor"
	"github.com/slopoverlord/slopoverlord/internal/worker"
)

// Runtime is the assembled set of collaborators backing one running
// process. Construct once via New and thread through; never reach for
// package-level globals instead.
type Runtime struct {
	ConfigStore *config.Store

	Adapter   store.Adapter
	Envelopes *envelope.Store

	Board      *actorboard.Board
	Authorizer *toolauth.Authorizer
	RateLimits *toolauth.Limiters

	BranchRuntime *branch.Runtime
	Scheduler     *worker.Scheduler
	Sessions      *session.Engine
	Visor         *visor.Visor
	Dispatcher    *dispatcher.Dispatcher
}

// New assembles a Runtime from cfg. The persistence Adapter is SQLite
// unless cfg.DBPath is ":memory:", in which case the in-memory adapter
// is used (handy for tests and ephemeral runs).
func New(ctx context.Context, cfgStore *config.Store) (*Runtime, error) {
	cfg := cfgStore.Load()

	adapter, err := openAdapter(cfg)
	if err != nil {
		return nil, fmt.Errorf("open persistence adapter: %w", err)
	}

	envStore, err := envelope.New(adapter)
	if err != nil {
		return nil, fmt.Errorf("create envelope store: %w", err)
	}

	board, err := bootstrap.Board(ctx, adapter)
	if err != nil {
		return nil, fmt.Errorf("bootstrap actor board: %w", err)
	}

	authorizer := toolauth.New(func(agentID string) string {
		return cfg.ResolvePath(filepath.Join("agents", agentID, "tools", "tools.json"))
	})
	rateLimits := toolauth.NewLimiters()

	prov := provider.Select(cfg.Provider.Models)
	branchRT := branch.New(prov)
	scheduler := worker.New(envStore)
	sessions := session.New(cfg.WorkspaceRoot, cfg.InlineAttachmentCapBytes)
	sessions.SetProvider(prov)

	visorEngine := visor.New(cfg.WorkspaceRoot, envStore, board, scheduler)
	scheduler.OnCompleted = visorEngine.HandleWorkerCompleted
	scheduler.OnFailed = visorEngine.HandleWorkerFailed

	comp := compactor.New(envStore, compactor.SummarizerFunc(func(ctx context.Context, envs []envelope.Envelope) (string, error) {
		return prov.Respond(ctx, summarizationPrompt(envs), nil)
	}))

	disp := dispatcher.New(envStore, scheduler, branchRT, comp, visorEngine)

	rt := &Runtime{
		ConfigStore:   cfgStore,
		Adapter:       adapter,
		Envelopes:     envStore,
		Board:         board,
		Authorizer:    authorizer,
		RateLimits:    rateLimits,
		BranchRuntime: branchRT,
		Scheduler:     scheduler,
		Sessions:      sessions,
		Visor:         visorEngine,
		Dispatcher:    disp,
	}

	go rt.watchConfig(ctx, cfgStore)

	return rt, nil
}

// watchConfig swaps the session engine's model provider whenever the
// config snapshot changes (e.g. a model becomes configured), without
// restarting the process. The branch runtime behind the dispatcher's
// inline replies and the compactor's summarizer keep the provider
// selected in New.
func (rt *Runtime) watchConfig(ctx context.Context, cfgStore *config.Store) {
	updates := cfgStore.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			prov := provider.Select(cfg.Provider.Models)
			rt.Sessions.SetProvider(prov)
			slog.Info("runtime reconfigured", "provider_configured", cfg.Provider.Configured())
		}
	}
}

func openAdapter(cfg *config.Config) (store.Adapter, error) {
	dbPath := cfg.ResolvePath(cfg.DBPath)
	if dbPath == ":memory:" {
		return store.NewMemoryAdapter(), nil
	}
	return store.OpenSQLiteAdapter(dbPath)
}

func summarizationPrompt(envs []envelope.Envelope) string {
	return fmt.Sprintf("summarize %d superseded events", len(envs))
}

// Close releases the persistence adapter.
func (rt *Runtime) Close() error {
	return rt.Adapter.Close()
}
