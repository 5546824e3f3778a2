package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/slopoverlord/slopoverlord/internal/config"
	"github.com/slopoverlord/slopoverlord/internal/logging"
	"github.com/slopoverlord/slopoverlord/internal/runtime"
	"github.com/slopoverlord/slopoverlord/internal/tracing"
)

var version = "dev"

func main() {
	logging.Setup()

	fs := flag.NewFlagSet("slopoverlord", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the config file (defaults to <workspaceRoot>/slopoverlord.json)")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.PrintBanner(version, cfg.WorkspaceRoot)

	cfgStore := config.NewStore(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, "slopoverlord", version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	rt, err := runtime.New(ctx, cfgStore)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer rt.Close()

	slog.Info("slopoverlord ready", "workspace_root", cfg.WorkspaceRoot, "provider_configured", cfg.Provider.Configured())

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}
