// Command router runs the MAVLink router as a headless daemon: load
// config, bring up the dialect table, the subscription cache, and one
// driver per configured endpoint, then block until an OS signal requests
// shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/skobkin/mavrouter/internal/app"
	"github.com/skobkin/mavrouter/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run router", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file (default: OS config dir)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, err := app.ResolvePaths()
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	if *configPath != "" {
		paths.ConfigFile = *configPath
	}

	rt, err := app.InitializeWithPaths(ctx, paths)
	if err != nil {
		if errors.Is(err, config.NoDialectSet) {
			return fmt.Errorf("startup: %w (set dialect_path in %s)", err, paths.ConfigFile)
		}

		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()

	logger := rt.LogManager.Logger("cli")
	logger.Info("mavrouter started", "version", app.BuildVersion(), "build_date", app.BuildDateYMD(),
		"system_id", rt.Config.SystemID, "component_id", rt.Config.ComponentID, "endpoints", len(rt.Drivers))

	<-ctx.Done()
	logger.Info("shutdown signal received")

	return nil
}
