// Command routerctl starts a router runtime and prints diagnostic events
// (endpoint status, route changes, subscription registrations) to stdout
// until interrupted. It replaces the teacher's interactive debug tool with
// a watch-only view onto the router's bus side channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/skobkin/mavrouter/internal/app"
	"github.com/skobkin/mavrouter/internal/bus"
	"github.com/skobkin/mavrouter/internal/events"
	"github.com/skobkin/mavrouter/internal/subscription"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run routerctl", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file (default: OS config dir)")
	watchFor := flag.Duration("watch-for", 0, "stop watching after this duration (default: until interrupted)")
	subscribeTargetSystem := flag.Uint("subscribe-target-system", 0, "if set, also subscribe to frames targeting this system id and log deliveries")
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
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()

	logger := rt.LogManager.Logger("cli")
	logger.Info("routerctl attached", "version", app.BuildVersion(), "endpoints", len(rt.Drivers))

	watch(ctx, rt.Bus, logger)

	if *subscribeTargetSystem > 0 {
		if err := watchSubscription(ctx, rt, logger, uint8(*subscribeTargetSystem)); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	if *watchFor > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(*watchFor):
		}

		return nil
	}

	<-ctx.Done()

	return nil
}

// watchSubscription registers a live subscription for frames targeting
// targetSystem and logs every delivery until ctx is done. The handle id is
// a fresh UUID per run, matching how an embedding process would identify
// itself across a Subscribe/Unsubscribe pair.
func watchSubscription(ctx context.Context, rt *app.Runtime, logger *slog.Logger, targetSystem uint8) error {
	handle := subscription.NewHandle(uuid.NewString(), 32)
	query := subscription.Query{TargetSystem: targetSystem}
	if err := rt.Router.Subscribe(ctx, query, handle); err != nil {
		return err
	}
	logger.Info("subscribed", "handle_id", handle.ID, "target_system", targetSystem)

	go func() {
		defer func() {
			if err := rt.Router.Unsubscribe(context.Background(), handle.ID); err != nil {
				logger.Warn("unsubscribe", "handle_id", handle.ID, "error", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-handle.Messages:
				if !ok {
					return
				}
				logger.Info("delivery", "handle_id", handle.ID, "message", delivery.Message)
			}
		}
	}()

	return nil
}

func watch(ctx context.Context, b bus.MessageBus, logger *slog.Logger) {
	statusSub := b.Subscribe(events.TopicEndpointStatus)
	routeSub := b.Subscribe(events.TopicRouteUpdated)
	subSub := b.Subscribe(events.TopicSubscriptionRegistered)

	go func() {
		defer b.Unsubscribe(statusSub, events.TopicEndpointStatus)
		defer b.Unsubscribe(routeSub, events.TopicRouteUpdated)
		defer b.Unsubscribe(subSub, events.TopicSubscriptionRegistered)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-statusSub:
				if !ok {
					continue
				}
				if status, ok := raw.(events.EndpointStatus); ok {
					logger.Info("endpoint", "name", status.Endpoint, "state", status.State, "error", status.Err)
				}
			case raw, ok := <-routeSub:
				if !ok {
					continue
				}
				if route, ok := raw.(events.RouteUpdated); ok {
					logger.Info("route", "system_id", route.SystemID, "component_id", route.ComponentID, "endpoint", route.Endpoint)
				}
			case raw, ok := <-subSub:
				if !ok {
					continue
				}
				if reg, ok := raw.(events.SubscriptionRegistered); ok {
					logger.Info("subscription", "handle_id", reg.HandleID)
				}
			}
		}
	}()
}
