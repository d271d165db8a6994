package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/skobkin/mavrouter/internal/bus"
	"github.com/skobkin/mavrouter/internal/config"
	"github.com/skobkin/mavrouter/internal/connstr"
	"github.com/skobkin/mavrouter/internal/logging"
	"github.com/skobkin/mavrouter/internal/mavlink"
	"github.com/skobkin/mavrouter/internal/persistence"
	"github.com/skobkin/mavrouter/internal/router"
	"github.com/skobkin/mavrouter/internal/subscription"
	"github.com/skobkin/mavrouter/internal/transport"
)

// Runtime wires every long-lived component together for one router
// process: config, logging, the subscription cache, the router's control
// task, and one driver goroutine per configured endpoint.
type Runtime struct {
	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.RouterConfig

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	DB         *sql.DB

	WriterQueue      *persistence.WriterQueue
	SubscriptionRepo *persistence.SubscriptionRepo
	Subscriptions    *subscription.Registry

	Router  *router.Router
	Drivers []transport.Driver
}

// Initialize resolves the default OS paths, then calls InitializeWithPaths.
func Initialize(parent context.Context) (*Runtime, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, err
	}

	return InitializeWithPaths(parent, paths)
}

// InitializeWithPaths loads config from paths.ConfigFile, opens the
// subscription cache, builds the router's dialect table and drivers, and
// starts every long-running goroutine (the router's control task plus one
// per endpoint). Callers must eventually call Close.
func InitializeWithPaths(parent context.Context, paths Paths) (*Runtime, error) {
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Info("starting mavrouter runtime", "version", BuildVersion(), "build_date", BuildDateYMD())

	dbPath := cfg.SubscriptionCache
	if dbPath == "" {
		dbPath = paths.DBFile
	}
	db, err := persistence.Open(ctx, dbPath)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.DB = db

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b

	writerQueue := persistence.NewWriterQueue(logMgr.Logger("persistence"), 512)
	writerQueue.Start(ctx)
	rt.WriterQueue = writerQueue

	subRepo := persistence.NewSubscriptionRepo(db, writerQueue)
	rt.SubscriptionRepo = subRepo

	subs := subscription.NewRegistry(logMgr.Logger("subscription"), subRepo)
	if err := subs.Reload(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Subscriptions = subs

	// Dialects are compiled-in generated Go, not parsed from disk at
	// startup; DialectPath identifies which one was configured and its
	// presence is what config.Validate checks (NoDialectSet).
	dialect := mavlink.CommonDialect()

	rt.Router = router.New(logMgr.Logger("router"), b, router.Config{
		Dialect:       dialect,
		SystemID:      cfg.SystemID,
		ComponentID:   cfg.ComponentID,
		Subscriptions: subs,
	})
	go rt.Router.Run(ctx)

	drivers, err := buildDrivers(logMgr, dialect, cfg.Endpoints, rt.Router.DriverEvents())
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Drivers = drivers
	for _, d := range drivers {
		go d.Run(ctx)
	}

	return rt, nil
}

func buildDrivers(logMgr *logging.Manager, dialect *mavlink.Dialect, raw []string, events chan<- transport.Event) ([]transport.Driver, error) {
	drivers := make([]transport.Driver, 0, len(raw))
	for _, r := range raw {
		ep, err := connstr.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint %q: %w", r, err)
		}

		var d transport.Driver
		switch ep.Kind {
		case connstr.KindUDPIn:
			d = transport.NewUDPInDriver(logMgr.Logger("udpin"), dialect, ep.IP, ep.Port, events)
		case connstr.KindUDPOut:
			d = transport.NewUDPOutDriver(logMgr.Logger("udpout"), dialect, ep.IP, ep.Port, events)
		case connstr.KindTCPOut:
			d = transport.NewTCPOutDriver(logMgr.Logger("tcpout"), dialect, ep.IP, ep.Port, events)
		case connstr.KindSerial:
			d = transport.NewSerialDriver(logMgr.Logger("serial"), dialect, ep.Device, ep.Baud, events)
		default:
			return nil, fmt.Errorf("unsupported endpoint kind %q", ep.Kind)
		}
		drivers = append(drivers, d)
	}

	return drivers, nil
}

func (r *Runtime) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}

	return nil
}
