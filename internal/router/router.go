package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skobkin/mavrouter/internal/bus"
	"github.com/skobkin/mavrouter/internal/events"
	"github.com/skobkin/mavrouter/internal/mavlink"
	"github.com/skobkin/mavrouter/internal/subscription"
	"github.com/skobkin/mavrouter/internal/transport"
)

// forwardTimeout bounds a single driver write inside the router's
// serialized fan-out, so one stuck endpoint cannot wedge the control task
// forever; it does not retry.
const forwardTimeout = 5 * time.Second

// localEndpoint is the sentinel source key for frames originated by a
// local sender (Send), which excludes nothing from forwarding since
// there's no receiving endpoint to avoid looping back to.
const localEndpoint transport.EndpointKey = ""

// Router is the single logical coordinator described in §5: it owns
// RouterState exclusively and reaches it only from the goroutine running
// Run. Every external interaction — driver events, Send, Subscribe,
// Unsubscribe — crosses into that goroutine through a channel.
type Router struct {
	logger *slog.Logger
	bus    bus.MessageBus
	state  *RouterState

	driverEvents chan transport.Event
	commands     chan func(ctx context.Context)

	ctx context.Context
}

// Config bundles what Run needs to build a RouterState.
type Config struct {
	Dialect        *mavlink.Dialect
	SystemID       uint8
	ComponentID    uint8
	Subscriptions  *subscription.Registry
	EventsCapacity int
}

// New constructs a Router. driverEvents is the channel every driver was
// constructed with (transport.New*Driver's events parameter) — callers
// wire drivers to the same channel returned by DriverEvents before
// starting their Run loops.
func New(logger *slog.Logger, b bus.MessageBus, cfg Config) *Router {
	capacity := cfg.EventsCapacity
	if capacity <= 0 {
		capacity = 256
	}

	return &Router{
		logger:       logger,
		bus:          b,
		state:        newState(cfg.Dialect, cfg.SystemID, cfg.ComponentID, cfg.Subscriptions),
		driverEvents: make(chan transport.Event, capacity),
		commands:     make(chan func(ctx context.Context), 64),
	}
}

// DriverEvents returns the channel drivers should be constructed with.
func (r *Router) DriverEvents() chan<- transport.Event {
	return r.driverEvents
}

// Run is the router's select-loop. It blocks until ctx is done. Every
// driver event and every command is handled to completion before the
// next is read off either channel, which is what serializes outbound
// fan-out per §5.
func (r *Router) Run(ctx context.Context) {
	r.ctx = ctx
	r.logger.Info("router started", "system_id", r.state.systemID, "component_id", r.state.componentID)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("router stopping")
			return
		case ev := <-r.driverEvents:
			r.handleEvent(ctx, ev)
		case cmd := <-r.commands:
			cmd(ctx)
		}
	}
}

func (r *Router) handleEvent(ctx context.Context, ev transport.Event) {
	r.state.learnEndpoint(ev.Endpoint, ev.Driver)

	switch ev.Kind {
	case transport.EventStatus:
		r.handleStatus(ev)
	case transport.EventFrame:
		r.handleFrame(ctx, ev)
	}
}

func (r *Router) handleStatus(ev transport.Event) {
	r.logger.Info("endpoint status", "endpoint", ev.Endpoint, "status", ev.Status, "error", ev.Err)
	if r.bus == nil {
		return
	}

	status := events.EndpointStatus{
		Endpoint:  string(ev.Endpoint),
		State:     endpointState(ev.Status),
		Timestamp: time.Now(),
	}
	if ev.Err != nil {
		status.Err = ev.Err.Error()
	}
	r.bus.Publish(events.TopicEndpointStatus, status)
}

func endpointState(s transport.Status) events.EndpointState {
	switch s {
	case transport.StatusConnected:
		return events.EndpointStateConnected
	case transport.StatusReconnecting:
		return events.EndpointStateReconnecting
	case transport.StatusClosed:
		return events.EndpointStateClosed
	default:
		return events.EndpointStateConnecting
	}
}

// handleFrame dispatches on a parsed frame's disposition per §7's error
// table: only KindNone and KindUnknownMessage carry routable frames;
// every other kind is dropped (all but KindIncompleteFrame with a debug
// log line), with the endpoint's driver
// association already recorded above regardless of outcome.
func (r *Router) handleFrame(ctx context.Context, ev transport.Event) {
	res := ev.Result
	switch res.Kind {
	case mavlink.KindNotAFrame:
		r.logger.Debug("garbage bytes skipped", "endpoint", ev.Endpoint, "consumed", res.Consumed)
		return
	case mavlink.KindIncompleteFrame:
		return
	case mavlink.KindChecksumInvalid:
		r.logger.Debug("frame dropped: checksum invalid", "endpoint", ev.Endpoint)
		return
	case mavlink.KindFailedToUnpack:
		r.logger.Debug("frame dropped: failed to unpack", "endpoint", ev.Endpoint)
		return
	case mavlink.KindIncompatibleFlags:
		r.logger.Debug("frame dropped: incompatible flags", "endpoint", ev.Endpoint)
		return
	case mavlink.KindUnknownMessage:
		frame := res.Frame
		r.logger.Debug("unknown message forwarded as broadcast", "endpoint", ev.Endpoint, "message_id", frame.MessageID)
		r.state.updateRoute(frame.SystemID, frame.ComponentID, ev.Endpoint)
		r.forward(ctx, frame, ev.Endpoint, true)
	case mavlink.KindNone:
		frame := res.Frame
		r.state.updateRoute(frame.SystemID, frame.ComponentID, ev.Endpoint)
		r.publishRoute(frame, ev.Endpoint)
		r.forward(ctx, frame, ev.Endpoint, false)
	}
}

func (r *Router) publishRoute(frame *mavlink.Frame, key transport.EndpointKey) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.TopicRouteUpdated, events.RouteUpdated{
		SystemID:    frame.SystemID,
		ComponentID: frame.ComponentID,
		Endpoint:    string(key),
		Timestamp:   time.Now(),
	})
}

// forward implements §4.4's routing policy and local fan-out. forceBroadcast
// is set for UnknownMessage frames, which are routed as broadcast so
// unrecognized traffic isn't silently dropped between peers.
func (r *Router) forward(ctx context.Context, frame *mavlink.Frame, source transport.EndpointKey, forceBroadcast bool) {
	isBroadcast := forceBroadcast || (frame.TargetSystem == 0 && frame.TargetComponent == 0)

	var targets []transport.EndpointKey
	if isBroadcast {
		targets = r.state.broadcastTargets(source)
	} else {
		targets = r.state.matchingRoutes(frame.TargetSystem, frame.TargetComponent, source)
	}

	for _, key := range targets {
		r.forwardOne(ctx, key, frame.Raw)
	}

	r.state.subs.Match(frame)
}

func (r *Router) forwardOne(ctx context.Context, key transport.EndpointKey, raw []byte) {
	driver, ok := r.state.endpoints[key]
	if !ok || driver == nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()

	if err := driver.Forward(writeCtx, key, raw); err != nil {
		r.logger.Warn("forward failed", "endpoint", key, "error", err)
	}
}

// Send packs msg through the dialect, assigns the router's own source
// identity and the next sequence number, and routes it exactly as if it
// had arrived from a local endpoint (§4.4 egress). It blocks until the
// router's control task has processed the send.
func (r *Router) Send(ctx context.Context, msg mavlink.Message, version mavlink.Version) error {
	result := make(chan error, 1)
	cmd := func(cmdCtx context.Context) {
		result <- r.doSend(cmdCtx, msg, version)
	}

	select {
	case r.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) doSend(ctx context.Context, msg mavlink.Message, version mavlink.Version) error {
	id, payload, crcExtra, targeting, err := r.state.dialect.Encode(msg, version)
	if err != nil {
		return fmt.Errorf("encode outbound message: %w", err)
	}

	seq := r.state.nextSequence()
	raw, err := mavlink.Pack(version, id, crcExtra, r.state.systemID, r.state.componentID, seq, payload)
	if err != nil {
		return fmt.Errorf("pack outbound frame: %w", err)
	}

	targetSystem, targetComponent := mavlink.ResolveTarget(targeting, msg)
	frame := &mavlink.Frame{
		Version:         version,
		PayloadLength:   uint8(len(payload)),
		Sequence:        seq,
		SystemID:        r.state.systemID,
		ComponentID:     r.state.componentID,
		MessageID:       id,
		CRCExtra:        crcExtra,
		Payload:         payload,
		Raw:             raw,
		Message:         msg,
		TargetSystem:    targetSystem,
		TargetComponent: targetComponent,
		TargetKind:      targeting,
	}

	r.forward(ctx, frame, localEndpoint, false)

	return nil
}

// Subscribe registers a live subscription, reaching the registry from
// the router's control task so it never races Match.
func (r *Router) Subscribe(ctx context.Context, q subscription.Query, h *subscription.Handle) error {
	result := make(chan error, 1)
	cmd := func(cmdCtx context.Context) {
		result <- r.state.subs.Subscribe(cmdCtx, q, h)
	}

	select {
	case r.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		if err == nil && r.bus != nil {
			r.bus.Publish(events.TopicSubscriptionRegistered, events.SubscriptionRegistered{
				HandleID:  h.ID,
				Timestamp: time.Now(),
			})
		}

		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unsubscribe removes every entry for handleID, driven by the owning
// connection's lifecycle (disconnect, explicit unsubscribe).
func (r *Router) Unsubscribe(ctx context.Context, handleID string) error {
	result := make(chan error, 1)
	cmd := func(cmdCtx context.Context) {
		result <- r.state.subs.Unsubscribe(cmdCtx, handleID)
	}

	select {
	case r.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
