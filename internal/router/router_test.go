package router

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/mavrouter/internal/mavlink"
	"github.com/skobkin/mavrouter/internal/subscription"
	"github.com/skobkin/mavrouter/internal/transport"
)

// fakeDriver records every Forward call; it never runs a reconnect loop,
// it's only ever fed into a Router via simulated Events.
type fakeDriver struct {
	mu  sync.Mutex
	out [][]byte
}

func (d *fakeDriver) Run(ctx context.Context) { <-ctx.Done() }

func (d *fakeDriver) Forward(_ context.Context, _ transport.EndpointKey, raw []byte) error {
	d.mu.Lock()
	d.out = append(d.out, append([]byte(nil), raw...))
	d.mu.Unlock()

	return nil
}

func (d *fakeDriver) sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([][]byte(nil), d.out...)
}

// memRepo is an in-memory subscription.Repository for tests that don't
// need persistence.
type memRepo struct {
	mu   sync.Mutex
	rows []subscription.Row
}

func (m *memRepo) List(context.Context) ([]subscription.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]subscription.Row(nil), m.rows...), nil
}

func (m *memRepo) Insert(_ context.Context, handleID string, q subscription.Query) error {
	m.mu.Lock()
	m.rows = append(m.rows, subscription.Row{HandleID: handleID, Query: q})
	m.mu.Unlock()

	return nil
}

func (m *memRepo) DeleteByHandle(_ context.Context, handleID string) error {
	m.mu.Lock()
	kept := m.rows[:0]
	for _, row := range m.rows {
		if row.HandleID != handleID {
			kept = append(kept, row)
		}
	}
	m.rows = kept
	m.mu.Unlock()

	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestRouter(t *testing.T) (*Router, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	subs := subscription.NewRegistry(testLogger(), &memRepo{})
	r := New(testLogger(), nil, Config{
		Dialect:     mavlink.CommonDialect(),
		SystemID:    1,
		ComponentID: 1,
		Subscriptions: subs,
	})
	go r.Run(ctx)

	return r, ctx
}

// feed enqueues ev on the router's driver event channel. It does not wait
// for the router to process the event; tests call settleRouter for that.
func feed(t *testing.T, r *Router, ctx context.Context, ev transport.Event) {
	t.Helper()
	select {
	case r.driverEvents <- ev:
	case <-time.After(time.Second):
		t.Fatal("timed out feeding event")
	}
}

func frameEvent(key transport.EndpointKey, driver transport.Driver, frame *mavlink.Frame, kind mavlink.Kind) transport.Event {
	return transport.Event{
		Kind:     transport.EventFrame,
		Endpoint: key,
		Driver:   driver,
		Result:   mavlink.Result{Frame: frame, Kind: kind, Consumed: len(frame.Raw)},
	}
}

func heartbeatFrame(t *testing.T, sysID, compID uint8) *mavlink.Frame {
	t.Helper()
	dialect := mavlink.CommonDialect()
	msg := &mavlink.Heartbeat{Type: 2, Autopilot: 3, BaseMode: 0, SystemStatus: 4, MavlinkVersion: 2}
	id, payload, crcExtra, targeting, err := dialect.Encode(msg, mavlink.V2)
	if err != nil {
		t.Fatalf("encode heartbeat: %v", err)
	}
	raw, err := mavlink.Pack(mavlink.V2, id, crcExtra, sysID, compID, 0, payload)
	if err != nil {
		t.Fatalf("pack heartbeat: %v", err)
	}
	ts, tc := mavlink.ResolveTarget(targeting, msg)

	return &mavlink.Frame{
		Version:      mavlink.V2,
		SystemID:     sysID,
		ComponentID:  compID,
		MessageID:    id,
		Payload:      payload,
		Raw:          raw,
		Message:      msg,
		TargetSystem: ts, TargetComponent: tc,
		TargetKind: targeting,
	}
}

// settleRouter blocks until every driver event enqueued so far has been
// applied to RouterState. Run's select picks at random between the driver
// event channel and the command channel, so one no-op command can overtake
// queued events; the command therefore reports whether the event channel
// was empty when it ran, and the helper repeats until it was. Run handles
// each event to completion before reading the next one, so an empty
// channel at that point means every earlier event has been applied.
// Package-internal test, so it can reach the unexported channels directly
// rather than going through Send (which would itself forward a frame).
func settleRouter(t *testing.T, r *Router, ctx context.Context) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		drained := make(chan bool, 1)
		select {
		case r.commands <- func(context.Context) { drained <- len(r.driverEvents) == 0 }:
		case <-deadline:
			t.Fatal("timed out enqueueing settle command")
		}
		select {
		case ok := <-drained:
			if ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out settling router")
		}
	}
}

func TestBroadcastCoverage_ExcludesSource(t *testing.T) {
	r, ctx := newTestRouter(t)
	a := &fakeDriver{}
	b := &fakeDriver{}

	frame := heartbeatFrame(t, 5, 1)
	feed(t, r, ctx, frameEvent("A", a, frame, mavlink.KindNone))
	feed(t, r, ctx, transport.Event{Kind: transport.EventStatus, Endpoint: "B", Driver: b, Status: transport.StatusConnected})
	settleRouter(t, r, ctx)

	frame2 := heartbeatFrame(t, 5, 1)
	feed(t, r, ctx, frameEvent("A", a, frame2, mavlink.KindNone))
	settleRouter(t, r, ctx)

	if got := len(a.sent()); got != 0 {
		t.Fatalf("source endpoint A received %d forwarded frames, want 0 (no self-loop)", got)
	}
	if got := len(b.sent()); got != 1 {
		t.Fatalf("endpoint B received %d frames, want 1", got)
	}
}

// sendTargeted issues a targeted Send and returns how many new raw frames
// each driver received, as a delta over its prior count — the heartbeats
// used to establish routes are themselves broadcast and also land on
// other endpoints, so absolute counts aren't meaningful here.
func sendTargeted(t *testing.T, r *Router, ctx context.Context, target mavlink.Message, a, e *fakeDriver) (aDelta, eDelta int) {
	t.Helper()
	aBefore, eBefore := len(a.sent()), len(e.sent())
	if err := r.Send(ctx, target, mavlink.V2); err != nil {
		t.Fatalf("targeted send: %v", err)
	}

	return len(a.sent()) - aBefore, len(e.sent()) - eBefore
}

func TestRouteFreshness_SwitchesEndpoint(t *testing.T) {
	r, ctx := newTestRouter(t)
	a := &fakeDriver{}
	e := &fakeDriver{}

	feed(t, r, ctx, transport.Event{Kind: transport.EventStatus, Endpoint: "A", Driver: a, Status: transport.StatusConnected})
	feed(t, r, ctx, transport.Event{Kind: transport.EventStatus, Endpoint: "E", Driver: e, Status: transport.StatusConnected})
	settleRouter(t, r, ctx)

	target := &mavlink.SetMode{TargetSys: 5, BaseMode: 1}
	if aDelta, eDelta := sendTargeted(t, r, ctx, target, a, e); aDelta != 0 || eDelta != 0 {
		t.Fatalf("targeted send with no known route reached endpoints (a=%d e=%d), want 0,0", aDelta, eDelta)
	}

	sourceFrame := heartbeatFrame(t, 5, 1)
	feed(t, r, ctx, frameEvent("A", a, sourceFrame, mavlink.KindNone))
	settleRouter(t, r, ctx)

	if aDelta, eDelta := sendTargeted(t, r, ctx, target, a, e); aDelta != 1 || eDelta != 0 {
		t.Fatalf("targeted send after route to A: a=%d e=%d, want 1,0", aDelta, eDelta)
	}

	secondFrame := heartbeatFrame(t, 5, 1)
	feed(t, r, ctx, frameEvent("E", e, secondFrame, mavlink.KindNone))
	settleRouter(t, r, ctx)

	if aDelta, eDelta := sendTargeted(t, r, ctx, target, a, e); aDelta != 0 || eDelta != 1 {
		t.Fatalf("targeted send after route moved to E: a=%d e=%d, want 0,1", aDelta, eDelta)
	}
}

func TestSend_SequenceMonotonic(t *testing.T) {
	r, ctx := newTestRouter(t)
	a := &fakeDriver{}
	feed(t, r, ctx, transport.Event{Kind: transport.EventStatus, Endpoint: "A", Driver: a, Status: transport.StatusConnected})
	settleRouter(t, r, ctx)

	const n = 5
	for i := 0; i < n; i++ {
		if err := r.Send(ctx, &mavlink.Heartbeat{}, mavlink.V2); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	sent := a.sent()
	if len(sent) != n {
		t.Fatalf("got %d broadcast frames, want %d", len(sent), n)
	}
	for i, raw := range sent {
		res := mavlink.Parse(raw, mavlink.CommonDialect())
		if res.Frame == nil || res.Frame.Sequence != uint8(i) {
			t.Fatalf("frame %d: sequence %v, want %d", i, res.Frame, i)
		}
	}
}

func TestSubscription_WildcardAndTargetBroadcastExclusion(t *testing.T) {
	r, ctx := newTestRouter(t)
	a := &fakeDriver{}
	feed(t, r, ctx, transport.Event{Kind: transport.EventStatus, Endpoint: "A", Driver: a, Status: transport.StatusConnected})
	settleRouter(t, r, ctx)

	handle := subscription.NewHandle("sub-1", 8)
	targetSys := uint8(5)
	if err := r.Subscribe(ctx, subscription.Query{TargetSystem: targetSys}, handle); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	broadcast := heartbeatFrame(t, 9, 9)
	feed(t, r, ctx, frameEvent("A", a, broadcast, mavlink.KindNone))
	settleRouter(t, r, ctx)

	select {
	case d := <-handle.Messages:
		t.Fatalf("broadcast frame delivered to target-id subscriber: %+v", d)
	default:
	}

	targeted := &mavlink.SetMode{TargetSys: targetSys, BaseMode: 1}
	if err := r.Send(ctx, targeted, mavlink.V2); err != nil {
		t.Fatalf("send targeted: %v", err)
	}

	select {
	case <-handle.Messages:
	case <-time.After(time.Second):
		t.Fatal("targeted frame matching subscription query was never delivered")
	}
}
