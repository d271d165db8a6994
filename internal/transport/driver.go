// Package transport implements the router's endpoint drivers: one per
// wire transport (UDP-in, UDP-out, TCP-out, serial), all speaking the same
// Driver contract so the router can treat them uniformly (§4.3).
package transport

import (
	"context"
	"time"

	"github.com/skobkin/mavrouter/internal/mavlink"
)

// EndpointKey stably identifies a driver+peer pair for the router's
// endpoint and routing tables. UDP-in multiplexes several keys onto one
// bound socket; every other driver owns exactly one key for its lifetime.
type EndpointKey string

// Status describes a driver's connection lifecycle.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusReconnecting
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "connecting"
	}
}

// EventKind selects which field of Event is meaningful.
type EventKind int

const (
	EventFrame EventKind = iota
	EventStatus
)

// Event is everything a driver hands to the router's single control task:
// either a parsed frame (successful or not — Result.Kind carries the
// disposition) or a status transition. Driver is set on every event so the
// router can learn the (key -> driver) association the first time it sees
// a key, which is how it discovers UDP-in's dynamically multiplexed peers
// without the router reaching into driver-internal state.
type Event struct {
	Kind     EventKind
	Endpoint EndpointKey
	Result   mavlink.Result
	Status   Status
	Err      error
	Driver   Driver
}

// Driver is the uniform contract every transport adapter implements.
// Run owns the driver's reconnect loop and blocks until ctx is done,
// pushing Events to the shared channel it was constructed with. Forward
// writes a pre-framed packet back out; key selects the peer for
// multiplexing drivers (UDP-in) and is ignored by single-peer drivers.
type Driver interface {
	Run(ctx context.Context)
	Forward(ctx context.Context, key EndpointKey, raw []byte) error
}

// reconnectBackoff is fixed per §4.3/§5: "1-second backoff, indefinite
// retry", a deliberate departure from exponential backoff.
const reconnectBackoff = time.Second

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
