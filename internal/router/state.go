// Package router implements the single-coordinator MAVLink router core:
// endpoint registry, routing table, forwarding policy, subscription
// fan-out, and outbound sequencing. All of RouterState is exclusively
// mutated by the one goroutine running Router.Run; every other caller
// reaches it through the command channel.
package router

import (
	"github.com/skobkin/mavrouter/internal/mavlink"
	"github.com/skobkin/mavrouter/internal/subscription"
	"github.com/skobkin/mavrouter/internal/transport"
)

// routeKey is a route table entry's address: a (system, component) pair
// observed as a frame source.
type routeKey struct {
	system    uint8
	component uint8
}

// RouterState is everything the router's control task owns. It has no
// exported mutation methods; all state transitions happen inside the
// Router's event/command loop.
type RouterState struct {
	dialect     *mavlink.Dialect
	systemID    uint8
	componentID uint8
	sequence    uint8

	// endpoints maps every endpoint key the router has seen (via a status
	// or frame event) to the driver instance that owns it.
	endpoints map[transport.EndpointKey]transport.Driver

	// routes maps an observed frame source (system, component) to the
	// endpoint key it was last seen on. Never expires in steady state;
	// overwritten when a later frame from the same source arrives on a
	// different endpoint.
	routes map[routeKey]transport.EndpointKey

	subs *subscription.Registry
}

func newState(dialect *mavlink.Dialect, systemID, componentID uint8, subs *subscription.Registry) *RouterState {
	return &RouterState{
		dialect:     dialect,
		systemID:    systemID,
		componentID: componentID,
		endpoints:   make(map[transport.EndpointKey]transport.Driver),
		routes:      make(map[routeKey]transport.EndpointKey),
		subs:        subs,
	}
}

// nextSequence returns the next outbound sequence number, wrapping at 256.
// Exactly one call per outbound frame regardless of fan-out width.
func (s *RouterState) nextSequence() uint8 {
	seq := s.sequence
	s.sequence++

	return seq
}

// learnEndpoint records (or refreshes) the driver owning key. Called on
// every event a driver emits, frame or status, so static endpoints are
// known from their first status event and UDP-in's dynamically
// multiplexed peers are known from their first datagram.
func (s *RouterState) learnEndpoint(key transport.EndpointKey, driver transport.Driver) {
	if driver == nil {
		return
	}
	s.endpoints[key] = driver
}

// updateRoute overwrites the route entry for (system, component) with key.
// system == 0 is not a valid MAVLink source id and is never recorded.
func (s *RouterState) updateRoute(system, component uint8, key transport.EndpointKey) {
	if system == 0 {
		return
	}
	s.routes[routeKey{system: system, component: component}] = key
}

// matchingRoutes returns the endpoint keys whose recorded (system,
// component) satisfies the 0-wildcard target predicate, excluding
// exclude. Used for targeted (non-broadcast) forwarding.
func (s *RouterState) matchingRoutes(targetSystem, targetComponent uint8, exclude transport.EndpointKey) []transport.EndpointKey {
	var out []transport.EndpointKey
	for rk, key := range s.routes {
		if key == exclude {
			continue
		}
		if targetSystem != 0 && targetSystem != rk.system {
			continue
		}
		if targetComponent != 0 && targetComponent != rk.component {
			continue
		}
		out = append(out, key)
	}

	return out
}

// broadcastTargets returns every known endpoint key except exclude.
func (s *RouterState) broadcastTargets(exclude transport.EndpointKey) []transport.EndpointKey {
	var out []transport.EndpointKey
	for key := range s.endpoints {
		if key == exclude {
			continue
		}
		out = append(out, key)
	}

	return out
}
