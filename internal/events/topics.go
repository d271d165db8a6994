// Package events defines the bus payload types and topic names the router
// publishes for external observers (debug CLI, logging sinks). The router
// itself never subscribes to its own bus; it is a side channel for
// diagnostics, not part of the routing path.
package events

const (
	TopicEndpointStatus         = "endpoint.status"
	TopicRouteUpdated           = "route.updated"
	TopicSubscriptionRegistered = "subscription.registered"
	TopicRawFrameIn             = "raw.frame.in"
	TopicRawFrameOut            = "raw.frame.out"
)
