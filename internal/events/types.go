package events

import "time"

// EndpointState mirrors a driver's connection lifecycle for diagnostics.
type EndpointState string

const (
	EndpointStateConnecting   EndpointState = "connecting"
	EndpointStateConnected    EndpointState = "connected"
	EndpointStateReconnecting EndpointState = "reconnecting"
	EndpointStateClosed       EndpointState = "closed"
)

// EndpointStatus is a bus snapshot of one endpoint's driver lifecycle.
type EndpointStatus struct {
	Endpoint  string
	State     EndpointState
	Err       string
	Timestamp time.Time
}

// RouteUpdated reports the (system, component) -> endpoint association the
// router's routing table holds after a decoded frame arrived. It is
// published for every such frame, whether or not the association changed;
// frames of unknown message ids update the table without publishing it.
type RouteUpdated struct {
	SystemID    uint8
	ComponentID uint8
	Endpoint    string
	Timestamp   time.Time
}

// SubscriptionRegistered announces a successful subscribe/resume.
type SubscriptionRegistered struct {
	HandleID  string
	Timestamp time.Time
}

// RawFrame carries on-wire bytes for debug/log views.
type RawFrame struct {
	Endpoint string
	Hex      string
	Len      int
}
