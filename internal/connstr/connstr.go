// Package connstr parses the router's endpoint connection strings:
// udpin:<ip>:<port>, udpout:<ip>:<port>, tcpout:<ip>:<port>,
// serial:<device>:<baud> (§6).
package connstr

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Kind is the transport an endpoint connection string names.
type Kind string

const (
	KindUDPIn  Kind = "udpin"
	KindUDPOut Kind = "udpout"
	KindTCPOut Kind = "tcpout"
	KindSerial Kind = "serial"
)

// Endpoint is one parsed connection string.
type Endpoint struct {
	Kind Kind

	// UDP-in, UDP-out, TCP-out
	IP   string
	Port int

	// Serial
	Device string
	Baud   int
}

// InvalidConnectionString is returned for any malformed connection string;
// startup treats it as fatal (§7 "InvalidConnectionString | init | fatal,
// abort start").
type InvalidConnectionString struct {
	Raw    string
	Reason string
}

func (e *InvalidConnectionString) Error() string {
	return fmt.Sprintf("invalid connection string %q: %s", e.Raw, e.Reason)
}

func invalid(raw, reason string) error {
	return &InvalidConnectionString{Raw: raw, Reason: reason}
}

// Parse parses one connection string.
func Parse(raw string) (Endpoint, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 {
		return Endpoint{}, invalid(raw, "expected <kind>:<...>")
	}

	switch Kind(parts[0]) {
	case KindUDPIn, KindUDPOut, KindTCPOut:
		return parseIPEndpoint(raw, Kind(parts[0]), parts[1:])
	case KindSerial:
		return parseSerialEndpoint(raw, parts[1:])
	default:
		return Endpoint{}, invalid(raw, "unknown transport kind "+parts[0])
	}
}

func parseIPEndpoint(raw string, kind Kind, rest []string) (Endpoint, error) {
	if len(rest) != 2 {
		return Endpoint{}, invalid(raw, "expected <ip>:<port>")
	}
	ip := rest[0]
	if net.ParseIP(ip) == nil {
		return Endpoint{}, invalid(raw, "not a dotted-quad IP: "+ip)
	}
	port, err := strconv.Atoi(rest[1])
	if err != nil || port < 1024 || port > 65535 {
		return Endpoint{}, invalid(raw, "port must be 1024-65535: "+rest[1])
	}

	return Endpoint{Kind: kind, IP: ip, Port: port}, nil
}

func parseSerialEndpoint(raw string, rest []string) (Endpoint, error) {
	if len(rest) != 2 {
		return Endpoint{}, invalid(raw, "expected <device>:<baud>")
	}
	device := rest[0]
	if device == "" {
		return Endpoint{}, invalid(raw, "device path is empty")
	}
	baud, err := strconv.Atoi(rest[1])
	if err != nil || baud <= 0 {
		return Endpoint{}, invalid(raw, "baud must be a positive integer: "+rest[1])
	}

	return Endpoint{Kind: KindSerial, Device: device, Baud: baud}, nil
}
