package domain

import (
	"net/netip"
	"time"
)

// Firewall actions the parsers recognize. Any other action token makes a
// line uninteresting and the parsers skip it.
const (
	ActionDrop   = "drop"
	ActionAccept = "accept"
)

// LogEvent is the normalized representation of one parsed firewall event.
// All fields are owned values: an event lives independently of the receive
// buffer it was parsed from.
type LogEvent struct {
	// SourceIP is the address of the host generating the traffic.
	SourceIP netip.Addr

	// DestIP is the target address. The zero value (IsValid() == false)
	// means the log line carried no usable destination (broadcast, ICMP).
	DestIP netip.Addr

	// DestPort is the destination port that was probed.
	DestPort uint16

	// Protocol is the lowercase transport protocol (tcp, udp, ...).
	Protocol string

	// Action is ActionDrop or ActionAccept, lowercased by the parser.
	Action string

	// RawLine is the original log line, kept for audit and debug output.
	RawLine string
}

// PortHit is one recorded (port, time) observation for a source IP.
// SeenAt carries Go's monotonic clock reading; all window arithmetic
// happens on it, never on wall-clock values.
type PortHit struct {
	Port   uint16
	SeenAt time.Time
}
