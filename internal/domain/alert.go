package domain

import (
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// ScanType identifies which detection rule produced an alert.
type ScanType string

const (
	// ScanTypeFast: many distinct blocked ports inside a short window.
	ScanTypeFast ScanType = "FAST_SCAN"

	// ScanTypeSlow: many distinct blocked ports inside a long window,
	// under the radar of the fast rule.
	ScanTypeSlow ScanType = "SLOW_SCAN"

	// ScanTypeAccept: many distinct accepted ports — enumeration of open
	// services. The traffic is legitimate from the firewall's point of
	// view, which is exactly why it needs its own rule.
	ScanTypeAccept ScanType = "ACCEPT_SCAN"
)

// String returns the human-readable form used in console output and email
// subjects.
func (t ScanType) String() string {
	switch t {
	case ScanTypeFast:
		return "Fast Scan"
	case ScanTypeSlow:
		return "Slow Scan"
	case ScanTypeAccept:
		return "Accept Scan"
	default:
		return string(t)
	}
}

// Alert is an immutable record of one detected scan. It owns all its data
// and can be handed to any number of output adapters concurrently.
type Alert struct {
	ScanType ScanType   `json:"scan_type"`
	SourceIP netip.Addr `json:"source_ip"`

	// DestIP is the scan target from the triggering event; zero value
	// when the log carried no destination.
	DestIP netip.Addr `json:"dest_ip,omitempty"`

	// UniquePorts is sorted ascending so serialized output is
	// deterministic.
	UniquePorts []uint16 `json:"unique_ports"`

	// Timestamp is wall-clock time, used for the syslog header and the
	// CEF rt= field. Window math never touches it.
	Timestamp time.Time `json:"timestamp"`
}

// PortCount returns the number of distinct ports behind the alert.
func (a *Alert) PortCount() int {
	return len(a.UniquePorts)
}

// PortList renders the full port list as "21,22,443".
func (a *Alert) PortList() string {
	var b strings.Builder
	for i, p := range a.UniquePorts {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(p)))
	}
	return b.String()
}

// SourceIPString returns the source address, or "unknown" for an invalid one.
func (a *Alert) SourceIPString() string {
	if !a.SourceIP.IsValid() {
		return "unknown"
	}
	return a.SourceIP.String()
}
