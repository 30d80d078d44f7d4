// Package output provides the alert egress adapters: the CEF-over-syslog
// datagram builder, the SIEM UDP sender, the SMTP email sender, and the
// Prometheus metrics endpoint.
package output

import (
	"fmt"
	"strings"

	"github.com/xoelrdgz/scanradar/internal/domain"
	"github.com/xoelrdgz/scanradar/pkg/sanitize"
)

// Fixed CEF identity fields. The receiving SIEM keys its parsers and
// dashboards on these values; changing them is a breaking change for the
// consumer side.
const (
	cefVendor  = "IDS-RS"
	cefProduct = "Network Scanner Detector"
	cefVersion = "1.0"

	// syslogPri is facility 4 (security) * 8 + severity 6 (info).
	syslogPri = 38

	// msgLimit caps the CEF msg value for RFC 3164 compatibility and
	// Active Channel readability.
	msgLimit = 512
)

// DatagramBuilder renders alerts into CEF-over-syslog datagrams:
//
//	<38>Sep  3 15:12:20 ids-rs CEF:0|IDS-RS|Network Scanner Detector|1.0|1001|Fast Port Scan Detected|7|rt=... src=... ...
//
// The two operator-influenced text fields — the event name and the scan
// label — pass through sanitize.CEF exactly once. Fields whose types
// guarantee safety (addresses, counts, epoch integers, fixed literals)
// are emitted as-is, including the " | ports:" separator we own inside
// msg: escaping it would garble what the SIEM operator reads.
type DatagramBuilder struct {
	hostname string

	fastWindowSecs   uint64
	slowWindowMins   uint64
	acceptWindowSecs uint64
}

// NewDatagramBuilder creates a builder. hostname becomes the syslog HOST
// field; the window values feed the human-readable scan labels.
func NewDatagramBuilder(hostname string, fastWindowSecs, slowWindowMins, acceptWindowSecs uint64) *DatagramBuilder {
	if hostname == "" {
		hostname = "ids-rs"
	}
	return &DatagramBuilder{
		hostname:         hostname,
		fastWindowSecs:   fastWindowSecs,
		slowWindowMins:   slowWindowMins,
		acceptWindowSecs: acceptWindowSecs,
	}
}

// signature returns the CEF signature ID, event name and severity for a
// scan type, plus the unsanitized human-readable label.
func (b *DatagramBuilder) signature(alert *domain.Alert) (sigID, eventName string, severity int, label string) {
	n := alert.PortCount()
	switch alert.ScanType {
	case domain.ScanTypeSlow:
		return "1002", "Slow Port Scan Detected", 6,
			fmt.Sprintf("Slow Scan detected: %d unique ports in %d minutes", n, b.slowWindowMins)
	case domain.ScanTypeAccept:
		return "1003", "Accept Port Scan Detected", 5,
			fmt.Sprintf("Accept Scan detected: %d unique open ports in %d seconds", n, b.acceptWindowSecs)
	default:
		return "1001", "Fast Port Scan Detected", 7,
			fmt.Sprintf("Fast Scan detected: %d unique ports in %d seconds", n, b.fastWindowSecs)
	}
}

// Build renders one alert into a single-line datagram, no trailing
// newline.
func (b *DatagramBuilder) Build(alert *domain.Alert) string {
	sigID, eventName, severity, label := b.signature(alert)

	portList := alert.PortList()
	msg := buildMsg(sanitize.CEF(label), portList)

	dst := ""
	if alert.DestIP.IsValid() {
		dst = " dst=" + alert.DestIP.String()
	}

	ts := alert.Timestamp.Local().Format("Jan _2 15:04:05")

	return fmt.Sprintf(
		"<%d>%s %s CEF:0|%s|%s|%s|%s|%s|%d|rt=%d src=%s%s cnt=%d act=alert msg=%s cs1Label=ScannedPorts cs1=%s",
		syslogPri,
		ts,
		b.hostname,
		cefVendor,
		cefProduct,
		cefVersion,
		sigID,
		sanitize.CEF(eventName),
		severity,
		alert.Timestamp.UnixMilli(),
		alert.SourceIP,
		dst,
		alert.PortCount(),
		msg,
		portList,
	)
}

// buildMsg assembles "<label> | ports: <list>" and keeps the whole value
// under msgLimit, cutting the list at the last complete port and marking
// the cut with "...". The port list itself is digits and commas only and
// needs no escaping.
func buildMsg(label, portList string) string {
	prefix := label + " | ports: "
	if len(prefix)+len(portList) <= msgLimit {
		return prefix + portList
	}

	budget := msgLimit - len(prefix) - 3
	if budget <= 0 {
		return sanitize.Truncate(prefix, msgLimit)
	}
	if budget > len(portList) {
		budget = len(portList)
	}

	truncated := portList[:budget]
	if cut := strings.LastIndexByte(truncated, ','); cut > 0 {
		truncated = truncated[:cut]
	}
	return prefix + truncated + "..."
}
