// Package input provides the log-format adapters feeding the detection
// pipeline: a Checkpoint Gaia raw-syslog parser, a CEF parser, and a file
// replay source for offline analysis.
package input

import (
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/xoelrdgz/scanradar/internal/domain"
)

// gaiaHeaderRe anchors on the "Checkpoint:" marker, skips the checkpoint
// date and time tokens, and captures the action. Compiled once at package
// load and shared by every GaiaParser — regexp.Regexp is safe for
// concurrent use.
var gaiaHeaderRe = regexp.MustCompile(`(?i)Checkpoint:\s+\S+\s+\S+\s+(accept|drop|reject)\s+`)

// GaiaParser parses Checkpoint Gaia raw-syslog lines:
//
//	Sep 3 15:12:20 192.168.99.1 Checkpoint: 3Sep2007 15:12:08 drop
//	  192.168.11.7 >eth8 rule: 113; service_id: http; src: 192.168.11.34;
//	  dst: 4.23.34.126; proto: tcp; service: 80; s_port: 2854;
//
// Stage one matches the header and captures the action; stage two scans
// the ";"-separated key/value extension region for src, dst, proto and
// service.
type GaiaParser struct{}

// NewGaiaParser returns a Gaia parser. It is stateless and shareable.
func NewGaiaParser() *GaiaParser {
	return &GaiaParser{}
}

// Parse implements ports.LogParser. A line yields an event only when the
// action is drop or accept, src parses as an IP, and service parses as a
// port in [1, 65535]. Broadcast drops without src and ICMP drops without
// service are skipped.
func (p *GaiaParser) Parse(line string) (*domain.LogEvent, bool) {
	m := gaiaHeaderRe.FindStringSubmatchIndex(line)
	if m == nil {
		return nil, false
	}

	action := strings.ToLower(line[m[2]:m[3]])
	if action != domain.ActionDrop && action != domain.ActionAccept {
		return nil, false
	}

	// Everything after the header match is the extension region.
	extensions := line[m[1]:]

	srcStr, ok := gaiaField(extensions, "src")
	if !ok {
		return nil, false
	}
	sourceIP, err := netip.ParseAddr(srcStr)
	if err != nil {
		return nil, false
	}

	var destIP netip.Addr
	if dstStr, ok := gaiaField(extensions, "dst"); ok {
		// Invalid dst is treated as absent, not as a parse failure.
		destIP, _ = netip.ParseAddr(dstStr)
	}

	protocol := ""
	if protoStr, ok := gaiaField(extensions, "proto"); ok {
		protocol = strings.ToLower(protoStr)
	}

	serviceStr, ok := gaiaField(extensions, "service")
	if !ok {
		return nil, false
	}
	port, err := strconv.ParseUint(serviceStr, 10, 16)
	if err != nil || port == 0 {
		return nil, false
	}

	return &domain.LogEvent{
		SourceIP: sourceIP,
		DestIP:   destIP,
		DestPort: uint16(port),
		Protocol: protocol,
		Action:   action,
		RawLine:  line,
	}, true
}

// gaiaField extracts the value of a "key: value" pair from the
// ";"-separated extension region.
func gaiaField(extensions, key string) (string, bool) {
	prefix := key + ": "
	for _, part := range strings.Split(extensions, ";") {
		trimmed := strings.TrimSpace(part)
		if value, found := strings.CutPrefix(trimmed, prefix); found {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

// Name implements ports.LogParser.
func (p *GaiaParser) Name() string {
	return "Checkpoint Gaia (Raw)"
}

// ExpectedFormat implements ports.LogParser.
func (p *GaiaParser) ExpectedFormat() string {
	return "Mon  D HH:MM:SS host Checkpoint: DDMmmYYYY HH:MM:SS action src >iface rule: N; src: IP; dst: IP; proto: PROTO; service: PORT;"
}
