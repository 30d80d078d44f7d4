package input

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/xoelrdgz/scanradar/internal/domain"
)

// CEFParser parses Common Event Format lines:
//
//	CEF:0|CheckPoint|VPN-1 & FireWall-1|R81|100|Drop|5|src=192.168.11.7
//	  dst=10.0.0.1 dpt=443 proto=TCP act=Drop
//
// The "CEF:" marker may appear anywhere in the line — real feeds prefix a
// syslog header (with or without <PRI>), so the parser scans for it rather
// than anchoring at the start. The seventh '|' begins the extension
// region of whitespace-separated key=value pairs.
type CEFParser struct{}

// NewCEFParser returns a CEF parser. It is stateless and shareable.
func NewCEFParser() *CEFParser {
	return &CEFParser{}
}

// Parse implements ports.LogParser. Extension keys are matched
// case-insensitively and the usual ArcSight aliases are accepted; when a
// key repeats, the last occurrence wins, consistent with typical CEF
// emitters.
func (p *CEFParser) Parse(line string) (*domain.LogEvent, bool) {
	cefStart := strings.Index(line, "CEF:")
	if cefStart < 0 {
		return nil, false
	}

	parts := strings.SplitN(line[cefStart:], "|", 8)
	if len(parts) < 8 {
		return nil, false
	}

	var (
		sourceIP netip.Addr
		destIP   netip.Addr
		destPort uint64
		havePort bool
		protocol string
		action   string
	)

	for _, token := range strings.Fields(parts[7]) {
		key, value, found := strings.Cut(token, "=")
		if !found {
			continue
		}
		switch strings.ToLower(key) {
		case "src", "sourceaddress", "shost":
			if addr, err := netip.ParseAddr(value); err == nil {
				sourceIP = addr
			}
		case "dst", "destinationaddress", "dhost":
			if addr, err := netip.ParseAddr(value); err == nil {
				destIP = addr
			}
		case "dpt", "dst_port":
			if v, err := strconv.ParseUint(value, 10, 16); err == nil {
				destPort = v
				havePort = true
			}
		case "proto":
			protocol = strings.ToLower(value)
		case "act":
			action = strings.ToLower(value)
		}
	}

	if !sourceIP.IsValid() || !havePort || destPort == 0 {
		return nil, false
	}
	if action != domain.ActionDrop && action != domain.ActionAccept {
		return nil, false
	}

	return &domain.LogEvent{
		SourceIP: sourceIP,
		DestIP:   destIP,
		DestPort: uint16(destPort),
		Protocol: protocol,
		Action:   action,
		RawLine:  line,
	}, true
}

// Name implements ports.LogParser.
func (p *CEFParser) Name() string {
	return "CEF (ArcSight)"
}

// ExpectedFormat implements ports.LogParser.
func (p *CEFParser) ExpectedFormat() string {
	return "<PRI>Mon DD HH:MM:SS hostname CEF:0|Vendor|Product|Version|ID|Name|Severity|src=IP dst=IP dpt=PORT proto=PROTO act=ACTION"
}
