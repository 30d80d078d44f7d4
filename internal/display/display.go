// Package display renders the operator-facing console output: the
// startup banner, per-event lines, alert lines, and the RAW/OK/FAIL
// diagnostics shown in debug mode. Operational logging stays on zerolog;
// this package is only about what a human watching the terminal sees.
package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xoelrdgz/scanradar/internal/domain"
	"github.com/xoelrdgz/scanradar/pkg/sanitize"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	bannerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 2)

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("67"))

	alertStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))
)

// BannerInfo carries the startup summary shown inside the banner box.
type BannerInfo struct {
	Version       string
	ListenAddress string
	ListenPort    uint16
	ParserName    string
	SIEMEnabled   bool
	SIEMTarget    string
	EmailEnabled  bool
	RateLimit     uint32
	Debug         bool
}

// Banner prints the startup banner and configuration summary.
func Banner(info BannerInfo) {
	title := bannerStyle.Render("scanradar " + info.Version + " — network scan detector")

	var b strings.Builder
	b.WriteString(title + "\n\n")
	fmt.Fprintf(&b, "listen    udp://%s:%d\n", info.ListenAddress, info.ListenPort)
	fmt.Fprintf(&b, "parser    %s\n", info.ParserName)

	siem := "disabled"
	if info.SIEMEnabled {
		siem = info.SIEMTarget
	}
	fmt.Fprintf(&b, "siem      %s\n", siem)

	email := "disabled"
	if info.EmailEnabled {
		email = "enabled"
	}
	fmt.Fprintf(&b, "email     %s\n", email)

	limit := "off"
	if info.RateLimit > 0 {
		limit = fmt.Sprintf("%d datagrams/s", info.RateLimit)
	}
	fmt.Fprintf(&b, "ratelimit %s", limit)

	if info.Debug {
		b.WriteString("\n" + failStyle.Render("debug     ON — every datagram will be echoed"))
	}

	fmt.Println(bannerBoxStyle.Render(b.String()))
}

// Event prints one parsed firewall event in a subdued color.
func Event(event *domain.LogEvent) {
	dst := "-"
	if event.DestIP.IsValid() {
		dst = event.DestIP.String()
	}
	fmt.Println(eventStyle.Render(fmt.Sprintf(
		"%-6s %s -> %s:%d/%s",
		event.Action, event.SourceIP, dst, event.DestPort, event.Protocol,
	)))
}

// Alert prints a detected scan in attention-grabbing red.
func Alert(alert *domain.Alert) {
	fmt.Println(alertStyle.Render(fmt.Sprintf(
		"ALERT  %s from %s — %d unique ports",
		alert.ScanType, alert.SourceIPString(), alert.PortCount(),
	)))
}

// AlertSent prints a confirmation that an alert left for a channel.
func AlertSent(channel, scanType string) {
	fmt.Println(dimStyle.Render(fmt.Sprintf("       -> %s (%s)", channel, scanType)))
}

// DebugRaw echoes a received line before parsing. The line is terminal-
// sanitized: log content is attacker-influenced and must not be able to
// drive the operator's terminal.
func DebugRaw(line string) {
	fmt.Println(dimStyle.Render("RAW    " + sanitize.Terminal(line)))
}

// DebugParseOK shows the fields extracted from a line.
func DebugParseOK(event *domain.LogEvent) {
	dst := "-"
	if event.DestIP.IsValid() {
		dst = event.DestIP.String()
	}
	fmt.Println(okStyle.Render(fmt.Sprintf(
		"OK     action=%s src=%s dst=%s port=%d proto=%s",
		event.Action, event.SourceIP, dst, event.DestPort, event.Protocol,
	)))
}

// DebugParseFail shows why a line produced no event, with a format hint.
func DebugParseFail(line, parserName, expectedFormat string) {
	fmt.Println(failStyle.Render("FAIL   " + sanitize.Terminal(sanitize.Truncate(line, 120))))
	fmt.Println(dimStyle.Render("       parser: " + parserName))
	fmt.Println(dimStyle.Render("       expected: " + expectedFormat))
}

// Stats prints the periodic cleanup summary.
func Stats(trackedIPs, reaped int) {
	fmt.Println(dimStyle.Render(fmt.Sprintf(
		"stats  tracked_ips=%d reaped=%d", trackedIPs, reaped,
	)))
}
