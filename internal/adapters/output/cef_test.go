package output

import (
	"net/netip"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/scanradar/internal/domain"
	"github.com/xoelrdgz/scanradar/pkg/sanitize"
)

func testAlert(kind domain.ScanType, ports []uint16) *domain.Alert {
	return &domain.Alert{
		ScanType:    kind,
		SourceIP:    netip.MustParseAddr("192.168.11.7"),
		DestIP:      netip.MustParseAddr("10.0.0.1"),
		UniquePorts: ports,
		Timestamp:   time.Date(2026, time.February, 3, 14, 5, 9, 0, time.Local),
	}
}

func testBuilder() *DatagramBuilder {
	return NewDatagramBuilder("ids-rs", 10, 5, 30)
}

// headerPipes counts unescaped '|' characters before the extension region.
func headerPipes(datagram string) int {
	header := datagram
	if ext := strings.Index(datagram, "|rt="); ext >= 0 {
		header = datagram[:ext+1]
	}
	count := 0
	for i := 0; i < len(header); i++ {
		if header[i] == '|' && (i == 0 || header[i-1] != '\\') {
			count++
		}
	}
	return count
}

func TestDatagramBuilder_Shape(t *testing.T) {
	b := testBuilder()
	alert := testAlert(domain.ScanTypeFast, []uint16{22, 80, 443})
	datagram := b.Build(alert)

	// Syslog prefix: fixed PRI, RFC 3164 timestamp, host.
	assert.True(t, strings.HasPrefix(datagram, "<38>"), "datagram: %s", datagram)
	assert.Contains(t, datagram, " ids-rs CEF:0|IDS-RS|Network Scanner Detector|1.0|")

	// Exactly seven unescaped header separators, no raw line breaks.
	assert.Equal(t, 7, headerPipes(datagram))
	assert.NotContains(t, datagram, "\n")
	assert.NotContains(t, datagram, "\r")

	// Extension fields in contract order.
	rt := strconv.FormatInt(alert.Timestamp.UnixMilli(), 10)
	assert.Contains(t, datagram, "|rt="+rt+" src=192.168.11.7 dst=10.0.0.1 cnt=3 act=alert msg=")
	assert.Contains(t, datagram, " cs1Label=ScannedPorts cs1=22,80,443")
	assert.Contains(t, datagram, "msg=Fast Scan detected: 3 unique ports in 10 seconds | ports: 22,80,443")
}

func TestDatagramBuilder_TimestampFormat(t *testing.T) {
	b := testBuilder()
	alert := testAlert(domain.ScanTypeFast, []uint16{22})
	// Single-digit day must be space-padded to width 2.
	alert.Timestamp = time.Date(2026, time.September, 3, 15, 12, 20, 0, time.Local)

	datagram := b.Build(alert)
	assert.Contains(t, datagram, "<38>Sep  3 15:12:20 ids-rs ")
}

func TestDatagramBuilder_SignatureByScanType(t *testing.T) {
	b := testBuilder()

	tests := []struct {
		kind     domain.ScanType
		fragment string
	}{
		{domain.ScanTypeFast, "|1001|Fast Port Scan Detected|7|"},
		{domain.ScanTypeSlow, "|1002|Slow Port Scan Detected|6|"},
		{domain.ScanTypeAccept, "|1003|Accept Port Scan Detected|5|"},
	}

	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			datagram := b.Build(testAlert(tc.kind, []uint16{1, 2}))
			assert.Contains(t, datagram, tc.fragment)
			assert.Equal(t, 7, headerPipes(datagram))
		})
	}
}

func TestDatagramBuilder_DstOmittedWhenAbsent(t *testing.T) {
	b := testBuilder()
	alert := testAlert(domain.ScanTypeFast, []uint16{22, 80})
	alert.DestIP = netip.Addr{}

	datagram := b.Build(alert)
	assert.NotContains(t, datagram, "dst=")
	assert.Contains(t, datagram, " src=192.168.11.7 cnt=2 ")
}

func TestDatagramBuilder_MsgTruncatedAt512(t *testing.T) {
	b := testBuilder()

	// ~1000 distinct ports produce a multi-kilobyte list; the msg value
	// must stay under the cap while cs1 carries the full list.
	ports := make([]uint16, 0, 1000)
	for p := uint16(1001); p <= 2000; p++ {
		ports = append(ports, p)
	}
	alert := testAlert(domain.ScanTypeSlow, ports)
	datagram := b.Build(alert)

	msgStart := strings.Index(datagram, "msg=")
	require.Greater(t, msgStart, 0)
	msgEnd := strings.Index(datagram[msgStart:], " cs1Label=")
	require.Greater(t, msgEnd, 0)
	msg := datagram[msgStart+len("msg=") : msgStart+msgEnd]

	assert.LessOrEqual(t, len(msg), 512)
	assert.True(t, strings.HasSuffix(msg, "..."), "truncated msg must end with ...: %q", msg)
	// Cut at a complete port: the character before "..." is a digit.
	assert.NotEqual(t, byte(','), msg[len(msg)-4])

	// The full list still rides in cs1.
	assert.Contains(t, datagram, "cs1=1001,1002,")
	assert.True(t, strings.HasSuffix(datagram, ",2000"))
}

func TestDatagramBuilder_InjectionResistance(t *testing.T) {
	// A hostile operator-controlled label must not let a downstream
	// parser see a second event: line breaks and pipes arrive escaped,
	// and the header still has exactly seven separators.
	payload := "evil\nFeb 18 00:00:00 host CEF:0|X|X|X|9999|X|10|"
	msg := buildMsg(sanitize.CEF(payload), "22,80")

	assert.NotContains(t, msg, "\n")
	assert.NotContains(t, msg, "\r")
	assert.Contains(t, msg, `\n`)
	assert.Contains(t, msg, `CEF:0\|X`)

	// Only the " | ports:" separator we own remains unescaped.
	unescaped := 0
	for i := 0; i < len(msg); i++ {
		if msg[i] == '|' && (i == 0 || msg[i-1] != '\\') {
			unescaped++
		}
	}
	assert.Equal(t, 1, unescaped)
}

func TestBuildMsg_ShortListUntouched(t *testing.T) {
	msg := buildMsg("Fast Scan detected: 2 unique ports in 10 seconds", "22,80")
	assert.Equal(t, "Fast Scan detected: 2 unique ports in 10 seconds | ports: 22,80", msg)
}

func BenchmarkDatagramBuilder(b *testing.B) {
	builder := testBuilder()
	ports := make([]uint16, 0, 100)
	for p := uint16(1); p <= 100; p++ {
		ports = append(ports, p)
	}
	alert := testAlert(domain.ScanTypeFast, ports)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		builder.Build(alert)
	}
}
