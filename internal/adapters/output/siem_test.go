package output

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/scanradar/internal/domain"
)

func TestSIEMAlerter_DeliversDatagram(t *testing.T) {
	// A loopback UDP listener stands in for the SIEM collector.
	receiver, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer receiver.Close()

	port := uint16(receiver.LocalAddr().(*net.UDPAddr).Port)
	alerter := NewSIEMAlerter("127.0.0.1", port, testBuilder())
	defer alerter.Close()

	alert := &domain.Alert{
		ScanType:    domain.ScanTypeFast,
		SourceIP:    netip.MustParseAddr("192.168.11.7"),
		DestIP:      netip.MustParseAddr("10.0.0.1"),
		UniquePorts: []uint16{22, 80, 443},
		Timestamp:   time.Now(),
	}
	require.NoError(t, alerter.Send(context.Background(), alert))

	require.NoError(t, receiver.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 65535)
	n, _, err := receiver.ReadFromUDP(buf)
	require.NoError(t, err)

	datagram := string(buf[:n])
	assert.True(t, strings.HasPrefix(datagram, "<38>"))
	assert.Contains(t, datagram, "CEF:0|IDS-RS|Network Scanner Detector|1.0|1001|Fast Port Scan Detected|7|")
	assert.Contains(t, datagram, "src=192.168.11.7")
	assert.Contains(t, datagram, "cs1=22,80,443")
	assert.NotContains(t, datagram, "\n")
}

func TestSIEMAlerter_ReusesSocket(t *testing.T) {
	receiver, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer receiver.Close()

	port := uint16(receiver.LocalAddr().(*net.UDPAddr).Port)
	alerter := NewSIEMAlerter("127.0.0.1", port, testBuilder())
	defer alerter.Close()

	alert := &domain.Alert{
		ScanType:    domain.ScanTypeSlow,
		SourceIP:    netip.MustParseAddr("10.0.0.9"),
		UniquePorts: []uint16{1, 2, 3},
		Timestamp:   time.Now(),
	}

	require.NoError(t, alerter.Send(context.Background(), alert))
	first := alerter.conn
	require.NoError(t, alerter.Send(context.Background(), alert))
	assert.Same(t, first, alerter.conn)
}

func TestSIEMAlerter_CloseIsIdempotent(t *testing.T) {
	alerter := NewSIEMAlerter("127.0.0.1", 5140, testBuilder())
	assert.NoError(t, alerter.Close())
	assert.NoError(t, alerter.Close())
}

func TestEmailAlerter_HTMLBody(t *testing.T) {
	a := &EmailAlerter{cfg: EmailConfig{Footer: "<ascii art>"}}

	ports := make([]uint16, 0, 40)
	for p := uint16(1); p <= 40; p++ {
		ports = append(ports, p)
	}
	alert := &domain.Alert{
		ScanType:    domain.ScanTypeAccept,
		SourceIP:    netip.MustParseAddr("192.168.11.7"),
		UniquePorts: ports,
		Timestamp:   time.Date(2026, time.February, 3, 14, 5, 9, 0, time.UTC),
	}

	body := a.htmlBody(alert)
	assert.Contains(t, body, "Accept Scan")
	assert.Contains(t, body, "192.168.11.7")
	assert.Contains(t, body, "<td>N/A</td>")
	assert.Contains(t, body, "+ 10 more")
	// The footer is HTML-escaped, never raw.
	assert.Contains(t, body, "&lt;ascii art&gt;")
	assert.NotContains(t, body, "<ascii art>")
}

func TestPortListForBody(t *testing.T) {
	assert.Equal(t, "", portListForBody(nil))
	assert.Equal(t, "22, 80", portListForBody([]uint16{22, 80}))

	ports := make([]uint16, 35)
	for i := range ports {
		ports[i] = uint16(i + 1)
	}
	list := portListForBody(ports)
	assert.Contains(t, list, "30")
	assert.Contains(t, list, "+ 5 more")
	assert.NotContains(t, list, "31,")
}
