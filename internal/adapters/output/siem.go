package output

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/scanradar/internal/domain"
)

// SIEMAlerter ships CEF datagrams to the SIEM collector over UDP. The
// socket is connected lazily on first send and reused; a send failure is
// reported to the caller, who logs and continues — one lost alert must
// never stall the pipeline.
type SIEMAlerter struct {
	addr    string
	builder *DatagramBuilder

	mu   sync.Mutex
	conn net.Conn
}

// NewSIEMAlerter creates a SIEM alerter targeting host:port.
func NewSIEMAlerter(host string, port uint16, builder *DatagramBuilder) *SIEMAlerter {
	return &SIEMAlerter{
		addr:    fmt.Sprintf("%s:%d", host, port),
		builder: builder,
	}
}

// Name implements ports.Alerter.
func (a *SIEMAlerter) Name() string {
	return "siem"
}

// Send implements ports.Alerter: builds the datagram and fires it in a
// single write.
func (a *SIEMAlerter) Send(ctx context.Context, alert *domain.Alert) error {
	conn, err := a.connection()
	if err != nil {
		return fmt.Errorf("siem socket: %w", err)
	}

	datagram := a.builder.Build(alert)

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write([]byte(datagram)); err != nil {
		// Drop the cached socket; the next alert redials.
		a.mu.Lock()
		a.conn = nil
		a.mu.Unlock()
		return fmt.Errorf("siem send to %s: %w", a.addr, err)
	}

	log.Debug().
		Str("target", a.addr).
		Str("scan_type", string(alert.ScanType)).
		Int("bytes", len(datagram)).
		Msg("SIEM alert sent")
	return nil
}

// connection returns the cached UDP socket, dialing an ephemeral one on
// first use or after a failed send.
func (a *SIEMAlerter) connection() (net.Conn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return a.conn, nil
	}

	conn, err := net.Dial("udp", a.addr)
	if err != nil {
		return nil, err
	}
	a.conn = conn
	return conn, nil
}

// Close implements ports.Alerter.
func (a *SIEMAlerter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	return err
}
