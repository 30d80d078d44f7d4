package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/xoelrdgz/scanradar/internal/adapters/detection"
	"github.com/xoelrdgz/scanradar/internal/adapters/output"
	"github.com/xoelrdgz/scanradar/internal/display"
	"github.com/xoelrdgz/scanradar/internal/domain"
	"github.com/xoelrdgz/scanradar/internal/ports"
	"github.com/xoelrdgz/scanradar/pkg/ratelimit"
)

const (
	// maxDatagramSize is the largest possible UDP payload; one buffer of
	// this size is reused across receive iterations.
	maxDatagramSize = 65535

	// dropReportInterval paces the rate-limiter shed report.
	dropReportInterval = 30 * time.Second

	// drainTimeout bounds how long shutdown waits for in-flight alert
	// sends.
	drainTimeout = 5 * time.Second
)

// Server owns the UDP socket and drives the pipeline: admission via the
// token bucket, line splitting, parsing, detection, and alert fan-out. A
// cleanup task and a drop reporter run beside the ingress loop; all three
// stop together on context cancellation.
type Server struct {
	cfg      *Config
	parser   ports.LogParser
	detector *detection.Detector
	alerters []ports.Alerter
	bucket   *ratelimit.Bucket
	metrics  *output.Metrics

	conn *net.UDPConn

	// inFlight tracks alert fan-out goroutines so shutdown can drain
	// them within drainTimeout.
	inFlight sync.WaitGroup
}

// NewDetector builds a detector from the validated configuration.
func NewDetector(cfg *Config) *detection.Detector {
	return detection.New(detection.Config{
		AlertCooldown:   time.Duration(cfg.Detection.AlertCooldownSecs) * time.Second,
		MaxHitsPerIP:    cfg.Detection.MaxHitsPerIP,
		MaxTrackedIPs:   cfg.Detection.MaxTrackedIPs,
		FastThreshold:   cfg.Detection.FastScan.PortThreshold,
		FastWindow:      cfg.Detection.FastWindow(),
		SlowThreshold:   cfg.Detection.SlowScan.PortThreshold,
		SlowWindow:      cfg.Detection.SlowWindow(),
		AcceptThreshold: cfg.Detection.AcceptScan.PortThreshold,
		AcceptWindow:    cfg.Detection.AcceptWindow(),
	})
}

// NewServer assembles a server from already-constructed components.
// metrics may be nil when the endpoint is disabled.
func NewServer(cfg *Config, parser ports.LogParser, detector *detection.Detector, alerters []ports.Alerter, bucket *ratelimit.Bucket, metrics *output.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		parser:   parser,
		detector: detector,
		alerters: alerters,
		bucket:   bucket,
		metrics:  metrics,
	}
}

// Bind opens the ingress socket. Split from Run so callers can learn the
// bound address before traffic starts (the OS picks the port when the
// configured one is 0, as tests do).
func (s *Server) Bind() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Network.ListenAddress, s.cfg.Network.ListenPort)
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolving listen address %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("binding udp %s: %w", addr, err)
	}
	s.conn = conn
	return nil
}

// LocalAddr returns the bound ingress address, nil before Bind.
func (s *Server) LocalAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Run processes datagrams until the context is cancelled, then drains
// in-flight alerts and closes the output channels. A nil return means a
// graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	if s.conn == nil {
		if err := s.Bind(); err != nil {
			return err
		}
	}

	log.Info().
		Stringer("addr", s.conn.LocalAddr()).
		Str("parser", s.parser.Name()).
		Msg("Listening for firewall logs")

	g, gctx := errgroup.WithContext(ctx)

	// A blocked ReadFromUDP does not observe context cancellation;
	// closing the socket is what unblocks it.
	go func() {
		<-gctx.Done()
		_ = s.conn.Close()
	}()

	g.Go(func() error { return s.ingress(gctx) })
	g.Go(func() error { return s.cleanupLoop(gctx) })
	g.Go(func() error { return s.dropReporter(gctx) })

	err := g.Wait()

	s.drain()

	for _, alerter := range s.alerters {
		if cerr := alerter.Close(); cerr != nil {
			log.Error().Err(cerr).Str("channel", alerter.Name()).Msg("Error closing alerter")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}

// ingress is the single reader of the UDP socket and the single driver of
// the token bucket and the detector.
func (s *Server) ingress(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)

	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			// Receive errors are usually transient; keep going.
			log.Warn().Err(err).Msg("UDP receive error")
			continue
		}

		if !s.bucket.TryAcquire(time.Now()) {
			continue
		}
		s.metrics.IncDatagrams()

		s.processDatagram(ctx, buf[:n])
	}
}

// processDatagram splits a datagram into lines and feeds each through the
// pipeline. Invalid UTF-8 is replaced with U+FFFD rather than rejected —
// the ingress never aborts on decoding.
func (s *Server) processDatagram(ctx context.Context, data []byte) {
	text := strings.ToValidUTF8(string(data), "�")

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.metrics.IncLines()
		s.handleLine(ctx, line)
	}
}

// handleLine parses one line and, when it yields an event, runs detection
// and dispatches any resulting alerts.
func (s *Server) handleLine(ctx context.Context, line string) {
	debug := s.cfg.Network.Debug
	if debug {
		display.DebugRaw(line)
	}

	event, ok := s.parser.Parse(line)
	if !ok {
		s.metrics.IncParseFailures()
		if debug {
			display.DebugParseFail(line, s.parser.Name(), s.parser.ExpectedFormat())
		}
		return
	}

	if debug {
		display.DebugParseOK(event)
	}
	display.Event(event)
	log.Debug().Str("raw", event.RawLine).Msg("Firewall event")
	s.metrics.IncEvents(event.Action)

	for _, alert := range s.detector.ProcessEvent(event) {
		alert := alert
		display.Alert(&alert)
		log.Info().
			Str("scan_type", string(alert.ScanType)).
			Str("source_ip", alert.SourceIPString()).
			Int("unique_ports", alert.PortCount()).
			Msg("Scan detected")
		s.metrics.IncAlerts(string(alert.ScanType))
		s.dispatch(ctx, &alert)
	}
}

// dispatch fans an alert out to every channel without blocking the
// ingress loop. The goroutine survives shutdown cancellation so an alert
// already in flight gets its bounded chance to leave; the email channel
// carries its own per-send timeout.
func (s *Server) dispatch(ctx context.Context, alert *domain.Alert) {
	sendCtx := context.WithoutCancel(ctx)

	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		for _, alerter := range s.alerters {
			if err := alerter.Send(sendCtx, alert); err != nil {
				log.Error().Err(err).Str("channel", alerter.Name()).Msg("Alert send failed")
				continue
			}
			display.AlertSent(alerter.Name(), alert.ScanType.String())
		}
	}()
}

// cleanupLoop prunes detector state every interval. The first pass runs a
// full interval after startup: a fresh detector has nothing to clean.
func (s *Server) cleanupLoop(ctx context.Context) error {
	interval := time.Duration(s.cfg.Cleanup.IntervalSecs) * time.Second
	maxAge := time.Duration(s.cfg.Cleanup.MaxEntryAgeSecs) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			before := s.detector.TrackedIPs()
			s.detector.Cleanup(maxAge)
			after := s.detector.TrackedIPs()

			if reaped := before - after; after > 0 || reaped > 0 {
				display.Stats(after, reaped)
				log.Debug().
					Int("tracked_ips", after).
					Int("reaped", reaped).
					Msg("Cleanup pass finished")
			}
		}
	}
}

// dropReporter periodically logs how many datagrams the token bucket
// shed, then resets the counter.
func (s *Server) dropReporter(ctx context.Context) error {
	if s.bucket.Disabled() {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(dropReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.bucket.SnapshotDropped(); n > 0 {
				log.Warn().Uint64("dropped", n).Msg("Rate limiter shed datagrams")
				s.metrics.AddRateLimitedDrops(n)
			}
		}
	}
}

// drain waits for in-flight alert sends, bounded by drainTimeout.
func (s *Server) drain() {
	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		log.Warn().Msg("Shutdown drain timeout, abandoning in-flight alerts")
	}
}
