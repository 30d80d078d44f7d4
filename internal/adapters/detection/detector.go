// Package detection implements per-source-IP port-scan detection over
// firewall events.
//
// Three rules run against sliding windows of recorded port hits:
//   - Fast Scan: many distinct blocked ports in a short window
//   - Slow Scan: many distinct blocked ports in a long window
//   - Accept Scan: many distinct accepted ports (open-service enumeration)
//
// Memory is hard-bounded: a FIFO cap on hits per IP per kind, and an LRU
// cap on the number of tracked IPs, so a flood of spoofed source
// addresses degrades into evictions instead of exhaustion.
package detection

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/xoelrdgz/scanradar/internal/domain"
)

// Config carries the detection thresholds. All windows and the cooldown
// are validated positive by the config loader before a Detector is built.
type Config struct {
	AlertCooldown time.Duration // per-IP, per-rule silence after an alert
	MaxHitsPerIP  int           // FIFO cap per IP per kind
	MaxTrackedIPs int           // LRU cap on distinct tracked IPs

	FastThreshold int           // unique blocked ports, strictly exceeded
	FastWindow    time.Duration

	SlowThreshold int
	SlowWindow    time.Duration

	AcceptThreshold int
	AcceptWindow    time.Duration
}

// Stats is a diagnostic snapshot of the detector's tables.
type Stats struct {
	TrackedIPs int // entries in the last-seen table (source of truth)
	DropIPs    int // IPs with blocked-port history
	AcceptIPs  int // IPs with accepted-port history
}

// Detector holds the per-IP scan state. One mutex guards all six tables:
// the ingress loop is the single event producer and the cleanup task is
// the only other writer, so serializing them keeps the compound
// admit-evict-insert step trivially atomic. The lock is never held across
// I/O.
type Detector struct {
	mu sync.Mutex

	// dropHits and acceptHits are kept strictly separate: mixing the two
	// streams would let accepted traffic feed the fast/slow rules and
	// vice versa. Each slice is append-ordered, so it is non-decreasing
	// in SeenAt.
	dropHits   map[netip.Addr][]domain.PortHit
	acceptHits map[netip.Addr][]domain.PortHit

	fastCooldowns   map[netip.Addr]time.Time
	slowCooldowns   map[netip.Addr]time.Time
	acceptCooldowns map[netip.Addr]time.Time

	// lastSeen tracks the most recent activity of any kind per IP and is
	// the source of truth for the tracked-IP count and LRU eviction.
	lastSeen map[netip.Addr]time.Time

	cfg Config

	// now is swappable in tests. The returned time.Time carries Go's
	// monotonic reading; every window and cooldown comparison runs on it.
	now func() time.Time
}

// New creates a Detector with the given thresholds.
func New(cfg Config) *Detector {
	return &Detector{
		dropHits:        make(map[netip.Addr][]domain.PortHit),
		acceptHits:      make(map[netip.Addr][]domain.PortHit),
		fastCooldowns:   make(map[netip.Addr]time.Time),
		slowCooldowns:   make(map[netip.Addr]time.Time),
		acceptCooldowns: make(map[netip.Addr]time.Time),
		lastSeen:        make(map[netip.Addr]time.Time),
		cfg:             cfg,
		now:             time.Now,
	}
}

// ProcessEvent records one firewall event and returns any alerts it
// triggered. Drop events feed the fast and slow rules; accept events feed
// only the accept rule. The call never fails: events with unknown actions
// were already filtered by the parser.
func (d *Detector) ProcessEvent(event *domain.LogEvent) []domain.Alert {
	now := d.now()
	ip := event.SourceIP

	d.mu.Lock()
	defer d.mu.Unlock()

	// Admission: a new IP at capacity evicts the least recently seen one
	// from every table, cooldowns included — leaving a cooldown behind
	// would leak an entry per evicted scanner over a long run.
	if _, tracked := d.lastSeen[ip]; !tracked && len(d.lastSeen) >= d.cfg.MaxTrackedIPs {
		d.evictOldest()
	}

	isDrop := event.Action == domain.ActionDrop
	hits := d.dropHits
	if !isDrop {
		hits = d.acceptHits
	}

	seq := append(hits[ip], domain.PortHit{Port: event.DestPort, SeenAt: now})
	if overflow := len(seq) - d.cfg.MaxHitsPerIP; overflow > 0 {
		// Keep the most recent window; the oldest entries go first.
		seq = append(seq[:0], seq[overflow:]...)
	}
	hits[ip] = seq

	d.lastSeen[ip] = now

	var alerts []domain.Alert

	if isDrop {
		if ports := uniquePortsInWindow(seq, d.cfg.FastWindow, now); len(ports) > d.cfg.FastThreshold && d.armed(d.fastCooldowns, ip, now) {
			d.fastCooldowns[ip] = now
			alerts = append(alerts, d.newAlert(domain.ScanTypeFast, event, ports))
		}
		if ports := uniquePortsInWindow(seq, d.cfg.SlowWindow, now); len(ports) > d.cfg.SlowThreshold && d.armed(d.slowCooldowns, ip, now) {
			d.slowCooldowns[ip] = now
			alerts = append(alerts, d.newAlert(domain.ScanTypeSlow, event, ports))
		}
	} else {
		if ports := uniquePortsInWindow(seq, d.cfg.AcceptWindow, now); len(ports) > d.cfg.AcceptThreshold && d.armed(d.acceptCooldowns, ip, now) {
			d.acceptCooldowns[ip] = now
			alerts = append(alerts, d.newAlert(domain.ScanTypeAccept, event, ports))
		}
	}

	return alerts
}

// evictOldest removes the IP with the minimum last-seen timestamp from
// every table. O(n) over the tracked set: eviction only runs when a new
// IP arrives at capacity, and a linear scan over even the default 100 000
// entries is well under a millisecond.
func (d *Detector) evictOldest() {
	var (
		oldest   netip.Addr
		oldestAt time.Time
		found    bool
	)
	for ip, at := range d.lastSeen {
		if !found || at.Before(oldestAt) {
			oldest, oldestAt, found = ip, at, true
		}
	}
	if !found {
		return
	}

	delete(d.dropHits, oldest)
	delete(d.acceptHits, oldest)
	delete(d.lastSeen, oldest)
	delete(d.fastCooldowns, oldest)
	delete(d.slowCooldowns, oldest)
	delete(d.acceptCooldowns, oldest)
}

// armed reports whether the cooldown table allows a fresh alert for ip:
// either no entry, or the elapsed time reached the configured cooldown.
func (d *Detector) armed(cooldowns map[netip.Addr]time.Time, ip netip.Addr, now time.Time) bool {
	last, ok := cooldowns[ip]
	if !ok {
		return true
	}
	return now.Sub(last) >= d.cfg.AlertCooldown
}

func (d *Detector) newAlert(kind domain.ScanType, event *domain.LogEvent, ports []uint16) domain.Alert {
	return domain.Alert{
		ScanType:    kind,
		SourceIP:    event.SourceIP,
		DestIP:      event.DestIP,
		UniquePorts: ports,
		Timestamp:   d.now(),
	}
}

// uniquePortsInWindow collects the distinct ports whose hits fall inside
// the window, sorted ascending. Hits are time-ordered, so the scan walks
// newest to oldest and stops at the first entry outside the window.
func uniquePortsInWindow(hits []domain.PortHit, window time.Duration, now time.Time) []uint16 {
	seen := make(map[uint16]struct{})
	for i := len(hits) - 1; i >= 0; i-- {
		if now.Sub(hits[i].SeenAt) > window {
			break
		}
		seen[hits[i].Port] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}

	ports := make([]uint16, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}

// Cleanup drops hits older than maxAge, removes IPs left with no history
// from the last-seen table, and reaps expired cooldown entries. Invoked
// periodically by the server's cleanup task.
func (d *Detector) Cleanup(maxAge time.Duration) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	pruneHits(d.dropHits, maxAge, now)
	pruneHits(d.acceptHits, maxAge, now)

	// An IP stays tracked only while at least one hit map still knows it.
	for ip := range d.lastSeen {
		if _, ok := d.dropHits[ip]; ok {
			continue
		}
		if _, ok := d.acceptHits[ip]; ok {
			continue
		}
		delete(d.lastSeen, ip)
	}

	pruneCooldowns(d.fastCooldowns, d.cfg.AlertCooldown, now)
	pruneCooldowns(d.slowCooldowns, d.cfg.AlertCooldown, now)
	pruneCooldowns(d.acceptCooldowns, d.cfg.AlertCooldown, now)
}

func pruneHits(hits map[netip.Addr][]domain.PortHit, maxAge time.Duration, now time.Time) {
	for ip, seq := range hits {
		// Hits are time-ordered: find the first one still inside maxAge
		// and keep everything from there on.
		keepFrom := len(seq)
		for i, hit := range seq {
			if now.Sub(hit.SeenAt) <= maxAge {
				keepFrom = i
				break
			}
		}
		if keepFrom == len(seq) {
			delete(hits, ip)
			continue
		}
		if keepFrom > 0 {
			hits[ip] = append(seq[:0:0], seq[keepFrom:]...)
		}
	}
}

func pruneCooldowns(cooldowns map[netip.Addr]time.Time, cooldown time.Duration, now time.Time) {
	for ip, at := range cooldowns {
		if now.Sub(at) > cooldown {
			delete(cooldowns, ip)
		}
	}
}

// TrackedIPs returns the number of IPs currently tracked.
func (d *Detector) TrackedIPs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lastSeen)
}

// Snapshot returns diagnostic table sizes.
func (d *Detector) Snapshot() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		TrackedIPs: len(d.lastSeen),
		DropIPs:    len(d.dropHits),
		AcceptIPs:  len(d.acceptHits),
	}
}
