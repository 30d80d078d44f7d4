package output

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics exposes the ingress and detection counters for Prometheus
// scraping. All methods are nil-receiver safe so the server can carry a
// nil *Metrics when the endpoint is disabled.
type Metrics struct {
	datagramsTotal   prometheus.Counter
	linesTotal       prometheus.Counter
	eventsTotal      *prometheus.CounterVec
	parseFailures    prometheus.Counter
	alertsTotal      *prometheus.CounterVec
	rateLimitedDrops prometheus.Counter
	trackedIPs       prometheus.GaugeFunc

	server *http.Server
}

// NewMetrics registers the collectors under the given namespace.
// trackedIPs is sampled at scrape time.
func NewMetrics(namespace string, trackedIPs func() float64) *Metrics {
	if namespace == "" {
		namespace = "scanradar"
	}

	m := &Metrics{}

	m.datagramsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "datagrams_total",
		Help:      "UDP datagrams admitted by the ingress",
	})

	m.linesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lines_total",
		Help:      "Log lines extracted from admitted datagrams",
	})

	m.eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Parsed firewall events by action",
	}, []string{"action"})

	m.parseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "parse_failures_total",
		Help:      "Lines the active parser did not recognize",
	})

	m.alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_total",
		Help:      "Scan alerts emitted by type",
	}, []string{"type"})

	m.rateLimitedDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_datagrams_total",
		Help:      "Datagrams shed by the ingress token bucket",
	})

	m.trackedIPs = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_ips",
		Help:      "Source IPs currently tracked by the detector",
	}, trackedIPs)

	return m
}

func (m *Metrics) IncDatagrams() {
	if m != nil {
		m.datagramsTotal.Inc()
	}
}

func (m *Metrics) IncLines() {
	if m != nil {
		m.linesTotal.Inc()
	}
}

func (m *Metrics) IncEvents(action string) {
	if m != nil {
		m.eventsTotal.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncParseFailures() {
	if m != nil {
		m.parseFailures.Inc()
	}
}

func (m *Metrics) IncAlerts(scanType string) {
	if m != nil {
		m.alertsTotal.WithLabelValues(scanType).Inc()
	}
}

func (m *Metrics) AddRateLimitedDrops(n uint64) {
	if m != nil {
		m.rateLimitedDrops.Add(float64(n))
	}
}

// StartServer serves /metrics and /ready on addr in the background.
func (m *Metrics) StartServer(addr string) error {
	if m == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	m.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()

	log.Info().Str("addr", addr).Msg("Metrics server started")
	return nil
}

// StopServer shuts the metrics endpoint down with a short grace period.
func (m *Metrics) StopServer() {
	if m == nil || m.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = m.server.Shutdown(ctx)
}
