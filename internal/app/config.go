// Package app wires the pipeline together: configuration loading and
// validation, and the server that drives ingress, detection, alerting and
// cleanup.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the validated, immutable runtime configuration. It is loaded
// once at startup; nothing mutates it afterwards and every component
// reads it through a value or a dedicated sub-struct.
type Config struct {
	Network   NetworkConfig   `mapstructure:"network"`
	Detection DetectionConfig `mapstructure:"detection"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type NetworkConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
	ListenPort    uint16 `mapstructure:"listen_port"`
	Parser        string `mapstructure:"parser"`
	Debug         bool   `mapstructure:"debug"`

	// UDPRateLimit is tokens per second for ingress admission; 0
	// disables rate limiting. UDPBurstSize is the bucket capacity.
	UDPRateLimit uint32 `mapstructure:"udp_rate_limit"`
	UDPBurstSize uint32 `mapstructure:"udp_burst_size"`
}

type DetectionConfig struct {
	AlertCooldownSecs uint64 `mapstructure:"alert_cooldown_secs"`
	MaxHitsPerIP      int    `mapstructure:"max_hits_per_ip"`
	MaxTrackedIPs     int    `mapstructure:"max_tracked_ips"`

	FastScan   FastScanConfig   `mapstructure:"fast_scan"`
	SlowScan   SlowScanConfig   `mapstructure:"slow_scan"`
	AcceptScan AcceptScanConfig `mapstructure:"accept_scan"`
}

type FastScanConfig struct {
	PortThreshold  int    `mapstructure:"port_threshold"`
	TimeWindowSecs uint64 `mapstructure:"time_window_secs"`
}

type SlowScanConfig struct {
	PortThreshold  int    `mapstructure:"port_threshold"`
	TimeWindowMins uint64 `mapstructure:"time_window_mins"`
}

type AcceptScanConfig struct {
	PortThreshold  int    `mapstructure:"port_threshold"`
	TimeWindowSecs uint64 `mapstructure:"time_window_secs"`
}

type CleanupConfig struct {
	IntervalSecs    uint64 `mapstructure:"interval_secs"`
	MaxEntryAgeSecs uint64 `mapstructure:"max_entry_age_secs"`
}

type AlertingConfig struct {
	SIEM  SIEMConfig  `mapstructure:"siem"`
	Email EmailConfig `mapstructure:"email"`
}

type SIEMConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    uint16 `mapstructure:"port"`

	// Hostname is the HOST field of the emitted syslog header.
	Hostname string `mapstructure:"hostname"`
}

type EmailConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	SMTPServer string   `mapstructure:"smtp_server"`
	SMTPPort   uint16   `mapstructure:"smtp_port"`
	SMTPTLS    bool     `mapstructure:"smtp_tls"`
	From       string   `mapstructure:"from"`
	To         []string `mapstructure:"to"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	Footer     string   `mapstructure:"footer"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// SlowWindow returns the slow-scan window as a duration.
func (d DetectionConfig) SlowWindow() time.Duration {
	return time.Duration(d.SlowScan.TimeWindowMins) * time.Minute
}

// FastWindow returns the fast-scan window as a duration.
func (d DetectionConfig) FastWindow() time.Duration {
	return time.Duration(d.FastScan.TimeWindowSecs) * time.Second
}

// AcceptWindow returns the accept-scan window as a duration.
func (d DetectionConfig) AcceptWindow() time.Duration {
	return time.Duration(d.AcceptScan.TimeWindowSecs) * time.Second
}

// ValidationError reports every configuration violation found in one
// pass, so the operator fixes the file once instead of replaying
// restart-fail cycles per mistake.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "configuration has %d error(s):", len(e.Problems))
	for i, p := range e.Problems {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, p)
	}
	return b.String()
}

// Load reads, parses and validates the TOML configuration at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("network.listen_address", "0.0.0.0")
	v.SetDefault("network.listen_port", 514)
	v.SetDefault("network.parser", "gaia")
	v.SetDefault("network.debug", false)
	v.SetDefault("network.udp_rate_limit", 0)
	v.SetDefault("network.udp_burst_size", 0)

	v.SetDefault("detection.alert_cooldown_secs", 300)
	v.SetDefault("detection.max_hits_per_ip", 10000)
	v.SetDefault("detection.max_tracked_ips", 100000)
	v.SetDefault("detection.fast_scan.port_threshold", 15)
	v.SetDefault("detection.fast_scan.time_window_secs", 10)
	v.SetDefault("detection.slow_scan.port_threshold", 30)
	v.SetDefault("detection.slow_scan.time_window_mins", 5)
	v.SetDefault("detection.accept_scan.port_threshold", 5)
	v.SetDefault("detection.accept_scan.time_window_secs", 30)

	v.SetDefault("cleanup.interval_secs", 60)
	v.SetDefault("cleanup.max_entry_age_secs", 600)

	v.SetDefault("alerting.siem.enabled", false)
	v.SetDefault("alerting.siem.hostname", "ids-rs")
	v.SetDefault("alerting.email.enabled", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9090")

	v.SetDefault("logging.level", "info")
}

// Validate checks every semantic constraint and reports all violations at
// once. Type errors were already rejected by the TOML unmarshal.
func (c *Config) Validate() error {
	var problems []string

	if c.Network.ListenAddress == "" {
		problems = append(problems, "network.listen_address must not be empty")
	}
	if c.Network.ListenPort == 0 {
		problems = append(problems, "network.listen_port = 0: port 0 makes the OS pick a random port on every start")
	}
	if c.Network.Parser != "gaia" && c.Network.Parser != "cef" {
		problems = append(problems, fmt.Sprintf("network.parser = %q is invalid: valid values are \"gaia\", \"cef\"", c.Network.Parser))
	}
	if c.Network.UDPRateLimit > 0 && c.Network.UDPBurstSize == 0 {
		problems = append(problems, "network.udp_burst_size must be at least 1 when udp_rate_limit is set")
	}

	if c.Detection.AlertCooldownSecs == 0 {
		problems = append(problems, "detection.alert_cooldown_secs = 0: without a cooldown the same IP alerts on every event")
	}
	if c.Detection.MaxHitsPerIP < 1 {
		problems = append(problems, "detection.max_hits_per_ip must be at least 1")
	}
	if c.Detection.MaxTrackedIPs < 1 {
		problems = append(problems, "detection.max_tracked_ips must be at least 1")
	}
	if c.Detection.FastScan.PortThreshold < 1 {
		problems = append(problems, "detection.fast_scan.port_threshold = 0: every packet would trigger a fast-scan alert")
	}
	if c.Detection.FastScan.TimeWindowSecs == 0 {
		problems = append(problems, "detection.fast_scan.time_window_secs = 0: a zero window makes detection impossible")
	}
	if c.Detection.SlowScan.PortThreshold < 1 {
		problems = append(problems, "detection.slow_scan.port_threshold = 0: every packet would trigger a slow-scan alert")
	}
	if c.Detection.SlowScan.TimeWindowMins == 0 {
		problems = append(problems, "detection.slow_scan.time_window_mins = 0: a zero window makes detection impossible")
	}
	if c.Detection.AcceptScan.PortThreshold < 1 {
		problems = append(problems, "detection.accept_scan.port_threshold = 0: every packet would trigger an accept-scan alert")
	}
	if c.Detection.AcceptScan.TimeWindowSecs == 0 {
		problems = append(problems, "detection.accept_scan.time_window_secs = 0: a zero window makes detection impossible")
	}

	fastSecs := c.Detection.FastScan.TimeWindowSecs
	slowSecs := c.Detection.SlowScan.TimeWindowMins * 60
	if fastSecs > 0 && slowSecs > 0 && slowSecs <= fastSecs {
		problems = append(problems, fmt.Sprintf(
			"detection.slow_scan.time_window_mins (%d min = %ds) must be strictly greater than detection.fast_scan.time_window_secs (%ds)",
			c.Detection.SlowScan.TimeWindowMins, slowSecs, fastSecs))
	}

	if c.Cleanup.IntervalSecs == 0 {
		problems = append(problems, "cleanup.interval_secs = 0: continuous cleanup would starve event processing")
	}
	if c.Cleanup.MaxEntryAgeSecs == 0 {
		problems = append(problems, "cleanup.max_entry_age_secs = 0: all state would be wiped on every cleanup pass")
	}
	if c.Cleanup.MaxEntryAgeSecs > 0 && slowSecs > 0 && c.Cleanup.MaxEntryAgeSecs < slowSecs {
		problems = append(problems, fmt.Sprintf(
			"cleanup.max_entry_age_secs (%d) is below the slow-scan window (%d min = %ds): slow-scan evidence would be reaped before evaluation",
			c.Cleanup.MaxEntryAgeSecs, c.Detection.SlowScan.TimeWindowMins, slowSecs))
	}

	if c.Alerting.SIEM.Enabled {
		if c.Alerting.SIEM.Host == "" {
			problems = append(problems, "alerting.siem.host must not be empty when SIEM is enabled")
		}
		if c.Alerting.SIEM.Port == 0 {
			problems = append(problems, "alerting.siem.port = 0 is invalid")
		}
	}

	if c.Alerting.Email.Enabled {
		if c.Alerting.Email.SMTPServer == "" {
			problems = append(problems, "alerting.email.smtp_server must not be empty when email is enabled")
		}
		if c.Alerting.Email.SMTPPort == 0 {
			problems = append(problems, "alerting.email.smtp_port = 0 is invalid")
		}
		if c.Alerting.Email.From == "" {
			problems = append(problems, "alerting.email.from must not be empty when email is enabled")
		}
		if len(c.Alerting.Email.To) == 0 {
			problems = append(problems, "alerting.email.to must list at least one recipient")
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
