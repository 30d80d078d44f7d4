package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xoelrdgz/scanradar/internal/adapters/input"
	"github.com/xoelrdgz/scanradar/internal/adapters/output"
	"github.com/xoelrdgz/scanradar/internal/app"
	"github.com/xoelrdgz/scanradar/internal/display"
	"github.com/xoelrdgz/scanradar/internal/ports"
	"github.com/xoelrdgz/scanradar/pkg/ratelimit"
)

var (
	cfgFile    string
	replayFile string
	follow     bool

	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "scanradar",
	Short: "Firewall-log port scan detector",
	Long: `scanradar ingests firewall syslog over UDP, tracks per-source-IP
port-access patterns, and raises CEF-over-syslog alerts towards a SIEM
(and optionally email) when scan behavior is detected.

Detection rules:
  - Fast Scan:   many distinct blocked ports in a short window
  - Slow Scan:   many distinct blocked ports in a long window
  - Accept Scan: many distinct accepted ports (open-service enumeration)`,
}

var runCmd = &cobra.Command{
	Use:   "run [config.toml]",
	Short: "Start the UDP ingress and detection pipeline",
	Long: `Start listening for firewall logs on the configured UDP port.

The configuration file defaults to ./config.toml; pass a path as the
first argument or via --config. The process exits 0 on graceful shutdown
(Ctrl+C / SIGTERM) and nonzero when the configuration is invalid or the
socket cannot be bound.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServer,
}

var replayCmd = &cobra.Command{
	Use:   "replay [config.toml]",
	Short: "Replay a saved firewall log file through the pipeline",
	Long: `Read a firewall log file line by line through the configured parser
and detection rules, raising the same alerts the live ingress would.
Useful for backfill analysis of archived logs; with --follow the file is
tailed as it grows.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scanradar %s\n", Version)
		fmt.Printf("Commit:  %s\n", Commit)
		fmt.Printf("Built:   %s\n", BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.toml)")

	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "log file to replay (required)")
	replayCmd.Flags().BoolVar(&follow, "follow", false, "keep tailing the file after EOF")
	_ = replayCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(args []string) (*app.Config, error) {
	path := cfgFile
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		path = "./config.toml"
	}
	return app.Load(path)
}

func setupLogging(cfg *app.Config) {
	switch cfg.Logging.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}

// buildAlerters constructs the enabled alert channels. An email transport
// that cannot be constructed is a fatal configuration error, by contrast
// with per-alert send failures which are logged and swallowed at runtime.
func buildAlerters(cfg *app.Config) ([]ports.Alerter, error) {
	var alerters []ports.Alerter

	builder := output.NewDatagramBuilder(
		cfg.Alerting.SIEM.Hostname,
		cfg.Detection.FastScan.TimeWindowSecs,
		cfg.Detection.SlowScan.TimeWindowMins,
		cfg.Detection.AcceptScan.TimeWindowSecs,
	)

	if cfg.Alerting.SIEM.Enabled {
		alerters = append(alerters, output.NewSIEMAlerter(cfg.Alerting.SIEM.Host, cfg.Alerting.SIEM.Port, builder))
		log.Info().
			Str("host", cfg.Alerting.SIEM.Host).
			Uint16("port", cfg.Alerting.SIEM.Port).
			Msg("SIEM alerting enabled")
	}

	if cfg.Alerting.Email.Enabled {
		email, err := output.NewEmailAlerter(output.EmailConfig{
			Server:   cfg.Alerting.Email.SMTPServer,
			Port:     cfg.Alerting.Email.SMTPPort,
			TLS:      cfg.Alerting.Email.SMTPTLS,
			From:     cfg.Alerting.Email.From,
			To:       cfg.Alerting.Email.To,
			Username: cfg.Alerting.Email.Username,
			Password: cfg.Alerting.Email.Password,
			Footer:   cfg.Alerting.Email.Footer,
		})
		if err != nil {
			return nil, err
		}
		alerters = append(alerters, email)
		log.Info().
			Str("server", cfg.Alerting.Email.SMTPServer).
			Int("recipients", len(cfg.Alerting.Email.To)).
			Msg("Email alerting enabled")
	}

	return alerters, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	parser, err := input.NewParser(cfg.Network.Parser)
	if err != nil {
		return err
	}

	detector := app.NewDetector(cfg)

	alerters, err := buildAlerters(cfg)
	if err != nil {
		return err
	}

	var metrics *output.Metrics
	if cfg.Metrics.Enabled {
		metrics = output.NewMetrics("scanradar", func() float64 {
			return float64(detector.TrackedIPs())
		})
		if err := metrics.StartServer(cfg.Metrics.Listen); err != nil {
			return err
		}
		defer metrics.StopServer()
	}

	display.Banner(display.BannerInfo{
		Version:       Version,
		ListenAddress: cfg.Network.ListenAddress,
		ListenPort:    cfg.Network.ListenPort,
		ParserName:    parser.Name(),
		SIEMEnabled:   cfg.Alerting.SIEM.Enabled,
		SIEMTarget:    fmt.Sprintf("%s:%d", cfg.Alerting.SIEM.Host, cfg.Alerting.SIEM.Port),
		EmailEnabled:  cfg.Alerting.Email.Enabled,
		RateLimit:     cfg.Network.UDPRateLimit,
		Debug:         cfg.Network.Debug,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bucket := ratelimit.New(cfg.Network.UDPRateLimit, cfg.Network.UDPBurstSize)
	srv := app.NewServer(cfg, parser, detector, alerters, bucket, metrics)
	return srv.Run(ctx)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	parser, err := input.NewParser(cfg.Network.Parser)
	if err != nil {
		return err
	}

	detector := app.NewDetector(cfg)

	alerters, err := buildAlerters(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, a := range alerters {
			_ = a.Close()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := input.NewReplaySource(replayFile, parser, follow, 1000)
	defer func() { _ = source.Stop() }()

	var alertCount int
	for event := range source.Start(ctx) {
		display.Event(event)
		for _, alert := range detector.ProcessEvent(event) {
			alert := alert
			alertCount++
			display.Alert(&alert)
			for _, alerter := range alerters {
				if err := alerter.Send(ctx, &alert); err != nil {
					log.Error().Err(err).Str("channel", alerter.Name()).Msg("Alert send failed")
					continue
				}
				display.AlertSent(alerter.Name(), alert.ScanType.String())
			}
		}
	}

	log.Info().
		Int("alerts", alertCount).
		Int("tracked_ips", detector.TrackedIPs()).
		Msg("Replay complete")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
