package output

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"

	"github.com/xoelrdgz/scanradar/internal/domain"
)

// emailSendTimeout bounds each SMTP conversation so a wedged relay cannot
// pile up goroutines behind it.
const emailSendTimeout = 10 * time.Second

// maxPortsInBody caps the port list shown in the mail body; the rest is
// summarized as " + N more".
const maxPortsInBody = 30

// EmailConfig carries the validated SMTP settings.
type EmailConfig struct {
	Server   string
	Port     uint16
	TLS      bool
	From     string
	To       []string
	Username string
	Password string
	Footer   string
}

// EmailAlerter sends HTML alert notifications over SMTP. The client is
// constructed once at startup — a bad server name or option set is a
// configuration error and must fail the process before it starts
// ingesting, unlike a transient send failure which is logged and
// swallowed.
type EmailAlerter struct {
	cfg    EmailConfig
	client *mail.Client
}

// NewEmailAlerter builds the SMTP client. With TLS disabled a single
// startup warning is emitted; credentials are optional — an empty
// username means the relay authorizes by source address and no AUTH is
// sent.
func NewEmailAlerter(cfg EmailConfig) (*EmailAlerter, error) {
	opts := []mail.Option{
		mail.WithPort(int(cfg.Port)),
		mail.WithTimeout(emailSendTimeout),
	}

	if cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
		log.Warn().Str("server", cfg.Server).Msg("SMTP TLS disabled, alert mail will travel in cleartext")
	}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Server, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp transport: %w", err)
	}

	return &EmailAlerter{cfg: cfg, client: client}, nil
}

// Name implements ports.Alerter.
func (a *EmailAlerter) Name() string {
	return "email"
}

// Send implements ports.Alerter: one message to all recipients.
func (a *EmailAlerter) Send(ctx context.Context, alert *domain.Alert) error {
	msg := mail.NewMsg()
	if err := msg.From(a.cfg.From); err != nil {
		return fmt.Errorf("invalid from address %q: %w", a.cfg.From, err)
	}
	if err := msg.To(a.cfg.To...); err != nil {
		return fmt.Errorf("invalid recipient list: %w", err)
	}

	msg.Subject(fmt.Sprintf("[%s][NETWORK SCAN] scanradar %s %d ports",
		alert.ScanType, alert.SourceIPString(), alert.PortCount()))
	msg.SetBodyString(mail.TypeTextHTML, a.htmlBody(alert))

	sendCtx, cancel := context.WithTimeout(ctx, emailSendTimeout)
	defer cancel()

	if err := a.client.DialAndSendWithContext(sendCtx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	log.Debug().
		Int("recipients", len(a.cfg.To)).
		Str("scan_type", string(alert.ScanType)).
		Msg("Email alert sent")
	return nil
}

// htmlBody renders the alert mail. All dynamic values are either typed
// (addresses, counts) or HTML-escaped (the operator footer, which may
// contain ASCII art full of angle brackets).
func (a *EmailAlerter) htmlBody(alert *domain.Alert) string {
	destIP := "N/A"
	if alert.DestIP.IsValid() {
		destIP = alert.DestIP.String()
	}

	replacer := strings.NewReplacer(
		"__SCAN_TYPE__", alert.ScanType.String(),
		"__SRC_IP__", alert.SourceIPString(),
		"__DST_IP__", destIP,
		"__PORT_COUNT__", strconv.Itoa(alert.PortCount()),
		"__TIMESTAMP__", alert.Timestamp.Format("2006-01-02 15:04:05"),
		"__PORTS__", portListForBody(alert.UniquePorts),
		"__FOOTER__", html.EscapeString(a.cfg.Footer),
	)
	return replacer.Replace(emailTemplate)
}

// portListForBody renders up to maxPortsInBody ports, summarizing the
// remainder.
func portListForBody(ports []uint16) string {
	var b strings.Builder
	n := len(ports)
	shown := n
	if shown > maxPortsInBody {
		shown = maxPortsInBody
	}
	for i := 0; i < shown; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(int(ports[i])))
	}
	if n > shown {
		fmt.Fprintf(&b, " + %d more", n-shown)
	}
	return b.String()
}

// Close implements ports.Alerter. The client dials per send, so there is
// no long-lived connection to tear down.
func (a *EmailAlerter) Close() error {
	return nil
}

// emailTemplate uses __VAR__ placeholders instead of fmt verbs so the CSS
// braces need no escaping.
const emailTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<style>
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: Arial, Helvetica, sans-serif; background: #f0f2f5; padding: 20px; }
  .wrap { max-width: 620px; margin: 0 auto; background: #fff; border-radius: 6px;
          overflow: hidden; box-shadow: 0 2px 10px rgba(0,0,0,0.12); }
  .hdr { background: linear-gradient(135deg, #c0392b 0%, #96281b 100%);
         color: #fff; padding: 24px 28px; }
  .hdr-label { font-size: 10px; text-transform: uppercase; letter-spacing: 2px;
               opacity: 0.7; margin-bottom: 10px; }
  .hdr h1 { font-size: 21px; font-weight: 700; margin-bottom: 12px; }
  .badge { display: inline-block; background: rgba(255,255,255,0.18);
           color: #fff; padding: 3px 11px; border-radius: 12px;
           font-size: 11px; font-weight: bold; margin-right: 6px; }
  .sec { padding: 18px 28px; border-bottom: 1px solid #ecf0f1; }
  .sec-title { font-size: 10px; text-transform: uppercase; letter-spacing: 1.5px;
               color: #95a5a6; font-weight: bold; margin-bottom: 12px; }
  .tbl { width: 100%; border-collapse: collapse; }
  .tbl td { padding: 7px 0; border-bottom: 1px solid #f4f6f8;
            font-size: 13px; vertical-align: top; }
  .tbl td:first-child { color: #7f8c8d; width: 155px; }
  .tbl td:last-child { color: #2c3e50; font-weight: 600; }
  .tbl tr:last-child td { border-bottom: none; }
  .ports-box { background: #fdf3f3; border-left: 4px solid #c0392b;
               padding: 11px 14px; font-family: 'Courier New', monospace;
               font-size: 12px; color: #2c3e50; line-height: 1.7;
               word-break: break-all; border-radius: 0 4px 4px 0; }
  .footer { background: #1e2a38; padding: 22px 28px; text-align: center; }
  .footer pre { color: #5d8aa8; font-size: 10px; font-family: 'Courier New', monospace;
                line-height: 1.5; margin-bottom: 14px; display: inline-block;
                text-align: left; }
  .footer p { color: #5d6d7e; font-size: 11px; }
</style>
</head>
<body>
<div class="wrap">

  <div class="hdr">
    <div class="hdr-label">scanradar &mdash; Network Scan Detection</div>
    <h1>&#x1F534; NETWORK SCAN ALERT</h1>
    <span class="badge">__SCAN_TYPE__</span>
    <span class="badge">Severity: HIGH</span>
  </div>

  <div class="sec">
    <div class="sec-title">Event details</div>
    <table class="tbl">
      <tr><td>Source IP</td><td>__SRC_IP__</td></tr>
      <tr><td>Destination IP</td><td>__DST_IP__</td></tr>
      <tr><td>Scanned ports</td><td>__PORT_COUNT__</td></tr>
      <tr><td>Timestamp</td><td>__TIMESTAMP__</td></tr>
    </table>
  </div>

  <div class="sec">
    <div class="sec-title">Detected ports</div>
    <div class="ports-box">__PORTS__</div>
  </div>

  <div class="footer">
    <pre>__FOOTER__</pre>
    <p>Generated automatically by scanradar &nbsp;|&nbsp; Do not reply to this email</p>
  </div>

</div>
</body>
</html>`
