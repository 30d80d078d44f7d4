package ports

import (
	"context"

	"github.com/xoelrdgz/scanradar/internal/domain"
)

// Alerter dispatches a scan alert to one output channel (SIEM, email, ...).
//
// Send failures are per-alert and transient: the caller logs them and moves
// on; one channel failing must not affect another. Implementations must be
// safe for concurrent Send calls.
type Alerter interface {
	// Send dispatches a single alert. The alert is immutable and may be
	// retained by the implementation.
	Send(ctx context.Context, alert *domain.Alert) error

	// Name identifies the channel in logs ("siem", "email").
	Name() string

	// Close releases transport resources during shutdown.
	Close() error
}
