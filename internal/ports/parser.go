// Package ports defines the interfaces between the core pipeline and the
// adapters that implement it (input parsers, alert outputs), following the
// ports-and-adapters layout: small contracts here, implementations under
// internal/adapters/.
package ports

import (
	"github.com/xoelrdgz/scanradar/internal/domain"
)

// LogParser turns one text line into a LogEvent.
//
// Implementations must be safe to share across goroutines without external
// coordination: no shared mutable state, no blocking, no I/O. Returning
// ok == false means "not a line this detector cares about" — malformed
// lines are indistinguishable from irrelevant ones by design, neither is
// an error.
type LogParser interface {
	// Parse extracts a normalized event from a raw log line.
	Parse(line string) (event *domain.LogEvent, ok bool)

	// Name returns the parser's human-readable identifier.
	Name() string

	// ExpectedFormat returns an example of a line the parser accepts,
	// shown next to FAIL diagnostics in debug mode.
	ExpectedFormat() string
}
