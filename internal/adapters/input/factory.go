package input

import (
	"fmt"

	"github.com/xoelrdgz/scanradar/internal/ports"
)

// NewParser resolves a configured parser name to an implementation.
// Adding a format means implementing ports.LogParser and registering it
// here; nothing in the detector, alerter or ingress loop changes.
func NewParser(name string) (ports.LogParser, error) {
	switch name {
	case "gaia":
		return NewGaiaParser(), nil
	case "cef":
		return NewCEFParser(), nil
	default:
		return nil, fmt.Errorf("unknown parser %q: valid options are gaia, cef", name)
	}
}
