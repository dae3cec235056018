// Package endpoint resolves, per tenant, where that tenant's
// conversation history lives: the local session store or a remote
// peer instance reached over HTTP.
package endpoint

import (
	"errors"
	"fmt"
)

// ErrConfiguration reports an incomplete or inconsistent endpoint
// configuration.
var ErrConfiguration = errors.New("endpoint configuration invalid")

// Mode selects how a tenant's history queries are answered.
type Mode string

const (
	// ModeLocal answers queries directly from a session store.
	ModeLocal Mode = "local"
	// ModeRemote proxies queries to a peer history server.
	ModeRemote Mode = "remote"
)

// Descriptor is one tenant's history endpoint configuration.
// Exactly one connection shape applies: remote descriptors carry a
// URL and auth token, local descriptors carry a store path.
type Descriptor struct {
	Mode  Mode   `json:"type"`
	URL   string `json:"url,omitempty"`
	Token string `json:"token,omitempty"`
	DB    string `json:"db,omitempty"`
}

// Validate reports whether the descriptor's connection parameters
// are complete for its mode.
func (d Descriptor) Validate() error {
	switch d.Mode {
	case ModeRemote:
		if d.URL == "" {
			return fmt.Errorf("%w: remote endpoint missing url", ErrConfiguration)
		}
	case ModeLocal:
		if d.DB == "" {
			return fmt.Errorf("%w: local endpoint missing db path", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrConfiguration, d.Mode)
	}
	return nil
}
