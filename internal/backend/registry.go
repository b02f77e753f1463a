// Package backend provides clients and target resolution for the
// services the gateway fronts.
package backend

import (
	"fmt"
	"net/url"
	"time"

	"github.com/shoply/gateway/internal/config"
)

// Target describes a backend service the gateway can forward to.
type Target struct {
	Name    string
	URL     *url.URL
	Timeout time.Duration
}

// Registry resolves backend names to targets. It is immutable after
// construction.
type Registry struct {
	targets map[string]*Target
}

// NewRegistry creates a registry from backend configuration.
func NewRegistry(cfgs []config.BackendConfig) (*Registry, error) {
	targets := make(map[string]*Target, len(cfgs))
	for _, cfg := range cfgs {
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("backend %s: invalid url: %w", cfg.Name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("backend %s: unsupported scheme %q", cfg.Name, u.Scheme)
		}
		targets[cfg.Name] = &Target{
			Name:    cfg.Name,
			URL:     u,
			Timeout: cfg.Timeout.Duration(),
		}
	}
	return &Registry{targets: targets}, nil
}

// Get returns the target for a backend name.
func (r *Registry) Get(name string) (*Target, bool) {
	t, ok := r.targets[name]
	return t, ok
}
