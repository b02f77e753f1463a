// Package health serves the liveness and readiness endpoints.
package health

import (
	"net/http"
	"sync/atomic"

	"github.com/shoply/gateway/internal/util"
)

// Checker tracks process readiness. Liveness is unconditional; the
// process answers as long as it can serve HTTP.
type Checker struct {
	ready atomic.Bool
}

// NewChecker creates a checker that starts not ready.
func NewChecker() *Checker {
	return &Checker{}
}

// SetReady flips readiness. The application marks ready once wiring is
// complete and not ready when shutdown begins, so load balancers drain
// before the listener closes.
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// Register mounts the endpoints on the mux.
func (c *Checker) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", c.handleLive)
	mux.HandleFunc("GET /readyz", c.handleReady)
}

func (c *Checker) handleLive(w http.ResponseWriter, _ *http.Request) {
	util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *Checker) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !c.ready.Load() {
		util.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
