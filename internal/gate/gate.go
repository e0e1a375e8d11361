// Package gate holds the operator-controlled switch that makes the proxy
// reject every forwarded request with a synthetic 429.
package gate

import (
	"net/http"
	"sync"
	"time"
)

// RetryDelay is added to the current time to build the Retry-After header.
const RetryDelay = 3 * time.Second

// State is a point-in-time snapshot of the gate.
type State struct {
	Active bool   `json:"active"`
	Label  string `json:"test_name"`
}

// Gate is safe for concurrent use. Writers are operators, so concurrent
// Start/End calls simply resolve as last writer wins.
type Gate struct {
	mu    sync.RWMutex
	state State
}

// New returns an inactive gate.
func New() *Gate {
	return &Gate{}
}

// Start activates the gate with label, replacing any previous label.
func (g *Gate) Start(label string) {
	g.mu.Lock()
	g.state = State{Active: true, Label: label}
	g.mu.Unlock()
}

// End deactivates the gate and clears the label.
func (g *Gate) End() {
	g.mu.Lock()
	g.state = State{}
	g.mu.Unlock()
}

// Check returns active and label read together under the lock.
func (g *Gate) Check() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// RetryAfter formats now+RetryDelay as an HTTP-date.
func RetryAfter(now time.Time) string {
	return now.Add(RetryDelay).UTC().Format(http.TimeFormat)
}
