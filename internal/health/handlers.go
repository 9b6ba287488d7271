package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/backend-pos/internal/common"
)

const defaultTimeout = 500 * time.Millisecond

var draining atomic.Bool

// SetReady toggles readiness. The server flips it off when shutdown begins so
// load balancers stop routing before connections are drained.
func SetReady(ready bool) { draining.Store(!ready) }

// IsReady reports the readiness flag.
func IsReady() bool { return !draining.Load() }

// Check is a named dependency probe.
type Check struct {
	Name    string
	Timeout time.Duration
	// Optional checks are reported but never fail readiness.
	Optional bool
	Probe    func(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks []Check
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]string, len(h.Checks))
	ok := IsReady()
	for _, c := range h.Checks {
		status := "ok"
		if err := run(r.Context(), c); err != nil {
			status = err.Error()
			if !c.Optional {
				ok = false
			}
		}
		results[c.Name] = status
	}
	body := map[string]any{"status": "ok", "checks": results}
	if !ok {
		body["status"] = "unavailable"
		common.JSON(w, http.StatusServiceUnavailable, body)
		return
	}
	common.JSON(w, http.StatusOK, body)
}

func run(ctx context.Context, c Check) error {
	if c.Probe == nil {
		return nil
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Probe(ctx)
}
