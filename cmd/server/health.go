package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"propertyvet/pkg/platform/httputil"
)

const healthTimeout = 2 * time.Second

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth reports liveness plus a ping of every configured backend. Any
// failing dependency turns the response into a 503.
func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	if len(a.health) > 0 {
		resp.Checks = make(map[string]string, len(a.health))
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, ping := range a.health {
		wg.Go(func() {
			result := "ok"
			if err := ping(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			resp.Checks[name] = result
			if result != "ok" {
				resp.Status = "degraded"
			}
			mu.Unlock()
		})
	}
	wg.Wait()

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}
