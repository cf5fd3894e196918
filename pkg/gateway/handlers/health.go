package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vango-go/vai-mentor/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyCheck reports a dependency that must be reachable for the server to
// take traffic, such as the history store.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type ReadyHandler struct {
	Lifecycle *lifecycle.Lifecycle
	Checks    []ReadyCheck
	Timeout   time.Duration
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Draining bool     `json:"draining"`
		Issues   []string `json:"issues,omitempty"`
	}

	draining := h.Lifecycle.IsDraining()
	var issues []string
	if draining {
		issues = append(issues, "server is draining")
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	for _, c := range h.Checks {
		if c.Check == nil {
			continue
		}
		if err := c.Check(ctx); err != nil {
			issues = append(issues, c.Name+": "+err.Error())
		}
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResp{OK: ok, Draining: draining, Issues: issues})
}
