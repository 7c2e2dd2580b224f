package httpapi

import (
	"context"
	"net/http"
	"time"
)

// Check represents the status of a dependency.
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string           `json:"status"`
	Rooms       int              `json:"rooms"`
	Connections int              `json:"connections"`
	Checks      map[string]Check `json:"checks,omitempty"`
	Timestamp   string           `json:"timestamp"`
}

// Health reports live room and connection counts plus dependency checks.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check, len(h.pingers))
	healthy := true
	for name, p := range h.pingers {
		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			checks[name] = Check{Status: "fail", Message: "connection failed"}
			healthy = false
			continue
		}
		checks[name] = Check{Status: "pass", Latency: time.Since(start).String()}
	}

	resp := HealthResponse{
		Status:    "ok",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.registry != nil {
		resp.Rooms = h.registry.Rooms()
		resp.Connections = h.registry.Connections()
	}

	status := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	h.JSON(w, status, resp)
}
