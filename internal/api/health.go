package api

import (
	"net/http"
	"time"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// HealthHandler reports process liveness and the state of the agent's
// capture dependencies.
type HealthHandler struct {
	version   string
	startTime time.Time
	checks    map[string]func() error
}

func NewHealthHandler(version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: startTime,
		checks:    make(map[string]func() error),
	}
}

// AddCheck registers a named dependency check. A nil error means healthy.
func (h *HealthHandler) AddCheck(name string, check func() error) {
	h.checks[name] = check
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        make(map[string]string, len(h.checks)),
	}

	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			resp.Checks[name] = "ok"
		}
	}

	WriteJSON(w, status, resp)
}
