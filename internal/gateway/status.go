package gateway

import (
	"net/http"
	"time"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/config"
)

// HealthResponse is served on GET /health. Status is "ok", or "degraded"
// with a 503 when the preset store cannot be listed.
type HealthResponse struct {
	Status  string `json:"status"`
	Presets int    `json:"presets"`
}

func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := g.presets.List(r.Context())
		if err != nil {
			g.logger.Warn("health: preset store unavailable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
			return
		}
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Presets: len(names)})
	}
}

// StatusResponse is served on GET /status to authenticated callers.
type StatusResponse struct {
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Presets       int                   `json:"presets"`
	Assembly      config.AssemblyConfig `json:"assembly"`
	Metrics       MetricsSnapshot       `json:"metrics"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			UptimeSeconds: int64(time.Since(g.startedAt) / time.Second),
			Assembly:      g.assembly.Settings(),
			Metrics:       g.metrics.Snapshot(),
		}
		if names, err := g.presets.List(r.Context()); err == nil {
			resp.Presets = len(names)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
