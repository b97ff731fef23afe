package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/assembly"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/security"
)

// handleAssemble serves POST /v1/assemble.
func (g *Gateway) handleAssemble() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.limiter.Allow(security.KindAssemble); err != nil {
			emitAuditEvent(g.audit, security.EventRateLimit, r, security.KindAssemble)
			g.metrics.RecordError()
			writeError(w, http.StatusTooManyRequests, err)
			return
		}

		body, err := security.ReadJSONPayload(r.Body, int(g.maxBody.Load()))
		if err != nil {
			g.metrics.RecordError()
			writeError(w, statusFor(err), err)
			return
		}

		var req assembly.Request
		dec := json.NewDecoder(bytes.NewReader(body))
		if err := dec.Decode(&req); err != nil {
			g.metrics.RecordError()
			writeError(w, http.StatusBadRequest, err)
			return
		}

		start := time.Now()
		resp, err := g.assembly.Assemble(r.Context(), req)
		if err != nil {
			g.metrics.RecordError()
			writeError(w, statusFor(err), err)
			return
		}
		latency := time.Since(start)
		g.metrics.RecordAssembly(resp.Budget, latency)

		g.logger.Debug("prompt assembled",
			"request_id", requestIDFrom(r.Context()),
			"preset", resp.Preset,
			"messages", len(resp.Messages),
			"chars", resp.Budget.Chars,
			"dropped", resp.Budget.Dropped,
			"duration", latency,
		)
		writeJSON(w, http.StatusOK, resp)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, preset.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, preset.ErrExists):
		return http.StatusConflict
	case errors.Is(err, preset.ErrProtected):
		return http.StatusForbidden
	case errors.Is(err, security.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, preset.ErrEmptyName),
		errors.Is(err, assembly.ErrInvalidRequest),
		errors.Is(err, security.ErrJSONTooDeep),
		errors.Is(err, security.ErrInvalidJSON):
		return http.StatusBadRequest
	case errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeError writes {"error": ...}. Internal errors are not echoed.
func writeError(w http.ResponseWriter, code int, err error) {
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, code, map[string]string{"error": msg})
}
