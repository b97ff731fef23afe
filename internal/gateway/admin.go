package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/config"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/core"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/security"
)

// presetName returns the unescaped {name} URL parameter.
func presetName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

// handleListPresets serves GET /api/presets.
func (g *Gateway) handleListPresets() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := g.presets.List(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"presets": names})
	}
}

// handleGetPreset serves GET /api/presets/{name} as a preset file.
func (g *Gateway) handleGetPreset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := g.presets.Get(r.Context(), presetName(r))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		var buf bytes.Buffer
		if err := preset.Encode(&buf, p); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buf.Bytes())
	}
}

// handlePutPreset serves PUT /api/presets/{name}, creating or replacing it.
func (g *Gateway) handlePutPreset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := presetName(r)
		p, err := g.readPreset(r)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		p.Name = name
		if err := g.presets.Put(r.Context(), p); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		g.presetChanged(r, security.EventPresetPut, name, fmt.Sprintf("%d prompts", len(p.Prompts)))
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleDeletePreset serves DELETE /api/presets/{name}.
func (g *Gateway) handleDeletePreset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := presetName(r)
		if err := g.presets.Delete(r.Context(), name); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		g.presetChanged(r, security.EventPresetDelete, name, "")
		w.WriteHeader(http.StatusNoContent)
	}
}

// renameRequest is the body of POST /api/presets/{name}/rename.
type renameRequest struct {
	Name string `json:"name"`
}

// handleRenamePreset serves POST /api/presets/{name}/rename.
func (g *Gateway) handleRenamePreset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		oldName := presetName(r)
		var body renameRequest
		if err := g.readJSON(r, &body); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		newName := strings.TrimSpace(body.Name)
		if err := g.presets.Rename(r.Context(), oldName, newName); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		g.presetChanged(r, security.EventPresetRename, newName, "renamed from "+oldName)
		writeJSON(w, http.StatusOK, map[string]string{"name": newName})
	}
}

// handleImportPreset serves POST /api/presets/import?filename=<file>.
// The stored name is derived from the file name and never overwrites.
func (g *Gateway) handleImportPreset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := g.readPreset(r)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		name, err := uniqueImportName(r.Context(), g.presets, r.URL.Query().Get("filename"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		p.Name = name
		if err := g.presets.Put(r.Context(), p); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		g.presetChanged(r, security.EventPresetImport, name, r.URL.Query().Get("filename"))
		writeJSON(w, http.StatusCreated, map[string]string{"name": name})
	}
}

// uniqueImportName picks an unused store name for an imported file.
func uniqueImportName(ctx context.Context, store preset.Store, filename string) (string, error) {
	names, err := store.List(ctx)
	if err != nil {
		return "", err
	}
	taken := make(map[string]bool, len(names))
	for _, n := range names {
		taken[n] = true
	}
	return preset.ImportName(filename, func(n string) bool { return taken[n] }), nil
}

func (g *Gateway) readPreset(r *http.Request) (*preset.Preset, error) {
	body, err := security.ReadJSONPayload(r.Body, int(g.maxBody.Load()))
	if err != nil {
		return nil, err
	}
	p, err := preset.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", security.ErrInvalidJSON, err)
	}
	return p, nil
}

func (g *Gateway) readJSON(r *http.Request, v any) error {
	body, err := security.ReadJSONPayload(r.Body, int(g.maxBody.Load()))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %w", security.ErrInvalidJSON, err)
	}
	return nil
}

func (g *Gateway) presetChanged(r *http.Request, event security.EventType, name, detail string) {
	g.metrics.RecordPresetOp(strings.TrimPrefix(string(event), "preset_"))
	g.logger.Info("preset changed", "event", string(event), "preset", name, "request_id", requestIDFrom(r.Context()))
	if g.audit == nil {
		return
	}
	g.audit.Log(security.AuditEvent{
		Type:       event,
		RequestID:  requestIDFrom(r.Context()),
		RemoteAddr: r.RemoteAddr,
		Preset:     name,
		Detail:     detail,
	})
}

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
}

// handleGetAllModules lists all compiled modules (for /api/modules).
func (g *Gateway) handleGetAllModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (g *Gateway) configPath() string {
	if svc, ok := g.appCtx.Service("config.path"); ok {
		if path, ok := svc.(string); ok {
			return path
		}
	}
	return ""
}

// handleGetConfig returns the current config file with secrets redacted.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		cfgPath := g.configPath()
		if cfgPath == "" {
			http.Error(w, "config path not set", http.StatusServiceUnavailable)
			return
		}

		cfg, err := config.Load(cfgPath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		modules := make(map[string]any, len(cfg.Modules))
		for id, node := range cfg.Modules {
			var v map[string]any
			if err := node.Decode(&v); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			modules[id] = v
		}
		generic := map[string]any{
			"version":  cfg.Version,
			"assembly": cfg.Assembly,
			"modules":  modules,
		}

		redactor := g.redactor
		if redactor == nil {
			redactor = security.NewRedactor()
		}
		redactor.RedactMap(generic)
		writeJSON(w, http.StatusOK, generic)
	}
}

// configReloader is implemented by reload.Handler.
type configReloader interface {
	HandleReload(ctx context.Context, configPath string) error
}

// handleReloadConfig triggers a hot-reload of the configuration.
func (g *Gateway) handleReloadConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfgPath := g.configPath()
		if cfgPath == "" {
			http.Error(w, "config path not set", http.StatusServiceUnavailable)
			return
		}
		svc, ok := g.appCtx.Service("reload.handler")
		reloader, isReloader := svc.(configReloader)
		if !ok || !isReloader {
			http.Error(w, "reload not available", http.StatusServiceUnavailable)
			return
		}

		if err := reloader.HandleReload(r.Context(), cfgPath); err != nil {
			g.logger.Error("config reload failed", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		emitAuditEvent(g.audit, security.EventConfigReload, r, cfgPath)
		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}
