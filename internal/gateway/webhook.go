package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/security"
)

// signatureHeader carries "sha256=" followed by the hex HMAC-SHA256 of
// the request body.
const signatureHeader = "X-Signature-256"

// WebhookHandler consumes the verified body of one webhook delivery.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error
}

type webhookSource struct {
	handler WebhookHandler
	secret  string
}

// WebhookDispatcher serves POST /webhooks/{source}. Each source has its
// own handler and, optionally, a signing secret.
type WebhookDispatcher struct {
	logger *slog.Logger

	mu      sync.RWMutex
	sources map[string]webhookSource
}

// NewWebhookDispatcher returns a dispatcher with no sources.
func NewWebhookDispatcher(logger *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{logger: logger, sources: map[string]webhookSource{}}
}

// Register routes source to h. With a non-empty secret, deliveries
// without a matching signature are refused.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, secret string) {
	d.mu.Lock()
	d.sources[source] = webhookSource{handler: h, secret: secret}
	d.mu.Unlock()
}

// Unregister removes source. Later deliveries for it get 404.
func (d *WebhookDispatcher) Unregister(source string) {
	d.mu.Lock()
	delete(d.sources, source)
	d.mu.Unlock()
}

func (d *WebhookDispatcher) lookup(source string) (webhookSource, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	src, ok := d.sources[source]
	return src, ok
}

// ServeHTTP implements http.Handler.
func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "source")
	src, ok := d.lookup(name)
	if !ok {
		d.logger.Warn("webhook for unknown source", "source", name)
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown webhook source %q", name))
		return
	}

	body, err := security.ReadPayload(r.Body, 0)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if src.secret != "" && !verifySignature(src.secret, body, r.Header.Get(signatureHeader)) {
		writeError(w, http.StatusUnauthorized, errors.New("invalid signature"))
		return
	}

	if err := src.handler.HandleWebhook(r.Context(), name, body, r.Header); err != nil {
		d.logger.Error("webhook failed", "source", name, "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func verifySignature(secret string, body []byte, got string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(got))
}

// presetSyncSource is the webhook source that pushes preset files.
const presetSyncSource = "presets"

// presetSync stores presets pushed through the "presets" webhook. The
// X-Preset-Name header selects the stored name; an existing preset with
// that name is replaced.
type presetSync struct {
	store   preset.Store
	audit   *security.AuditLogger
	metrics *Metrics
	logger  *slog.Logger
}

// HandleWebhook implements WebhookHandler.
func (s *presetSync) HandleWebhook(ctx context.Context, _ string, body []byte, headers http.Header) error {
	if err := security.ValidateJSONDepth(body, 0); err != nil {
		return err
	}
	p, err := preset.Decode(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", security.ErrInvalidJSON, err)
	}

	name := headers.Get("X-Preset-Name")
	if name == "" {
		if name, err = uniqueImportName(ctx, s.store, headers.Get("X-Preset-Filename")); err != nil {
			return err
		}
	}
	p.Name = name
	if err := s.store.Put(ctx, p); err != nil {
		return err
	}

	s.metrics.RecordPresetOp("sync")
	s.logger.Info("preset synced via webhook", "preset", name, "prompts", len(p.Prompts))
	if s.audit != nil {
		s.audit.Log(security.AuditEvent{Type: security.EventPresetPut, Preset: name, Detail: "webhook sync"})
	}
	return nil
}
