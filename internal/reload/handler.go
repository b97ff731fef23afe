package reload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/config"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/core"
)

// Handler re-applies a configuration to the modules of a running App.
// Concurrent reloads run one at a time, so the last applied wins.
type Handler struct {
	app    *core.App
	logger *slog.Logger
	// dirs of the running process; a reload cannot move them.
	dataDir, workspace string

	mu sync.Mutex
}

// NewHandler returns a Handler for app.
func NewHandler(app *core.App, logger *slog.Logger, dataDir, workspace string) *Handler {
	return &Handler{app: app, logger: logger, dataDir: dataDir, workspace: workspace}
}

// HandleReload reads configPath and applies it. A file that fails to load
// or validate leaves the running modules untouched.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		h.logger.Warn("reload rejected", "path", configPath, "error", err)
		return fmt.Errorf("reload %s: %w", configPath, err)
	}
	return h.Apply(ctx, cfg)
}

// Apply hands an already validated cfg to every core.Reloader, with the
// assembly defaults republished as config.AssemblyService.
func (h *Handler) Apply(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload abandoned: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next := core.NewAppContext(h.logger, h.dataDir, h.workspace).WithModuleConfigs(cfg.Modules)
	next.RegisterService(config.AssemblyService, cfg.Assembly)
	if err := h.app.ReloadModules(next); err != nil {
		return err
	}

	h.logger.Info("configuration reloaded",
		"modules", len(cfg.Modules),
		"default_preset", cfg.Assembly.DefaultPreset,
		"max_chars", cfg.Assembly.MaxChars,
	)
	return nil
}
