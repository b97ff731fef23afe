package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// shutdownTimeout bounds the Stop calls of one shutdown.
const shutdownTimeout = 30 * time.Second

// App owns the modules loaded from one configuration, in load order.
type App struct {
	ctx     *AppContext
	loaded  []*loadedModule
	logger  *slog.Logger
	timeout time.Duration
}

type loadedModule struct {
	id      ModuleID
	module  Module
	running bool
	stopped bool
}

// NewApp creates an App whose modules are provisioned with ctx.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:     ctx,
		logger:  ctx.Logger.With("component", "core"),
		timeout: shutdownTimeout,
	}
}

// LoadModules configures, provisions and validates the modules in ids, in
// order. On failure the modules loaded so far are stopped and forgotten.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.Unload()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.loaded = append(a.loaded, &loadedModule{id: mod.ModuleInfo().ID, module: mod})
		a.logger.Info("module loaded", "module", id)
	}
	return nil
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for _, lm := range a.loaded {
		if string(lm.id) == id {
			return lm.module, true
		}
	}
	return nil, false
}

// Start starts the loaded modules in order. Modules without Start count as
// running so that Stop reaches them. When a Start fails, the modules
// already running are stopped in reverse order.
func (a *App) Start() error {
	for i, lm := range a.loaded {
		if s, ok := lm.module.(Starter); ok {
			a.logger.Info("starting module", "module", string(lm.id))
			if err := s.Start(); err != nil {
				a.logger.Error("module start failed", "module", string(lm.id), "error", err)
				a.stop(a.loaded[:i], false)
				return fmt.Errorf("starting module %s: %w", lm.id, err)
			}
		}
		lm.running = true
	}
	a.logger.Info("all modules started")
	return nil
}

// Stop stops the running modules in reverse order.
func (a *App) Stop() {
	a.stop(a.loaded, false)
}

// Unload stops every loaded module, started or not, and forgets them.
// It suits callers that provision modules without running them.
func (a *App) Unload() {
	a.stop(a.loaded, true)
	a.loaded = nil
}

func (a *App) stop(mods []*loadedModule, all bool) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	for i := len(mods) - 1; i >= 0; i-- {
		lm := mods[i]
		if lm.stopped || (!lm.running && !all) {
			continue
		}
		lm.running = false
		lm.stopped = true
		s, ok := lm.module.(Stopper)
		if !ok {
			continue
		}
		a.logger.Info("stopping module", "module", string(lm.id))
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop error", "module", string(lm.id), "error", err)
		}
	}
}

// ReloadModules hands ctx to every loaded Reloader, each scoped to its own
// module. All modules are attempted; the failures are joined.
func (a *App) ReloadModules(ctx *AppContext) error {
	var errs []error
	for _, lm := range a.loaded {
		r, ok := lm.module.(Reloader)
		if !ok {
			continue
		}
		a.logger.Info("reloading module", "module", string(lm.id))
		if err := r.Reload(ctx.ForModule(lm.id)); err != nil {
			a.logger.Error("module reload failed", "module", string(lm.id), "error", err)
			errs = append(errs, fmt.Errorf("reloading module %s: %w", lm.id, err))
		}
	}
	return errors.Join(errs...)
}
