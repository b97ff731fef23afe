// Package core is tavern's module system: a registry of compiled-in
// modules, the lifecycle they go through and the context they share.
package core

import (
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

// AppContext is what a module sees while it is provisioned and reloaded.
// Copies made by WithModuleConfigs and ForModule share one service
// registry.
type AppContext struct {
	// Logger carries a "module" attribute once scoped by ForModule.
	Logger *slog.Logger
	// DataDir holds persistent state such as presets.db and audit.jsonl.
	DataDir string
	// Workspace anchors relative paths found in module configuration.
	Workspace string

	base     *slog.Logger
	configs  map[string]yaml.Node
	registry *services
}

type services struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewAppContext returns a root context. A nil logger means slog.Default.
func NewAppContext(logger *slog.Logger, dataDir, workspace string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:    logger,
		DataDir:   dataDir,
		Workspace: workspace,
		base:      logger,
		registry:  &services{m: map[string]any{}},
	}
}

// RegisterService publishes svc under name, replacing any earlier value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.registry.mu.Lock()
	ctx.registry.m[name] = svc
	ctx.registry.mu.Unlock()
}

// Service returns the value published under name.
func (ctx *AppContext) Service(name string) (any, bool) {
	ctx.registry.mu.RLock()
	defer ctx.registry.mu.RUnlock()
	svc, ok := ctx.registry.m[name]
	return svc, ok
}

// WithModuleConfigs returns a copy holding the per-module sections of a
// configuration, keyed by module ID.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	next := *ctx
	next.configs = configs
	return &next
}

// ModuleConfig returns the raw section configured for id.
func (ctx *AppContext) ModuleConfig(id string) (yaml.Node, bool) {
	node, ok := ctx.configs[id]
	return node, ok
}

// ForModule returns a copy whose Logger is tagged with id. Scoping an
// already scoped context replaces the tag.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	next := *ctx
	next.Logger = ctx.base.With("module", string(id))
	return &next
}

// LoadModule builds a fresh instance of the registered module id and
// runs Configure, Provision and Validate on it, skipping the ones it
// does not implement. Configure only runs when id has a section.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}
	mod := info.New()

	if c, ok := mod.(Configurable); ok {
		if node, ok := ctx.configs[id]; ok {
			if err := c.Configure(&node); err != nil {
				return nil, fmt.Errorf("configuring module %s: %w", id, err)
			}
		}
	}
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, fmt.Errorf("provisioning module %s: %w", id, err)
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validating module %s: %w", id, err)
		}
	}
	return mod, nil
}
