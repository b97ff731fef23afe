// Package sqlite implements the preset.sqlite module: a persistent
// preset.Store on modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/core"
)

// ModuleID is the module identifier.
const ModuleID = "preset.sqlite"

// StoreService is the service name the store is registered under.
const StoreService = "preset.store"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module provides a SQLite-backed preset.Store to other modules.
type Module struct {
	config Config
	logger *slog.Logger
	store  *Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	switch {
	case m.config.Path == "":
		m.config.Path = filepath.Join(ctx.DataDir, dbFile)
	case !filepath.IsAbs(m.config.Path) && ctx.Workspace != "":
		m.config.Path = filepath.Join(ctx.Workspace, m.config.Path)
	}
	if dir := m.config.ImportDir; dir != "" && !filepath.IsAbs(dir) && ctx.Workspace != "" {
		m.config.ImportDir = filepath.Join(ctx.Workspace, dir)
	}

	bg := context.Background()
	db, err := openDB(bg, m.config)
	if err != nil {
		return err
	}
	m.store = &Store{db: db}
	if err := m.store.seedDefault(bg); err != nil {
		_ = db.Close()
		return err
	}

	if m.config.ImportDir != "" {
		imported, errs := m.store.importDir(bg, m.config.ImportDir)
		for _, err := range errs {
			m.logger.Warn("preset import skipped", "error", err)
		}
		if len(imported) > 0 {
			m.logger.Info("presets imported", "dir", m.config.ImportDir, "presets", imported)
		}
	}

	ctx.RegisterService(StoreService, m.store)

	m.logger.Info("sqlite preset store provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.store.db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.store == nil {
		return nil
	}
	m.logger.Info("sqlite preset store stopping")
	return m.store.Close()
}

// Store returns the preset store. It is nil before Provision.
func (m *Module) Store() *Store {
	return m.store
}
