// Package app wires the pieces a tavern process needs: config discovery,
// the redacting logger, the audit log and the module run loop.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/config"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/core"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/reload"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/security"
)

const (
	auditFileName = "audit.jsonl"
	// logValueLimit clips long logged strings such as prompt content.
	logValueLimit = 2048
)

// RunParams configures Run. Only ConfigPath is commonly set; the rest
// have working defaults.
type RunParams struct {
	// ConfigPath of tavern.yaml; discovered with ResolveConfigPath when
	// empty.
	ConfigPath string

	// Build information, logged at startup.
	Version, Commit, Date string

	// DataDir defaults to DefaultDataDir, Workspace to DefaultWorkspace.
	DataDir, Workspace string

	LogLevel slog.Level
	// LogOutput defaults to os.Stderr.
	LogOutput io.Writer
}

// NewLogger returns a text logger on w that scrubs what redactor knows
// about and clips long values.
func NewLogger(w io.Writer, level slog.Level, redactor *security.Redactor) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(security.NewRedactingHandler(h, redactor).WithMaxValueLen(logValueLimit))
}

// Run loads the configuration, starts its modules and serves until ctx
// ends or SIGINT/SIGTERM arrives. SIGHUP and edits to the file reload it.
func Run(ctx context.Context, p RunParams) error {
	cfgPath := p.ConfigPath
	if cfgPath == "" {
		var err error
		if cfgPath, err = ResolveConfigPath(); err != nil {
			return err
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	dataDir, workspace := p.DataDir, p.Workspace
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if workspace == "" {
		workspace = DefaultWorkspace()
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	redactor := security.NewRedactor()
	logger := NewLogger(p.LogOutput, p.LogLevel, redactor)

	auditFile, err := os.OpenFile(filepath.Join(dataDir, auditFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer func() { _ = auditFile.Close() }()
	audit := security.NewAuditLogger(security.AuditLoggerConfig{Writer: auditFile, Redactor: redactor})

	appCtx := core.NewAppContext(logger, dataDir, workspace).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService("security.redactor", redactor)
	appCtx.RegisterService("security.audit", audit)
	appCtx.RegisterService("config.path", cfgPath)
	appCtx.RegisterService(config.AssemblyService, cfg.Assembly)

	logger.Info("starting tavern",
		"version", p.Version,
		"commit", p.Commit,
		"built", p.Date,
		"config", cfgPath,
		"data_dir", dataDir,
	)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return err
	}
	handler := reload.NewHandler(application, logger, dataDir, workspace)
	// The gateway looks the handler up when it starts.
	appCtx.RegisterService("reload.handler", handler)

	if err := application.Start(); err != nil {
		application.Unload()
		return err
	}
	defer application.Unload()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l := &loop{cfgPath: cfgPath, handler: handler, audit: audit, logger: logger}
	l.run(ctx)
	logger.Info("shutdown complete")
	return nil
}

// loop turns SIGHUP and file edits into reloads until ctx ends.
type loop struct {
	cfgPath string
	handler *reload.Handler
	audit   *security.AuditLogger
	logger  *slog.Logger
}

func (l *loop) run(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	watcher := reload.NewWatcher(reload.WatcherConfig{ConfigPath: l.cfgPath})
	watcher.Start(ctx)
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("shutting down", "cause", context.Cause(ctx))
			return
		case <-hup:
			l.reload(ctx, "sighup")
		case <-watcher.Events():
			l.reload(ctx, "file changed")
		}
	}
}

func (l *loop) reload(ctx context.Context, trigger string) {
	l.logger.Info("reloading configuration", "trigger", trigger, "path", l.cfgPath)
	detail := trigger
	if err := l.handler.HandleReload(ctx, l.cfgPath); err != nil {
		l.logger.Error("reload failed", "error", err)
		detail = trigger + ": " + err.Error()
	}
	l.audit.Log(security.AuditEvent{Type: security.EventConfigReload, Detail: detail})
}
