// Package gateway provides the HTTP surface of tavern: prompt assembly,
// preset administration, health and metrics. It binds to loopback by
// default and follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/assembly"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/config"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/core"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/security"
)

// ModuleID is the gateway's module identifier.
const ModuleID = "gateway.http"

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing imports it.
type Gateway struct {
	config    Config
	auth      atomic.Pointer[AuthConfig]
	maxBody   atomic.Int64
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	metrics   *Metrics
	limiter   *security.RateLimiter
	redactor  *security.Redactor
	audit     *security.AuditLogger
	tracer    trace.Tracer
	startedAt time.Time

	dispatcher *WebhookDispatcher

	// Resolved lazily at Start() via service registry.
	presets  preset.Store
	assembly *assembly.Service
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = NewMetrics()
	g.limiter = security.NewRateLimiter(g.config.RateLimit)
	g.tracer = otel.Tracer("github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/gateway")
	g.dispatcher = NewWebhookDispatcher(g.logger)

	auth := g.config.Auth
	g.auth.Store(&auth)
	g.maxBody.Store(int64(g.config.MaxBodyBytes))

	if svc, ok := ctx.Service("security.redactor"); ok {
		g.redactor, _ = svc.(*security.Redactor)
	}
	if g.redactor != nil {
		for _, s := range auth.secrets() {
			g.redactor.AddLiteral(s)
		}
		for _, wh := range g.config.Webhooks {
			g.redactor.AddLiteral(wh.Secret)
		}
	}
	if svc, ok := ctx.Service("security.audit"); ok {
		g.audit, _ = svc.(*security.AuditLogger)
	}

	ctx.RegisterService("gateway.metrics", g.metrics)
	ctx.RegisterService("gateway.webhook_dispatcher", g.dispatcher)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves the preset store from the
// service registry, falling back to an in-memory store, and starts the
// HTTP server.
func (g *Gateway) Start() error {
	g.resolveServices()
	g.configureWebhooks(g.config.Webhooks)

	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

func (g *Gateway) resolveServices() {
	if svc, ok := g.appCtx.Service("preset.store"); ok {
		if store, ok := svc.(preset.Store); ok {
			g.presets = store
		}
	}
	if g.presets == nil {
		g.logger.Warn("no preset store configured, presets are kept in memory")
		g.presets = preset.NewMemoryStore()
	}

	var cfg config.AssemblyConfig
	if svc, ok := g.appCtx.Service(config.AssemblyService); ok {
		if a, ok := svc.(config.AssemblyConfig); ok {
			cfg = a
		}
	}
	g.assembly = assembly.NewService(g.presets, cfg)
}

// configureWebhooks registers the presets source with its secret, or
// removes it when the section no longer lists it. Other sources have no
// handler.
func (g *Gateway) configureWebhooks(webhooks map[string]WebhookSource) {
	for source := range webhooks {
		if source != presetSyncSource {
			g.logger.Warn("webhook source has no handler", "source", source)
		}
	}
	wh, ok := webhooks[presetSyncSource]
	if !ok {
		g.dispatcher.Unregister(presetSyncSource)
		return
	}
	g.dispatcher.Register(presetSyncSource, &presetSync{store: g.presets, audit: g.audit, metrics: g.metrics, logger: g.logger}, wh.Secret)
	g.logger.Info("webhook source configured", "source", presetSyncSource)
}

// Reload implements core.Reloader. Credentials, rate limits, webhook
// secrets, the body limit and assembly settings apply in place. The bind
// address and server timeouts need a restart.
func (g *Gateway) Reload(ctx *core.AppContext) error {
	if node, ok := ctx.ModuleConfig(ModuleID); ok {
		var next Config
		if err := node.Decode(&next); err != nil {
			return fmt.Errorf("gateway: decoding config: %w", err)
		}
		next.defaults()
		if err := next.validate(); err != nil {
			return err
		}
		g.warnRestartRequired(next)

		auth := next.Auth
		g.auth.Store(&auth)
		if g.redactor != nil {
			for _, s := range auth.secrets() {
				g.redactor.AddLiteral(s)
			}
			for _, wh := range next.Webhooks {
				g.redactor.AddLiteral(wh.Secret)
			}
		}
		g.limiter.Configure(next.RateLimit)
		g.maxBody.Store(int64(next.MaxBodyBytes))
		if g.presets != nil {
			g.configureWebhooks(next.Webhooks)
		}
	}

	if svc, ok := ctx.Service(config.AssemblyService); ok && g.assembly != nil {
		if a, ok := svc.(config.AssemblyConfig); ok {
			g.assembly.Configure(a)
			g.logger.Info("assembly settings reloaded", "max_chars", a.MaxChars, "default_preset", a.WithDefaults().DefaultPreset)
		}
	}
	return nil
}

func (g *Gateway) warnRestartRequired(next Config) {
	cur := g.config
	if next.Bind != cur.Bind {
		g.logger.Warn("bind address changed, restart required", "current", cur.Bind, "configured", next.Bind)
	}
	if next.ReadTimeout != cur.ReadTimeout || next.WriteTimeout != cur.WriteTimeout || next.ShutdownTimeout != cur.ShutdownTimeout {
		g.logger.Warn("server timeouts changed, restart required",
			"read_timeout", next.ReadTimeout, "write_timeout", next.WriteTimeout, "shutdown_timeout", next.ShutdownTimeout)
	}
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
