// Package assembly serves prompt assembly requests: it resolves the preset,
// runs the world-book scan, assembles the message list and optionally
// builds the completion request body. The gateway, the CLI and the MCP
// server share one Service.
package assembly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/config"
	ctxengine "github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/context"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/provider"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/worldinfo"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/message"
)

// ErrInvalidRequest marks requests rejected before assembly runs.
var ErrInvalidRequest = errors.New("assembly: invalid request")

// Request is one assembly call. Preset takes precedence over PresetName;
// with neither, the configured default preset is used.
type Request struct {
	Preset     *preset.Preset `json:"preset,omitempty"`
	PresetName string         `json:"preset_name,omitempty"`

	Character ctxengine.Character `json:"character"`
	Persona   ctxengine.Persona   `json:"persona"`
	WorldInfo ctxengine.WorldInfo `json:"world_info"`
	// WorldBook is scanned against History; triggered entries are
	// appended to WorldInfo.
	WorldBook json.RawMessage   `json:"world_book,omitempty"`
	History   []message.Message `json:"history"`
	Model     string            `json:"model,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`

	// MaxChars overrides assembly.max_chars. Negative disables truncation.
	MaxChars int `json:"max_chars,omitempty"`

	// IncludeRequest adds the completion request body to the response.
	IncludeRequest bool `json:"include_request,omitempty"`
}

// Response is the result of one assembly call.
type Response struct {
	Preset    string                      `json:"preset"`
	Messages  []message.Message           `json:"messages"`
	Budget    ctxengine.ContextBudget     `json:"budget"`
	Triggered []string                    `json:"world_info_triggered,omitempty"`
	Request   *provider.CompletionRequest `json:"request,omitempty"`
}

type settings struct {
	cfg       config.AssemblyConfig
	assembler *ctxengine.ContextAssembler
}

// Service assembles prompts against a preset store. Configure may be
// called concurrently with Assemble; each call sees one settings snapshot.
type Service struct {
	store    preset.Store
	settings atomic.Pointer[settings]
	tracer   trace.Tracer
	now      func() time.Time
}

// NewService creates a Service reading presets from store.
func NewService(store preset.Store, cfg config.AssemblyConfig) *Service {
	s := &Service{
		store:  store,
		tracer: otel.Tracer("github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/assembly"),
		now:    time.Now,
	}
	s.Configure(cfg)
	return s
}

// Configure swaps in new assembly settings.
func (s *Service) Configure(cfg config.AssemblyConfig) {
	cfg = cfg.WithDefaults()
	s.settings.Store(&settings{
		cfg: cfg,
		assembler: ctxengine.NewContextAssembler(
			ctxengine.NewCharEstimator(cfg.CharsPerToken),
			ctxengine.ContextConfig{MaxChars: cfg.MaxChars},
		),
	})
}

// Settings returns the assembly settings currently in effect.
func (s *Service) Settings() config.AssemblyConfig {
	return s.settings.Load().cfg
}

// Store returns the preset store the service reads from.
func (s *Service) Store() preset.Store {
	return s.store
}

// Assemble runs one assembly. Errors wrap ErrInvalidRequest or
// preset.ErrNotFound.
func (s *Service) Assemble(ctx context.Context, req Request) (Response, error) {
	ctx, span := s.tracer.Start(ctx, "assembly.Assemble")
	defer span.End()

	resp, err := s.assemble(ctx, req, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (s *Service) assemble(ctx context.Context, req Request, span trace.Span) (Response, error) {
	st := s.settings.Load()

	p, err := s.resolvePreset(ctx, req, st.cfg)
	if err != nil {
		return Response{}, err
	}

	c := ctxengine.Context{
		Character: req.Character,
		Persona:   req.Persona,
		WorldInfo: req.WorldInfo,
		History:   req.History,
		Model:     req.Model,
		Now:       s.now(),
		Extra:     req.Variables,
	}
	if c.Persona.Name == "" {
		c.Persona.Name = st.cfg.UserName
	}
	if c.Model == "" {
		c.Model = st.cfg.Model
	}

	var triggered []string
	if len(req.WorldBook) > 0 {
		entries, err := worldinfo.DecodeBook(req.WorldBook)
		if err != nil {
			return Response{}, fmt.Errorf("%w: world_book: %w", ErrInvalidRequest, err)
		}
		scan := worldinfo.Scan(entries, req.History)
		c.WorldInfo.Before = joinNonEmpty(c.WorldInfo.Before, scan.Before)
		c.WorldInfo.After = joinNonEmpty(c.WorldInfo.After, scan.After)
		triggered = scan.Triggered
	}

	result := st.assembler.Assemble(ctxengine.AssemblyRequest{
		Profile:  p.Profile(),
		Context:  c,
		MaxChars: req.MaxChars,
	})

	span.SetAttributes(
		attribute.String("tavern.preset", p.Name),
		attribute.Int("tavern.history_messages", len(req.History)),
		attribute.Int("tavern.messages", len(result.Messages)),
		attribute.Int("tavern.chars", result.Budget.Chars),
		attribute.Int("tavern.dropped", result.Budget.Dropped),
	)

	resp := Response{
		Preset:    p.Name,
		Messages:  result.Messages,
		Budget:    result.Budget,
		Triggered: triggered,
	}
	if req.IncludeRequest {
		body := provider.BuildRequest(c.Model, p.Sampling, result.Messages)
		resp.Request = &body
	}
	return resp, nil
}

func (s *Service) resolvePreset(ctx context.Context, req Request, cfg config.AssemblyConfig) (*preset.Preset, error) {
	if req.Preset != nil {
		if err := req.Preset.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return req.Preset, nil
	}
	name := req.PresetName
	if name == "" {
		name = cfg.DefaultPreset
	}
	return s.store.Get(ctx, name)
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}
