// Package mcpserver exposes prompt assembly as Model Context Protocol
// tools over stdio, so MCP clients can build prompts from stored presets.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/assembly"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
)

// getArgs extracts arguments from request as map[string]any.
func getArgs(request mcp.CallToolRequest) map[string]any {
	if args, ok := request.Params.Arguments.(map[string]any); ok {
		return args
	}
	return make(map[string]any)
}

// Server wraps an MCP server around an assembly service.
type Server struct {
	mcpServer *server.MCPServer
	assembly  *assembly.Service
	logger    *slog.Logger
}

// NewServer creates an MCP server with the assembly tools registered.
func NewServer(svc *assembly.Service, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{assembly: svc, logger: logger}

	mcpServer := server.NewMCPServer(
		"tavern",
		version,
		server.WithToolCapabilities(false),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	assembleTool := mcp.NewTool("assemble_prompt",
		mcp.WithDescription("Assemble the chat-completion message list for one turn from a stored preset and a chat context."),
		mcp.WithString("context",
			mcp.Required(),
			mcp.Description(`JSON object with "character", "persona", "world_info", "world_book", "history", "model" and "variables"`),
		),
		mcp.WithString("preset",
			mcp.Description("Stored preset name; the configured default preset when omitted"),
		),
		mcp.WithNumber("max_chars",
			mcp.Description("Character budget for the result; overrides the configured budget, negative disables truncation"),
		),
		mcp.WithBoolean("include_request",
			mcp.Description("Also return the OpenAI-compatible completion request body"),
		),
	)
	mcpServer.AddTool(assembleTool, s.handleAssemble)

	listTool := mcp.NewTool("list_presets",
		mcp.WithDescription("List stored preset names, the default preset first"),
	)
	mcpServer.AddTool(listTool, s.handleListPresets)

	getTool := mcp.NewTool("get_preset",
		mcp.WithDescription("Return a stored preset as preset file JSON"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Preset name"),
		),
	)
	mcpServer.AddTool(getTool, s.handleGetPreset)
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) handleAssemble(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	raw, ok := args["context"].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return mcp.NewToolResultError("context parameter is required"), nil
	}

	var req assembly.Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("context is not valid JSON: %v", err)), nil
	}
	if name, ok := args["preset"].(string); ok && name != "" {
		req.Preset = nil
		req.PresetName = name
	}
	if n, ok := args["max_chars"].(float64); ok {
		req.MaxChars = int(n)
	}
	if b, ok := args["include_request"].(bool); ok {
		req.IncludeRequest = b
	}

	resp, err := s.assembly.Assemble(ctx, req)
	if err != nil {
		if errors.Is(err, preset.ErrNotFound) || errors.Is(err, assembly.ErrInvalidRequest) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, err
	}

	s.logger.Debug("prompt assembled via mcp", "preset", resp.Preset, "messages", len(resp.Messages))
	return jsonResult(resp)
}

func (s *Server) handleListPresets(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.assembly.Store().List(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string][]string{"presets": names})
}

func (s *Server) handleGetPreset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _ := getArgs(request)["name"].(string)
	if name == "" {
		return mcp.NewToolResultError("name parameter is required"), nil
	}

	p, err := s.assembly.Store().Get(ctx, name)
	if errors.Is(err, preset.ErrNotFound) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	if err := preset.Encode(&b, p); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(b.String()), nil
}

// jsonResult renders v as the text content of a tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("mcpserver: encoding result: %w", err)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}
