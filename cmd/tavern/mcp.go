package main

import (
	"github.com/spf13/cobra"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/assembly"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/mcpserver"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/security"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/app"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the assembly tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level, err := logLevel(cmd)
			if err != nil {
				return err
			}
			store, cfg, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			// stdout carries the protocol.
			logger := app.NewLogger(cmd.ErrOrStderr(), level, security.NewRedactor())
			svc := assembly.NewService(store, cfg.Assembly)
			logger.Info("serving MCP on stdio", "version", version)
			return mcpserver.NewServer(svc, version, logger).ServeStdio()
		},
	}
	cmd.Flags().String("db", "", "Preset database (default: the preset.sqlite module's)")
	return cmd
}
