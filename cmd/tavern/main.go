// Package main is the entry point for the tavern CLI.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/config"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/core"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/security"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/app"

	// Compiled modules.
	_ "github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/gateway"
	_ "github.com/hjl2004-10/ai-chat-sillytavern-sub000/modules/preset/sqlite"
	_ "github.com/hjl2004-10/ai-chat-sillytavern-sub000/modules/telemetry/otel"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tavern",
		Short:         "Prompt context assembler for roleplay chat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("data-dir", "", "Data directory (default $XDG_DATA_HOME/tavern)")
	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")

	root.AddCommand(
		versionCmd(),
		startCmd(),
		configCmd(),
		assembleCmd(),
		presetCmd(),
		segmentCmd(),
		mcpCmd(),
		serviceCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tavern %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start tavern with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			level, err := logLevel(cmd)
			if err != nil {
				return err
			}
			cfgPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			return app.Run(cmd.Context(), app.RunParams{
				ConfigPath: cfgPath,
				Version:    version,
				Commit:     commit,
				Date:       date,
				DataDir:    dataDir,
				LogLevel:   level,
			})
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			// Provisioning opens databases, so point it at a scratch dir.
			dataDir, err := os.MkdirTemp("", "tavern-check-")
			if err != nil {
				return err
			}
			defer func() { _ = os.RemoveAll(dataDir) }()

			logger := app.NewLogger(cmd.ErrOrStderr(), slog.LevelWarn, security.NewRedactor())
			appCtx := core.NewAppContext(logger, dataDir, app.DefaultWorkspace())
			appCtx = appCtx.WithModuleConfigs(cfg.Modules)
			appCtx.RegisterService(config.AssemblyService, cfg.Assembly)

			application := core.NewApp(appCtx)
			ids := config.Resolve(cfg)
			if err := application.LoadModules(ids); err != nil {
				return err
			}
			defer application.Unload()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}

func logLevel(cmd *cobra.Command) (slog.Level, error) {
	s := cmd.Flag("log-level").Value.String()
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q", s)
	}
	return level, nil
}

// loadConfig loads the --config file, or the discovered one. With no flag
// and nothing to discover it returns an empty configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		resolved, err := app.ResolveConfigPath()
		if err != nil {
			return &config.Config{Version: "1"}, nil
		}
		path = resolved
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, errors.Join(fmt.Errorf("config %s", path), err)
	}
	return cfg, nil
}
