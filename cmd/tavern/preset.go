package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/config"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/modules/preset/sqlite"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/app"
)

// openStore opens the preset database the configured preset.sqlite module
// uses, unless --db names another one.
func openStore(cmd *cobra.Command) (*sqlite.Store, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		if path, err = app.PresetDBPath(cfg, dataDir, app.DefaultWorkspace()); err != nil {
			return nil, nil, err
		}
	}
	store, err := sqlite.Open(cmd.Context(), path)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func presetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage stored presets",
	}
	cmd.PersistentFlags().String("db", "", "Preset database (default: the preset.sqlite module's)")
	cmd.AddCommand(
		presetListCmd(),
		presetImportCmd(),
		presetExportCmd(),
		presetDeleteCmd(),
		presetRenameCmd(),
	)
	return cmd
}

func presetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			names, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func presetImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import preset files",
		Long:  "Import preset files. Names derive from the file name and get a \" (n)\" suffix on collision.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			name, _ := cmd.Flags().GetString("name")
			if name != "" && len(args) > 1 {
				return fmt.Errorf("--name needs exactly one file")
			}
			for _, file := range args {
				imported, err := importPreset(cmd.Context(), store, file, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s as %q\n", file, imported)
			}
			return nil
		},
	}
	cmd.Flags().String("name", "", "Store under this name, replacing any preset with it")
	return cmd
}

func importPreset(ctx context.Context, store preset.Store, file, name string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	p, err := preset.Decode(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", file, err)
	}
	if name == "" {
		names, err := store.List(ctx)
		if err != nil {
			return "", err
		}
		name = preset.ImportName(filepath.Base(file), func(n string) bool {
			return slices.Contains(names, n)
		})
	}
	p.Name = name
	if err := store.Put(ctx, p); err != nil {
		return "", err
	}
	return name, nil
}

func presetExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Write a preset as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			p, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				return preset.Encode(cmd.OutOrStdout(), p)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := preset.Encode(f, p); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	return cmd
}

func presetDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q\n", args[0])
			return nil
		},
	}
}

func presetRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a preset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Rename(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %q to %q\n", args[0], args[1])
			return nil
		},
	}
}
