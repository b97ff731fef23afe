package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/assembly"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
)

func assembleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Assemble the message list for one turn and print it as JSON",
		Long: `Assemble the message list for one turn and print it as JSON.

--context names a JSON file (or "-" for stdin) with the request fields:
character, persona, world_info, world_book, history, model and variables.
--preset is a preset file path or the name of a stored preset.`,
		Args: cobra.NoArgs,
		RunE: runAssemble,
	}
	cmd.Flags().String("preset", "", "Preset file or stored preset name (default: assembly.default_preset)")
	cmd.Flags().String("context", "", "Chat context JSON file, - for stdin")
	cmd.Flags().String("db", "", "Preset database (default: the preset.sqlite module's)")
	cmd.Flags().Int("max-chars", 0, "Character budget; negative disables truncation (default: assembly.max_chars)")
	cmd.Flags().Bool("request", false, "Include the completion request body")
	_ = cmd.MarkFlagRequired("context")
	return cmd
}

func runAssemble(cmd *cobra.Command, _ []string) error {
	req, err := readRequest(cmd)
	if err != nil {
		return err
	}

	store, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc := assembly.NewService(store, cfg.Assembly)
	resp, err := svc.Assemble(cmd.Context(), req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

func readRequest(cmd *cobra.Command) (assembly.Request, error) {
	var req assembly.Request

	contextPath, _ := cmd.Flags().GetString("context")
	var r io.Reader
	if contextPath == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(contextPath)
		if err != nil {
			return req, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, fmt.Errorf("decoding context %s: %w", contextPath, err)
	}

	if ref, _ := cmd.Flags().GetString("preset"); ref != "" {
		p, err := presetRef(ref)
		if err != nil {
			return req, err
		}
		if p != nil {
			req.Preset = p
			req.PresetName = ""
		} else {
			req.Preset = nil
			req.PresetName = ref
		}
	}
	if cmd.Flags().Changed("max-chars") {
		req.MaxChars, _ = cmd.Flags().GetInt("max-chars")
	}
	if includeRequest, _ := cmd.Flags().GetBool("request"); includeRequest {
		req.IncludeRequest = true
	}
	return req, nil
}

// presetRef loads ref as a preset file. It returns nil when no such file
// exists, meaning ref names a stored preset.
func presetRef(ref string) (*preset.Preset, error) {
	f, err := os.Open(ref)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("preset %s is a directory", ref)
	}
	p, err := preset.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	p.Name = strings.TrimSuffix(filepath.Base(ref), ".json")
	return p, nil
}
