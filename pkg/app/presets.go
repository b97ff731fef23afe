package app

import (
	"fmt"
	"path/filepath"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/config"
)

const (
	presetModuleID = "preset.sqlite"
	presetDBFile   = "presets.db"
)

// PresetDBPath returns the preset database the preset.sqlite module of cfg
// uses: its configured path, or presets.db under dataDir. A relative path
// resolves against workspace. cfg may be nil.
func PresetDBPath(cfg *config.Config, dataDir, workspace string) (string, error) {
	if cfg != nil {
		if node, ok := cfg.Modules[presetModuleID]; ok {
			var mc struct {
				Path string `yaml:"path"`
			}
			if err := node.Decode(&mc); err != nil {
				return "", fmt.Errorf("decoding %s config: %w", presetModuleID, err)
			}
			if mc.Path != "" {
				if !filepath.IsAbs(mc.Path) && workspace != "" {
					return filepath.Join(workspace, mc.Path), nil
				}
				return mc.Path, nil
			}
		}
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	return filepath.Join(dataDir, presetDBFile), nil
}
