package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	appName        = "tavern"
	configFileName = "tavern.yaml"
)

// configCandidates lists where ResolveConfigPath looks, in order.
func configCandidates() []string {
	var dirs []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		dirs = append(dirs, filepath.Join(xdg, appName))
	} else if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", appName))
	}
	paths := make([]string, 0, len(dirs)+1)
	for _, d := range dirs {
		paths = append(paths, filepath.Join(d, configFileName))
	}
	return append(paths, configFileName)
}

// ResolveConfigPath returns the first existing tavern.yaml among
// $XDG_CONFIG_HOME/tavern (or ~/.config/tavern) and the working directory.
func ResolveConfigPath() (string, error) {
	candidates := configCandidates()
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("no %s found in %v", configFileName, candidates)
}

// DefaultDataDir is $XDG_DATA_HOME/tavern, or ~/.local/share/tavern.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", appName)
}

// DefaultWorkspace is the working directory.
func DefaultWorkspace() string {
	dir, _ := os.Getwd()
	return dir
}
