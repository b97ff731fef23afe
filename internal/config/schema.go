// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for tavern.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Assembly holds the defaults applied to every prompt assembly.
	Assembly AssemblyConfig `yaml:"assembly"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "gateway.http").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// AssemblyConfig holds prompt assembly defaults.
type AssemblyConfig struct {
	// MaxChars is the character budget for the assembled message list.
	// 0 disables truncation.
	MaxChars int `yaml:"max_chars" json:"max_chars"`

	// UserName is used for {{user}} when a request carries no persona name.
	UserName string `yaml:"user_name" json:"user_name,omitempty"`

	// Model is reported through {{model}} and in built completion requests.
	Model string `yaml:"model" json:"model,omitempty"`

	// DefaultPreset is used when a request names no preset.
	DefaultPreset string `yaml:"default_preset" json:"default_preset"`

	// CharsPerToken tunes the token estimate reported with each assembly.
	CharsPerToken float64 `yaml:"chars_per_token" json:"chars_per_token"`
}

// AssemblyService is the service registry name under which the effective
// AssemblyConfig is published to modules.
const AssemblyService = "config.assembly"

// DefaultPresetName is used when assembly.default_preset is empty.
const DefaultPresetName = "Default"

// WithDefaults returns a copy of a with zero-valued fields replaced by
// sensible defaults.
func (a AssemblyConfig) WithDefaults() AssemblyConfig {
	if a.DefaultPreset == "" {
		a.DefaultPreset = DefaultPresetName
	}
	if a.CharsPerToken == 0 {
		a.CharsPerToken = 4.0
	}
	return a
}
