package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/core"
)

// Validate reports every structural problem of cfg at once: the version,
// an empty or unknown module set and out-of-range assembly defaults.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateAssembly(cfg.Assembly)...)

	return errors.Join(errs...)
}

func validateAssembly(a AssemblyConfig) []error {
	var errs []error
	if a.MaxChars < 0 {
		errs = append(errs, fmt.Errorf("config: assembly.max_chars must be >= 0, got %d", a.MaxChars))
	}
	if a.CharsPerToken < 0 {
		errs = append(errs, fmt.Errorf("config: assembly.chars_per_token must be >= 0, got %v", a.CharsPerToken))
	}
	if a.DefaultPreset != "" && strings.TrimSpace(a.DefaultPreset) != a.DefaultPreset {
		errs = append(errs, fmt.Errorf("config: assembly.default_preset %q has surrounding whitespace", a.DefaultPreset))
	}
	return errs
}
