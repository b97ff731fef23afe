package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// varRef matches ${NAME} and ${NAME:-fallback}. A leading "$" escapes
// the reference: $${NAME} stays as ${NAME}.
var varRef = regexp.MustCompile(`\$?\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(raw, path)
}

// Parse decodes a tavern.yaml document after substituting environment
// variables. Unknown top-level keys are an error; module sections are kept
// as raw nodes for their modules to decode. source labels error messages.
func Parse(raw []byte, source string) (*Config, error) {
	expanded, missing := expandEnv(raw)
	if len(missing) > 0 {
		errs := make([]error, len(missing))
		for i, name := range missing {
			errs[i] = fmt.Errorf("${%s} is not set and has no default", name)
		}
		return nil, fmt.Errorf("config: %s: %w", source, errors.Join(errs...))
	}

	cfg := new(Config)
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parsing %s: %w", source, err)
	}
	return cfg, nil
}

// expandEnv substitutes variable references in raw and reports the names
// that resolved to nothing, each once.
func expandEnv(raw []byte) ([]byte, []string) {
	var missing []string
	out := varRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		if ref[1] == '$' {
			return ref[1:]
		}
		m := varRef.FindSubmatch(ref)
		if v, ok := os.LookupEnv(string(m[1])); ok {
			return []byte(v)
		}
		if m[2] != nil {
			return m[2]
		}
		if name := string(m[1]); !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
		return ref
	})
	return out, missing
}
