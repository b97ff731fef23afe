package config

import (
	"cmp"
	"slices"
	"strings"
)

// loadPhase orders module namespaces: telemetry installs the tracer
// provider first, stores register their services next, and consumers such
// as the gateway load last.
var loadPhase = map[string]int{
	"telemetry": 0,
	"preset":    1,
}

const consumerPhase = 2

// Resolve returns the configured module IDs in load order: by namespace
// phase, then alphabetically.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(cmp.Compare(phase(a), phase(b)), cmp.Compare(a, b))
	})
	return ids
}

func phase(id string) int {
	ns, _, _ := strings.Cut(id, ".")
	if p, ok := loadPhase[ns]; ok {
		return p
	}
	return consumerPhase
}
