package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// The registry is filled from init functions of the compiled-in module
// packages (gateway, preset stores, telemetry) and read when the
// configuration is loaded.
var (
	modules   = make(map[string]ModuleInfo)
	modulesMu sync.RWMutex
)

// RegisterModule records a module under the ID its ModuleInfo reports.
// It panics on an empty ID, a nil constructor or a duplicate ID.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	modulesMu.Lock()
	defer modulesMu.Unlock()
	if _, dup := modules[string(info.ID)]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	modules[string(info.ID)] = info
}

// GetModule looks up a registered module.
func GetModule(id string) (ModuleInfo, bool) {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	info, ok := modules[id]
	return info, ok
}

// GetModules lists every registered module, sorted by ID.
func GetModules() []ModuleInfo {
	return collect(func(string) bool { return true })
}

// GetModulesByNamespace lists the modules of one namespace, sorted by ID.
// "preset" matches "preset.sqlite" but not "presets.x".
func GetModulesByNamespace(namespace string) []ModuleInfo {
	prefix := namespace + "."
	return collect(func(id string) bool { return strings.HasPrefix(id, prefix) })
}

func collect(keep func(id string) bool) []ModuleInfo {
	modulesMu.RLock()
	defer modulesMu.RUnlock()

	var out []ModuleInfo
	for id, info := range modules {
		if keep(id) {
			out = append(out, info)
		}
	}
	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
