package preset

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// Store errors.
var (
	ErrNotFound  = errors.New("preset: not found")
	ErrExists    = errors.New("preset: name already exists")
	ErrProtected = errors.New("preset: the default preset cannot be deleted or renamed")
	ErrEmptyName = errors.New("preset: name must not be empty")
)

// Store persists presets by name.
type Store interface {
	Get(ctx context.Context, name string) (*Preset, error)
	// Put creates or replaces the preset stored under p.Name.
	Put(ctx context.Context, p *Preset) error
	// List returns preset names, DefaultName first, the rest sorted.
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
	Rename(ctx context.Context, oldName, newName string) error
}

// SortNames orders names with DefaultName first and the rest ascending.
func SortNames(names []string) {
	slices.SortFunc(names, func(a, b string) int {
		switch {
		case a == b:
			return 0
		case a == DefaultName:
			return -1
		case b == DefaultName:
			return 1
		}
		return cmp.Compare(a, b)
	})
}

var trailingParens = regexp.MustCompile(`\(.*?\)$`)

// ImportName derives a preset name from an uploaded file name and makes it
// unique by appending " (n)" while exists reports a collision.
func ImportName(filename string, exists func(string) bool) string {
	name := strings.Replace(filename, ".json", "", 1)
	name = strings.TrimSuffix(name, "_preset")
	name = trailingParens.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Imported"
	}

	candidate := name
	for n := 1; exists(candidate); n++ {
		candidate = fmt.Sprintf("%s (%d)", name, n)
	}
	return candidate
}

// MemoryStore is a thread-safe, in-memory Store. It always holds DefaultName.
type MemoryStore struct {
	mu      sync.RWMutex
	presets map[string]*Preset
}

// NewMemoryStore creates a store seeded with the built-in default preset.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		presets: map[string]*Preset{DefaultName: Default()},
	}
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// Get returns a copy of the named preset.
func (s *MemoryStore) Get(_ context.Context, name string) (*Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p.Clone(), nil
}

// Put stores a copy of p.
func (s *MemoryStore) Put(_ context.Context, p *Preset) error {
	if p.Name == "" {
		return ErrEmptyName
	}
	cp := p.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets[p.Name] = cp
	return nil
}

// List returns all preset names.
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	s.mu.RUnlock()

	SortNames(names)
	return names, nil
}

// Delete removes a preset.
func (s *MemoryStore) Delete(_ context.Context, name string) error {
	if name == DefaultName {
		return ErrProtected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.presets[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.presets, name)
	return nil
}

// Rename moves a preset to a new, unused name.
func (s *MemoryStore) Rename(_ context.Context, oldName, newName string) error {
	if oldName == DefaultName {
		return ErrProtected
	}
	if newName == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.presets[oldName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}
	if _, taken := s.presets[newName]; taken {
		return fmt.Errorf("%w: %s", ErrExists, newName)
	}
	p.Name = newName
	s.presets[newName] = p
	delete(s.presets, oldName)
	return nil
}
