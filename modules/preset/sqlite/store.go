package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
)

// Store implements preset.Store on a SQLite database. Preset bodies are
// stored as the JSON they export to.
type Store struct {
	db *sql.DB
}

var _ preset.Store = (*Store)(nil)

// Get returns the named preset.
func (s *Store) Get(ctx context.Context, name string) (*preset.Preset, error) {
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM presets WHERE name = ?", name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", preset.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get preset %q: %w", name, err)
	}

	var p preset.Preset
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("sqlite: decode preset %q: %w", name, err)
	}
	p.Name = name
	return &p, nil
}

// Put creates or replaces the preset stored under p.Name.
func (s *Store) Put(ctx context.Context, p *preset.Preset) error {
	if p.Name == "" {
		return preset.ErrEmptyName
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("sqlite: encode preset %q: %w", p.Name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO presets (name, body) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			body = excluded.body,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
		p.Name, string(body),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put preset %q: %w", p.Name, err)
	}
	return nil
}

// List returns preset names, the default first and the rest sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM presets")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list presets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite: scan preset name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list presets: %w", err)
	}

	preset.SortNames(names)
	return names, nil
}

// Delete removes a preset. The default preset is protected.
func (s *Store) Delete(ctx context.Context, name string) error {
	if name == preset.DefaultName {
		return preset.ErrProtected
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM presets WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("sqlite: delete preset %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", preset.ErrNotFound, name)
	}
	return nil
}

// Rename moves a preset to a new, unused name.
func (s *Store) Rename(ctx context.Context, oldName, newName string) error {
	if oldName == preset.DefaultName {
		return preset.ErrProtected
	}
	if newName == "" {
		return preset.ErrEmptyName
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin rename: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var taken int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM presets WHERE name = ?", newName).Scan(&taken); err != nil {
		return fmt.Errorf("sqlite: rename preset %q: %w", oldName, err)
	}
	if taken > 0 {
		return fmt.Errorf("%w: %s", preset.ErrExists, newName)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE presets SET name = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE name = ?`,
		newName, oldName,
	)
	if err != nil {
		return fmt.Errorf("sqlite: rename preset %q: %w", oldName, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", preset.ErrNotFound, oldName)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit rename: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// seedDefault stores the built-in default preset unless one exists.
func (s *Store) seedDefault(ctx context.Context) error {
	body, err := json.Marshal(preset.Default())
	if err != nil {
		return fmt.Errorf("sqlite: encode default preset: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO presets (name, body) VALUES (?, ?)",
		preset.DefaultName, string(body),
	); err != nil {
		return fmt.Errorf("sqlite: seed default preset: %w", err)
	}
	return nil
}

// importDir imports every *.json preset file in dir whose derived name is
// not yet stored. Files that fail to decode are reported and skipped.
func (s *Store) importDir(ctx context.Context, dir string) (imported []string, errs []error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, []error{fmt.Errorf("sqlite: scan %s: %w", dir, err)}
	}
	slices.Sort(files)

	names, err := s.List(ctx)
	if err != nil {
		return nil, []error{err}
	}

	for _, path := range files {
		name := preset.ImportName(filepath.Base(path), func(string) bool { return false })
		if slices.Contains(names, name) {
			continue
		}

		p, err := decodeFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.Name = name
		if err := s.Put(ctx, p); err != nil {
			errs = append(errs, err)
			continue
		}
		names = append(names, name)
		imported = append(imported, name)
	}
	return imported, errs
}

func decodeFile(path string) (*preset.Preset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	p, err := preset.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("sqlite: import %s: %w", filepath.Base(path), err)
	}
	return p, nil
}
