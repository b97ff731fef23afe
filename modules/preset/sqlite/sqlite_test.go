package sqlite

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/core"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/message"
)

func newTestModule(t *testing.T, cfg Config) (*Module, *core.AppContext) {
	t.Helper()

	dir := t.TempDir()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(dir, "test.db")
	}
	m := &Module{config: cfg}
	m.config.defaults()

	ctx := core.NewAppContext(slog.Default(), dir, dir)

	if err := m.Provision(ctx); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	t.Cleanup(func() {
		_ = m.Stop(context.Background())
	})

	return m, ctx
}

func samplePreset(name string) *preset.Preset {
	p := &preset.Preset{
		Name: name,
		Prompts: []preset.Segment{
			preset.NewStatic("main", "Main", message.RoleSystem, "Stay in character as {{char}}."),
			preset.NewMarker(preset.IDChatHistory, "Chat History"),
		},
		PromptOrder: []preset.OrderEntry{
			{Identifier: "main", Enabled: true},
			{Identifier: preset.IDChatHistory, Enabled: true},
		},
	}
	p.MaxTokens = 300
	return p
}

func TestModule_RegistersStore(t *testing.T) {
	t.Parallel()

	m, ctx := newTestModule(t, Config{})

	svc, ok := ctx.Service(StoreService)
	if !ok {
		t.Fatal("preset.store not registered")
	}
	if svc.(preset.Store) != preset.Store(m.Store()) {
		t.Error("registered store differs from Module.Store()")
	}
}

func TestModule_DefaultPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := &Module{}
	if err := m.Provision(core.NewAppContext(slog.Default(), dir, dir)); err != nil {
		t.Fatalf("provision: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	if want := filepath.Join(dir, "presets.db"); m.config.Path != want {
		t.Errorf("Path = %q, want %q", m.config.Path, want)
	}
}

func TestStore_SeedsDefault(t *testing.T) {
	t.Parallel()

	m, _ := newTestModule(t, Config{})
	ctx := context.Background()

	names, err := m.store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !slices.Equal(names, []string{preset.DefaultName}) {
		t.Errorf("names = %v, want [Default]", names)
	}

	p, err := m.store.Get(ctx, preset.DefaultName)
	if err != nil {
		t.Fatalf("get default: %v", err)
	}
	if len(p.Prompts) != len(preset.Default().Prompts) {
		t.Errorf("default prompts = %d, want %d", len(p.Prompts), len(preset.Default().Prompts))
	}
}

func TestStore_PutGetReplace(t *testing.T) {
	t.Parallel()

	m, _ := newTestModule(t, Config{})
	ctx := context.Background()

	if err := m.store.Put(ctx, samplePreset("Noir")); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := m.store.Get(ctx, "Noir")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Noir" || got.MaxTokens != 300 {
		t.Errorf("got %+v", got)
	}
	if len(got.Prompts) != 2 || got.Prompts[0].Content() != "Stay in character as {{char}}." {
		t.Errorf("prompts = %+v", got.Prompts)
	}
	if !got.Prompts[1].IsMarker() {
		t.Error("chat history marker lost")
	}

	replacement := samplePreset("Noir")
	replacement.MaxTokens = 900
	if err := m.store.Put(ctx, replacement); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err = m.store.Get(ctx, "Noir")
	if err != nil {
		t.Fatalf("get after replace: %v", err)
	}
	if got.MaxTokens != 900 {
		t.Errorf("MaxTokens = %d, want 900", got.MaxTokens)
	}
}

func TestStore_Errors(t *testing.T) {
	t.Parallel()

	m, _ := newTestModule(t, Config{})
	ctx := context.Background()
	if err := m.store.Put(ctx, samplePreset("Noir")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"get missing", func() error { _, err := m.store.Get(ctx, "Ghost"); return err }(), preset.ErrNotFound},
		{"put unnamed", m.store.Put(ctx, samplePreset("")), preset.ErrEmptyName},
		{"delete default", m.store.Delete(ctx, preset.DefaultName), preset.ErrProtected},
		{"delete missing", m.store.Delete(ctx, "Ghost"), preset.ErrNotFound},
		{"rename default", m.store.Rename(ctx, preset.DefaultName, "X"), preset.ErrProtected},
		{"rename missing", m.store.Rename(ctx, "Ghost", "X"), preset.ErrNotFound},
		{"rename onto existing", m.store.Rename(ctx, "Noir", preset.DefaultName), preset.ErrExists},
		{"rename to empty", m.store.Rename(ctx, "Noir", ""), preset.ErrEmptyName},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, tt.err, tt.want)
		}
	}
}

func TestStore_RenameAndDelete(t *testing.T) {
	t.Parallel()

	m, _ := newTestModule(t, Config{})
	ctx := context.Background()

	for _, name := range []string{"b", "a"} {
		if err := m.store.Put(ctx, samplePreset(name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.store.Rename(ctx, "b", "c"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	names, err := m.store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{preset.DefaultName, "a", "c"}; !slices.Equal(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}

	got, err := m.store.Get(ctx, "c")
	if err != nil || got.Name != "c" {
		t.Errorf("renamed preset: %+v, %v", got, err)
	}

	if err := m.store.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.store.Get(ctx, "a"); !errors.Is(err, preset.ErrNotFound) {
		t.Errorf("deleted preset still readable: %v", err)
	}
}

func TestStore_ConcurrentPut(t *testing.T) {
	t.Parallel()

	m, _ := newTestModule(t, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			name := string(rune('a' + i))
			if err := m.store.Put(ctx, samplePreset(name)); err != nil {
				t.Errorf("put %s: %v", name, err)
			}
		})
	}
	wg.Wait()

	names, err := m.store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 9 {
		t.Errorf("len(names) = %d, want 9", len(names))
	}
}

func TestModule_ImportDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := map[string]string{
		"Noir_preset.json": `{"prompts":[{"identifier":"main","content":"Be terse."}]}`,
		"broken.json":      `{"prompts":`,
		"notes.txt":        `ignored`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	m, _ := newTestModule(t, Config{ImportDir: dir})

	names, err := m.store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{preset.DefaultName, "Noir"}; !slices.Equal(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}

	// A second scan leaves existing presets alone.
	imported, errs := m.store.importDir(context.Background(), dir)
	if len(imported) != 0 {
		t.Errorf("re-import = %v, want none", imported)
	}
	if len(errs) != 1 {
		t.Errorf("errs = %v, want the broken file only", errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero", Config{}, false},
		{"negative busy_timeout", Config{BusyTimeout: -1}, true},
		{"import_dir is the database", Config{Path: "presets", ImportDir: "presets"}, true},
		{"import_dir", Config{Path: "presets.db", ImportDir: "presets"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.cfg.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	c := Config{}
	c.defaults()
	if !c.walEnabled() || c.BusyTimeout != 5000 {
		t.Errorf("defaults = %+v", c)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := Config{Path: filepath.Join(t.TempDir(), "presets.db")}
	cfg.defaults()
	db, err := openDB(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	if err := migrate(ctx, db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != len(migrations) {
		t.Errorf("user_version = %d, want %d", version, len(migrations))
	}

	if _, err := db.ExecContext(ctx, "PRAGMA user_version = 99"); err != nil {
		t.Fatal(err)
	}
	if err := migrate(ctx, db); err == nil {
		t.Error("expected error for a newer schema")
	}
}
