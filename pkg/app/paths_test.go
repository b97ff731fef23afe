package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name   string
		xdg    bool // write $XDG_CONFIG_HOME/tavern/tavern.yaml
		cwd    bool // write ./tavern.yaml
		want   string
		wantOK bool
	}{
		{name: "xdg wins", xdg: true, cwd: true, want: "xdg", wantOK: true},
		{name: "working directory", cwd: true, want: "tavern.yaml", wantOK: true},
		{name: "nothing found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xdg := t.TempDir()
			t.Setenv("XDG_CONFIG_HOME", xdg)
			t.Chdir(t.TempDir())

			xdgPath := filepath.Join(xdg, "tavern", "tavern.yaml")
			if tt.xdg {
				if err := os.MkdirAll(filepath.Dir(xdgPath), 0o755); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(xdgPath, []byte("version: \"1\"\n"), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			if tt.cwd {
				if err := os.WriteFile("tavern.yaml", []byte("version: \"1\"\n"), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			got, err := ResolveConfigPath()
			if !tt.wantOK {
				if err == nil {
					t.Fatalf("ResolveConfigPath = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			want := tt.want
			if want == "xdg" {
				want = xdgPath
			}
			if got != want {
				t.Errorf("got %q, want %q", got, want)
			}
		})
	}
}

func TestResolveConfigPath_SkipsDirectory(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())
	if err := os.Mkdir("tavern.yaml", 0o755); err != nil {
		t.Fatal(err)
	}
	if got, err := ResolveConfigPath(); err == nil {
		t.Errorf("ResolveConfigPath = %q, want error for a directory", got)
	}
}

func TestDefaultDataDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		xdg  string
		want string
	}{
		{"/srv/tavern-data", "/srv/tavern-data/tavern"},
		{"", filepath.Join(home, ".local", "share", "tavern")},
	}
	for _, tt := range tests {
		t.Setenv("XDG_DATA_HOME", tt.xdg)
		if got := DefaultDataDir(); got != tt.want {
			t.Errorf("XDG_DATA_HOME=%q: got %q, want %q", tt.xdg, got, tt.want)
		}
	}
}

func TestDefaultWorkspace(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	got := DefaultWorkspace()
	cwd, _ := os.Getwd()
	if got != cwd {
		t.Errorf("got %q, want %q", got, cwd)
	}
}
