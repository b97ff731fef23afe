package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/security"
)

const customPreset = `{
	"temperature": 0.7,
	"prompts": [
		{"identifier": "main", "name": "Main", "content": "Stay in character as {{char}}."},
		{"identifier": "chatHistory", "marker": true}
	],
	"prompt_order": [{"identifier": "main", "enabled": true}, {"identifier": "chatHistory", "enabled": true}]
}`

func TestAdmin_HiddenWithoutAuth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, AuthConfig{})
	for _, target := range []string{"/status", "/api/presets", "/api/modules"} {
		if rr := env.do(t, http.MethodGet, target, nil, nil); rr.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", target, rr.Code)
		}
	}
}

func TestAdmin_RejectsWrongToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, AuthConfig{BearerToken: "tok"})
	if rr := env.do(t, http.MethodGet, "/api/presets", nil, bearer("nope")); rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestAdmin_PresetLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, AuthConfig{BearerToken: "tok"})
	auth := bearer("tok")

	rr := env.do(t, http.MethodPut, "/api/presets/Noir", []byte(customPreset), auth)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("PUT = %d; body: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/presets", nil, auth)
	var list map[string][]string
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(list["presets"], ","); got != "Default,Noir" {
		t.Errorf("presets = %q, want Default,Noir", got)
	}

	rr = env.do(t, http.MethodGet, "/api/presets/Noir", nil, auth)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET = %d", rr.Code)
	}
	got, err := preset.Decode(rr.Body)
	if err != nil {
		t.Fatalf("decode exported preset: %v", err)
	}
	if len(got.Prompts) != 2 || got.Prompts[0].Content() != "Stay in character as {{char}}." {
		t.Errorf("exported prompts = %+v", got.Prompts)
	}

	rr = env.do(t, http.MethodPost, "/api/presets/Noir/rename", []byte(`{"name": " Noir v2 "}`), auth)
	if rr.Code != http.StatusOK {
		t.Fatalf("rename = %d; body: %s", rr.Code, rr.Body.String())
	}
	if _, err := env.store.Get(context.Background(), "Noir v2"); err != nil {
		t.Errorf("renamed preset missing: %v", err)
	}

	rr = env.do(t, http.MethodDelete, "/api/presets/Noir%20v2", nil, auth)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("DELETE = %d; body: %s", rr.Code, rr.Body.String())
	}
	if _, err := env.store.Get(context.Background(), "Noir v2"); !errors.Is(err, preset.ErrNotFound) {
		t.Errorf("deleted preset still present: %v", err)
	}

	var types []security.EventType
	for _, e := range env.events() {
		if strings.HasPrefix(string(e.Type), "preset_") {
			types = append(types, e.Type)
		}
	}
	want := []security.EventType{security.EventPresetPut, security.EventPresetRename, security.EventPresetDelete}
	if len(types) != len(want) {
		t.Fatalf("preset audit events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestAdmin_PresetErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		wantCode int
	}{
		{name: "get missing", method: http.MethodGet, target: "/api/presets/Ghost", wantCode: http.StatusNotFound},
		{name: "delete default", method: http.MethodDelete, target: "/api/presets/Default", wantCode: http.StatusForbidden},
		{name: "rename default", method: http.MethodPost, target: "/api/presets/Default/rename", body: `{"name":"X"}`, wantCode: http.StatusForbidden},
		{name: "rename onto existing", method: http.MethodPost, target: "/api/presets/Noir/rename", body: `{"name":"Default"}`, wantCode: http.StatusConflict},
		{name: "rename to empty", method: http.MethodPost, target: "/api/presets/Noir/rename", body: `{"name":"  "}`, wantCode: http.StatusBadRequest},
		{name: "put invalid json", method: http.MethodPut, target: "/api/presets/Bad", body: `{"prompts":`, wantCode: http.StatusBadRequest},
		{name: "put duplicate ids", method: http.MethodPut, target: "/api/presets/Bad", body: `{"prompts":[{"identifier":"a"},{"identifier":"a"}]}`, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, AuthConfig{BearerToken: "tok"})
			noir, err := preset.Decode(strings.NewReader(customPreset))
			if err != nil {
				t.Fatal(err)
			}
			noir.Name = "Noir"
			if err := env.store.Put(context.Background(), noir); err != nil {
				t.Fatal(err)
			}

			var body []byte
			if tt.body != "" {
				body = []byte(tt.body)
			}
			rr := env.do(t, tt.method, tt.target, body, bearer("tok"))
			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d; body: %s", rr.Code, tt.wantCode, rr.Body.String())
			}
		})
	}
}

func TestAdmin_ImportPreset(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, AuthConfig{BearerToken: "tok"})

	names := make([]string, 2)
	for i := range names {
		rr := env.do(t, http.MethodPost, "/api/presets/import?filename=Noir_preset.json", []byte(customPreset), bearer("tok"))
		if rr.Code != http.StatusCreated {
			t.Fatalf("import %d = %d; body: %s", i, rr.Code, rr.Body.String())
		}
		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		names[i] = resp["name"]
	}

	if names[0] != "Noir" || names[1] != "Noir (1)" {
		t.Errorf("imported names = %v, want [Noir Noir (1)]", names)
	}
}

func TestAdmin_Modules(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, AuthConfig{BearerToken: "tok"})
	rr := env.do(t, http.MethodGet, "/api/modules", nil, bearer("tok"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var mods []moduleJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &mods); err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, m := range mods {
		if m.ID == ModuleID && m.Namespace == "gateway" {
			found = true
		}
	}
	if !found {
		t.Errorf("gateway module not listed in %+v", mods)
	}
}

func TestAdmin_GetConfigRedacts(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, AuthConfig{BearerToken: "tok"})
	env.gw.redactor = security.NewRedactor()

	path := filepath.Join(t.TempDir(), "tavern.yaml")
	cfg := `version: "1"
assembly:
  max_chars: 4000
modules:
  gateway.http:
    auth:
      bearer_token: sk-abcdefghijklmnopqrstuvwxyz123456
`
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	env.appCtx.RegisterService("config.path", path)

	rr := env.do(t, http.MethodGet, "/api/config", nil, bearer("tok"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if strings.Contains(body, "sk-abcdefghijklmnopqrstuvwxyz123456") {
		t.Errorf("secret leaked: %s", body)
	}
	if !strings.Contains(body, `"max_chars":4000`) {
		t.Errorf("assembly section missing: %s", body)
	}
}

func TestAdmin_ConfigWithoutPath(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, AuthConfig{BearerToken: "tok"})
	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/api/config"},
		{http.MethodPost, "/api/config/reload"},
	} {
		if rr := env.do(t, tc.method, tc.target, nil, bearer("tok")); rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s = %d, want 503", tc.method, tc.target, rr.Code)
		}
	}
}

type fakeReloader struct {
	path string
	err  error
}

func (f *fakeReloader) HandleReload(_ context.Context, path string) error {
	f.path = path
	return f.err
}

func TestAdmin_ReloadConfig(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, AuthConfig{BearerToken: "tok"})
	reloader := &fakeReloader{}
	env.appCtx.RegisterService("config.path", "/etc/tavern/tavern.yaml")
	env.appCtx.RegisterService("reload.handler", reloader)

	rr := env.do(t, http.MethodPost, "/api/config/reload", nil, bearer("tok"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rr.Code, rr.Body.String())
	}
	if reloader.path != "/etc/tavern/tavern.yaml" {
		t.Errorf("reloaded path = %q", reloader.path)
	}

	var sawReload bool
	for _, e := range env.events() {
		if e.Type == security.EventConfigReload {
			sawReload = true
		}
	}
	if !sawReload {
		t.Error("expected a config_reload audit event")
	}

	reloader.err = errors.New("version: unsupported")
	if rr := env.do(t, http.MethodPost, "/api/config/reload", nil, bearer("tok")); rr.Code != http.StatusBadRequest {
		t.Errorf("failed reload status = %d, want 400", rr.Code)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, AuthConfig{BearerToken: "tok"})
	rr := env.do(t, http.MethodGet, "/status", nil, bearer("tok"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Presets != 1 {
		t.Errorf("Presets = %d, want 1", resp.Presets)
	}
	if resp.Assembly.UserName != "Alex" {
		t.Errorf("Assembly.UserName = %q, want Alex", resp.Assembly.UserName)
	}
}
