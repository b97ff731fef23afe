package gateway

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/config"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/core"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/security"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/security/securitytest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// mustYAMLNode parses YAML text into a *yaml.Node for Configure calls.
func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	return &node
}

type testEnv struct {
	gw     *Gateway
	appCtx *core.AppContext
	store  *preset.MemoryStore
	events func() []security.AuditEvent
	router http.Handler
}

// newTestEnv provisions a gateway against an in-memory preset store and
// returns its router without binding a socket.
func newTestEnv(t *testing.T, auth AuthConfig) *testEnv {
	t.Helper()

	appCtx := core.NewAppContext(testLogger(), t.TempDir(), t.TempDir())
	store := preset.NewMemoryStore()
	audit, events := securitytest.NewTestAuditLogger()
	appCtx.RegisterService("preset.store", store)
	appCtx.RegisterService("security.audit", audit)
	appCtx.RegisterService("security.redactor", securitytest.NewTestRedactor())
	appCtx.RegisterService(config.AssemblyService, config.AssemblyConfig{UserName: "Alex"})

	g := &Gateway{}
	g.config.Auth = auth
	if err := g.Provision(appCtx.ForModule(ModuleID)); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	g.resolveServices()

	return &testEnv{gw: g, appCtx: appCtx, store: store, events: events, router: g.buildRouter()}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}
