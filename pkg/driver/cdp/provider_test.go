package cdp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devicelab-dev/rpa-runner/pkg/driver/mock"
)

// jsonResponse writes a JSON response
func jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// profileAPI is a fake profile manager recording the calls it receives.
type profileAPI struct {
	mu    sync.Mutex
	calls []string
	start func(w http.ResponseWriter, r *http.Request)
}

func (a *profileAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.calls = append(a.calls, r.URL.Path+"?"+r.URL.RawQuery)
	a.mu.Unlock()

	switch r.URL.Path {
	case DefaultStartPath:
		a.start(w, r)
	case DefaultStopPath:
		jsonResponse(w, map[string]interface{}{"code": 0, "msg": "success"})
	default:
		http.NotFound(w, r)
	}
}

func (a *profileAPI) called(path string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, c := range a.calls {
		if strings.HasPrefix(c, path+"?") {
			out = append(out, c)
		}
	}
	return out
}

func newTestProvider(t *testing.T, api *profileAPI) *Provider {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	return NewProvider(Config{BaseURL: server.URL, Timeout: 5 * time.Second})
}

func TestNewProviderDefaults(t *testing.T) {
	p := NewProvider(Config{})
	if p.cfg.BaseURL != DefaultBaseURL || p.cfg.StartPath != DefaultStartPath || p.cfg.StopPath != DefaultStopPath {
		t.Errorf("unexpected config: %+v", p.cfg)
	}
	if p.cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v", p.cfg.Timeout)
	}
}

func TestStartBrowser(t *testing.T) {
	api := &profileAPI{start: func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") != "k1a2b3" {
			t.Errorf("user_id = %q", r.URL.Query().Get("user_id"))
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		jsonResponse(w, map[string]interface{}{
			"code": 0,
			"msg":  "success",
			"data": map[string]interface{}{
				"ws": map[string]interface{}{"puppeteer": "ws://127.0.0.1:9222/devtools/browser/abc"},
			},
		})
	}}
	server := httptest.NewServer(api)
	defer server.Close()

	p := NewProvider(Config{BaseURL: server.URL + "/", APIKey: "secret"})
	ws, err := p.startBrowser(context.Background(), "k1a2b3")
	if err != nil {
		t.Fatalf("startBrowser failed: %v", err)
	}
	if ws != "ws://127.0.0.1:9222/devtools/browser/abc" {
		t.Errorf("ws = %q", ws)
	}
}

func TestAcquireSurfacesProfileError(t *testing.T) {
	api := &profileAPI{start: func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, map[string]interface{}{"code": -1, "msg": "profile does not exist"})
	}}
	p := newTestProvider(t, api)

	_, err := p.Acquire(context.Background(), "missing")
	if err == nil || err.Error() != "profile does not exist" {
		t.Fatalf("Acquire() error = %v", err)
	}
}

func TestAcquireHTTPError(t *testing.T) {
	api := &profileAPI{start: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}}
	p := newTestProvider(t, api)

	_, err := p.Acquire(context.Background(), "E1")
	if err == nil || !strings.Contains(err.Error(), "HTTP 503") {
		t.Fatalf("Acquire() error = %v", err)
	}
}

func TestAcquireMissingDevtoolsURL(t *testing.T) {
	api := &profileAPI{start: func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, map[string]interface{}{"code": 0, "msg": "success"})
	}}
	p := newTestProvider(t, api)

	if _, err := p.Acquire(context.Background(), "E1"); err == nil {
		t.Fatal("expected error for response without devtools url")
	}
}

func TestAcquireAttachFailureStopsBrowser(t *testing.T) {
	api := &profileAPI{start: func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"ws": map[string]interface{}{"puppeteer": "ws://127.0.0.1:1/devtools/browser/none"},
			},
		})
	}}
	p := newTestProvider(t, api)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := p.Acquire(ctx, "E1"); err == nil {
		t.Fatal("expected attach error")
	}
	if got := api.called(DefaultStopPath); len(got) != 1 || !strings.Contains(got[0], "user_id=E1") {
		t.Errorf("stop calls = %v", got)
	}
}

func TestReleaseStopsBrowser(t *testing.T) {
	api := &profileAPI{}
	p := newTestProvider(t, api)

	tabCtx, tabCancel := context.WithCancel(context.Background())
	allocCtx, allocCancel := context.WithCancel(context.Background())
	s := newSession("E9", tabCtx, tabCancel, allocCancel)
	p.active[s] = struct{}{}

	if err := p.Release(context.Background(), s); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if tabCtx.Err() == nil || allocCtx.Err() == nil {
		t.Error("Release should cancel tab and allocator contexts")
	}
	if len(p.active) != 0 {
		t.Error("session still tracked after Release")
	}
	if got := api.called(DefaultStopPath); len(got) != 1 || !strings.Contains(got[0], "user_id=E9") {
		t.Errorf("stop calls = %v", got)
	}
}

func TestReleaseForeignSession(t *testing.T) {
	p := NewProvider(Config{})
	foreign, err := mock.New(mock.Config{}).Acquire(context.Background(), "E1")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Release(context.Background(), foreign); err == nil {
		t.Error("expected error releasing a foreign session")
	}
}

func TestCloseReleasesAll(t *testing.T) {
	api := &profileAPI{}
	p := newTestProvider(t, api)

	for _, id := range []string{"A", "B"} {
		ctx, cancel := context.WithCancel(context.Background())
		p.active[newSession(id, ctx, cancel, func() {})] = struct{}{}
	}
	p.Close(context.Background())

	if got := api.called(DefaultStopPath); len(got) != 2 {
		t.Errorf("stop calls = %v", got)
	}
}
