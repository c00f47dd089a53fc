package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/pizzaz/pizzazd/pkg/ratelimit"
	"github.com/pizzaz/pizzazd/pkg/widget"
)

const testManifest = `{
	"schemaVersion": "1.0.0",
	"widgets": [{
		"id": "pizza-map",
		"title": "Show Pizza Map",
		"templateUri": "ui://widget/pizza-map.html",
		"invoking": "Hand-tossing a map",
		"invoked": "Served a fresh map",
		"html": "<div id=\"pizzaz-root\"></div>",
		"responseText": "Rendered a pizza map!"
	}]
}`

type fixture struct {
	api          *API
	registry     *widget.Registry
	manifestPath string
	mux          *http.ServeMux
}

func newFixture(t *testing.T, token string, spec ratelimit.Spec) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "widgets.json")
	if err := os.WriteFile(path, []byte(testManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	registry := widget.NewRegistry(path, nil)
	api := New(registry, ratelimit.NewFixedWindow(spec), token, nil)
	mux := http.NewServeMux()
	api.Register(mux)

	return &fixture{api: api, registry: registry, manifestPath: path, mux: mux}
}

func (f *fixture) do(t *testing.T, method, path, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func TestStatusUninitialized(t *testing.T) {
	f := newFixture(t, "", ratelimit.DefaultSpec())

	rec, body := f.do(t, http.MethodGet, StatusPath, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["registry_initialized"] != false {
		t.Errorf("registry_initialized = %v", body["registry_initialized"])
	}
	if body["widgets_count"] != float64(0) {
		t.Errorf("widgets_count = %v", body["widgets_count"])
	}
	if body["schema_version"] != nil {
		t.Errorf("schema_version = %v, want null", body["schema_version"])
	}
	if body["manifest_exists"] != true {
		t.Errorf("manifest_exists = %v", body["manifest_exists"])
	}
}

func TestStatusAfterLoad(t *testing.T) {
	f := newFixture(t, "", ratelimit.DefaultSpec())
	if _, err := f.registry.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	_, body := f.do(t, http.MethodGet, StatusPath, "")
	if body["registry_initialized"] != true {
		t.Errorf("registry_initialized = %v", body["registry_initialized"])
	}
	if body["widgets_count"] != float64(1) {
		t.Errorf("widgets_count = %v", body["widgets_count"])
	}
	if body["schema_version"] != "1.0.0" {
		t.Errorf("schema_version = %v", body["schema_version"])
	}
	if _, err := time.Parse(time.RFC3339, body["last_successful_load"].(string)); err != nil {
		t.Errorf("last_successful_load not RFC3339: %v", err)
	}
}

func TestStatusMethodNotAllowed(t *testing.T) {
	f := newFixture(t, "", ratelimit.DefaultSpec())
	rec, _ := f.do(t, http.MethodPost, StatusPath, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRefreshDisabledWithoutToken(t *testing.T) {
	f := newFixture(t, "", ratelimit.DefaultSpec())
	rec, _ := f.do(t, http.MethodPost, RefreshPath, "anything")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRefreshUnauthorized(t *testing.T) {
	f := newFixture(t, "sesame", ratelimit.DefaultSpec())

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "wrong", token: "open-sesame"},
		{name: "wrong same length", token: "sesamo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.do(t, http.MethodPost, RefreshPath, tt.token)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("no WWW-Authenticate challenge")
			}
			if body["success"] != false {
				t.Errorf("success = %v", body["success"])
			}
			if _, ok := body["registry_initialized"]; !ok {
				t.Error("diagnostics missing from body")
			}
		})
	}
}

func TestRefreshWrongScheme(t *testing.T) {
	f := newFixture(t, "sesame", ratelimit.DefaultSpec())

	req := httptest.NewRequest(http.MethodPost, RefreshPath, nil)
	req.Header.Set("Authorization", "Basic c2VzYW1l")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRefreshSuccess(t *testing.T) {
	f := newFixture(t, "sesame", ratelimit.DefaultSpec())

	notified := false
	f.api.OnReload(func() { notified = true })

	rec, body := f.do(t, http.MethodPost, RefreshPath, "sesame")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, body)
	}
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["widgets_loaded"] != float64(1) {
		t.Errorf("widgets_loaded = %v", body["widgets_loaded"])
	}
	if body["schema_version"] != "1.0.0" {
		t.Errorf("schema_version = %v", body["schema_version"])
	}
	if !notified {
		t.Error("reload hook not invoked")
	}
}

func TestRefreshRateLimited(t *testing.T) {
	f := newFixture(t, "sesame", ratelimit.Spec{Limit: 1, Window: time.Minute})

	rec, _ := f.do(t, http.MethodPost, RefreshPath, "sesame")
	if rec.Code != http.StatusOK {
		t.Fatalf("first refresh = %d", rec.Code)
	}

	rec, body := f.do(t, http.MethodPost, RefreshPath, "sesame")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second refresh = %d, want 429", rec.Code)
	}
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q, want integer >= 1", rec.Header().Get("Retry-After"))
	}
	if body["success"] != false {
		t.Errorf("success = %v", body["success"])
	}
	// Diagnostics reflect the state left by the first reload.
	if body["widgets_count"] != float64(1) {
		t.Errorf("widgets_count = %v", body["widgets_count"])
	}
}

func TestRefreshManifestMissing(t *testing.T) {
	f := newFixture(t, "sesame", ratelimit.DefaultSpec())
	if _, err := f.registry.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := os.Remove(f.manifestPath); err != nil {
		t.Fatal(err)
	}

	rec, body := f.do(t, http.MethodPost, RefreshPath, "sesame")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if body["message"] == "widget manifest has never been loaded and is missing" {
		t.Error("message claims never loaded, but a load succeeded earlier")
	}
	// Prior snapshot survives.
	if body["widgets_count"] != float64(1) {
		t.Errorf("widgets_count = %v", body["widgets_count"])
	}
}

func TestRefreshManifestNeverLoaded(t *testing.T) {
	f := newFixture(t, "sesame", ratelimit.DefaultSpec())
	if err := os.Remove(f.manifestPath); err != nil {
		t.Fatal(err)
	}

	rec, body := f.do(t, http.MethodPost, RefreshPath, "sesame")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if body["message"] != "widget manifest has never been loaded and is missing" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestRefreshValidationFailure(t *testing.T) {
	f := newFixture(t, "sesame", ratelimit.DefaultSpec())
	if _, err := f.registry.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	bad := `{"schemaVersion": "2.0.0", "widgets": []}`
	if err := os.WriteFile(f.manifestPath, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, body := f.do(t, http.MethodPost, RefreshPath, "sesame")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body["success"] != false {
		t.Errorf("success = %v", body["success"])
	}
	// The good snapshot from before the bad manifest stays installed.
	if body["widgets_count"] != float64(1) {
		t.Errorf("widgets_count = %v", body["widgets_count"])
	}
	if got, _ := f.registry.WidgetByID("pizza-map"); got == nil {
		t.Error("previous snapshot lost")
	}
}
