// Package integration exercises the assembled pizzazd HTTP stack: MCP
// endpoint wrapped by the augmentation middleware, plus the widget status
// and refresh endpoints.
package integration

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pizzaz/pizzazd/pkg/admin"
	"github.com/pizzaz/pizzazd/pkg/augment"
	"github.com/pizzaz/pizzazd/pkg/mcp"
	"github.com/pizzaz/pizzazd/pkg/ratelimit"
	"github.com/pizzaz/pizzazd/pkg/widget"
)

const testManifest = `{
	"schemaVersion": "1.0.0",
	"widgets": [
		{
			"id": "pizza-map",
			"title": "Show Pizza Map",
			"templateUri": "ui://widget/pizza-map.html",
			"invoking": "Hand-tossing a map",
			"invoked": "Served a fresh map",
			"html": "<div id=\"pizzaz-root\"></div>",
			"responseText": "Rendered a pizza map!"
		},
		{
			"id": "pizza-list",
			"title": "Show Pizza List",
			"templateUri": "ui://widget/pizza-list.html",
			"invoking": "Hand-tossing a list",
			"invoked": "Served a fresh list",
			"html": "<div id=\"pizzaz-list-root\"></div>",
			"responseText": "Rendered a pizza list!"
		}
	]
}`

type stack struct {
	server       *httptest.Server
	registry     *widget.Registry
	manifestPath string
}

// newStack assembles the production handler composition: the MCP server
// behind the augmentation middleware, and the admin endpoints beside it.
func newStack(t *testing.T, manifest, token string, spec ratelimit.Spec) *stack {
	t.Helper()

	path := filepath.Join(t.TempDir(), "widgets.json")
	if manifest != "" {
		require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))
	}

	registry := widget.NewRegistry(path, nil)
	registry.Bootstrap()

	mcpServer := mcp.NewServer(mcp.DefaultConfig(), registry, nil)
	t.Cleanup(mcpServer.Close)

	adminAPI := admin.New(registry, ratelimit.NewFixedWindow(spec), token, nil)
	adminAPI.OnReload(mcpServer.NotifyWidgetsReloaded)

	mux := http.NewServeMux()
	mux.Handle("/mcp", augment.Middleware(registry, nil)(mcpServer.Handler()))
	adminAPI.Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &stack{server: server, registry: registry, manifestPath: path}
}

// rpc posts a JSON-RPC request and returns the HTTP response plus decoded body.
func (s *stack) rpc(t *testing.T, sessionID, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/mcp", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}

	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if buf.Len() > 0 {
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded), "body: %s", buf.String())
	}
	return resp, decoded
}

func (s *stack) readySession(t *testing.T) string {
	t.Helper()
	resp, body := s.rpc(t, "", `{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": {
			"protocolVersion": "2025-06-18",
			"capabilities": {},
			"clientInfo": {"name": "integration", "version": "1.0"}
		}
	}`)
	require.Nil(t, body["error"])
	sessionID := resp.Header.Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)

	resp, _ = s.rpc(t, sessionID, `{"jsonrpc": "2.0", "method": "initialized"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	return sessionID
}

func TestToolsListCarriesWidgetMeta(t *testing.T) {
	s := newStack(t, testManifest, "", ratelimit.DefaultSpec())
	sessionID := s.readySession(t)

	// The MCP server emits tools without _meta; the middleware injects it.
	_, body := s.rpc(t, sessionID, `{"jsonrpc": "2.0", "id": 2, "method": "tools/list"}`)
	require.Nil(t, body["error"])

	tools := body["result"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 2)

	for _, item := range tools {
		tool := item.(map[string]any)
		meta, ok := tool["_meta"].(map[string]any)
		require.True(t, ok, "tool %v has no _meta", tool["name"])
		assert.Equal(t, fmt.Sprintf("ui://widget/%v.html", tool["name"]), meta["openai/outputTemplate"])
		assert.Equal(t, true, meta["openai/widgetAccessible"])
		assert.Equal(t, true, meta["openai/resultCanProduceWidget"])
	}
}

func TestResourcesListCarriesWidgetMeta(t *testing.T) {
	s := newStack(t, testManifest, "", ratelimit.DefaultSpec())
	sessionID := s.readySession(t)

	_, body := s.rpc(t, sessionID, `{"jsonrpc": "2.0", "id": 3, "method": "resources/list"}`)
	require.Nil(t, body["error"])

	resources := body["result"].(map[string]any)["resources"].([]any)
	require.Len(t, resources, 2)
	first := resources[0].(map[string]any)
	meta, ok := first["_meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, first["uri"], meta["openai/outputTemplate"])

	_, body = s.rpc(t, sessionID, `{"jsonrpc": "2.0", "id": 4, "method": "resources/templates/list"}`)
	require.Nil(t, body["error"])
	templates := body["result"].(map[string]any)["resourceTemplates"].([]any)
	require.Len(t, templates, 2)
	_, ok = templates[0].(map[string]any)["_meta"].(map[string]any)
	assert.True(t, ok, "resource template has no _meta")
}

func TestToolCallReturnsMetaAndText(t *testing.T) {
	s := newStack(t, testManifest, "", ratelimit.DefaultSpec())
	sessionID := s.readySession(t)

	_, body := s.rpc(t, sessionID, `{
		"jsonrpc": "2.0", "id": 5, "method": "tools/call",
		"params": {"name": "pizza-map", "arguments": {"pizzaTopping": "pepperoni"}}
	}`)
	require.Nil(t, body["error"])

	result := body["result"].(map[string]any)
	content := result["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "Rendered a pizza map!", content["text"])
	meta := result["_meta"].(map[string]any)
	assert.Equal(t, "ui://widget/pizza-map.html", meta["openai/outputTemplate"])
}

func TestStatusEndpoint(t *testing.T) {
	t.Run("uninitialized", func(t *testing.T) {
		s := newStack(t, "", "", ratelimit.DefaultSpec())

		resp, err := s.server.Client().Get(s.server.URL + admin.StatusPath)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, false, body["registry_initialized"])
		assert.Equal(t, float64(0), body["widgets_count"])
		assert.Equal(t, false, body["manifest_exists"])
		assert.Nil(t, body["schema_version"])
	})

	t.Run("loaded", func(t *testing.T) {
		s := newStack(t, testManifest, "", ratelimit.DefaultSpec())

		resp, err := s.server.Client().Get(s.server.URL + admin.StatusPath)
		require.NoError(t, err)
		defer resp.Body.Close()

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, true, body["registry_initialized"])
		assert.Equal(t, float64(2), body["widgets_count"])
		assert.Equal(t, "1.0.0", body["schema_version"])
	})
}

func refresh(t *testing.T, s *stack, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.server.URL+admin.RefreshPath, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestRefreshFlow(t *testing.T) {
	s := newStack(t, testManifest, "sesame", ratelimit.Spec{Limit: 2, Window: time.Minute})

	// Wrong token.
	resp, body := refresh(t, s, "wrong")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	assert.Equal(t, false, body["success"])

	// Correct token.
	resp, body = refresh(t, s, "sesame")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["widgets_loaded"])
	assert.Equal(t, "1.0.0", body["schema_version"])

	// Quota exhausted (auth failures do not count against it).
	refresh(t, s, "sesame")
	resp, body = refresh(t, s, "sesame")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(2), body["widgets_count"])
}

func TestRefreshPicksUpManifestChanges(t *testing.T) {
	s := newStack(t, testManifest, "sesame", ratelimit.DefaultSpec())
	sessionID := s.readySession(t)

	// Rewrite the manifest with a single widget and refresh.
	single := `{
		"schemaVersion": "1.1.0",
		"widgets": [{
			"id": "pizza-video",
			"title": "Show Pizza Video",
			"templateUri": "ui://widget/pizza-video.html",
			"invoking": "Hand-tossing a video",
			"invoked": "Served a fresh video",
			"html": "<div id=\"pizzaz-video-root\"></div>",
			"responseText": "Rendered a pizza video!"
		}]
	}`
	require.NoError(t, os.WriteFile(s.manifestPath, []byte(single), 0o644))

	resp, body := refresh(t, s, "sesame")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["widgets_loaded"])
	assert.Equal(t, "1.1.0", body["schema_version"])

	_, body = s.rpc(t, sessionID, `{"jsonrpc": "2.0", "id": 6, "method": "tools/list"}`)
	tools := body["result"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "pizza-video", tools[0].(map[string]any)["name"])
}

func TestRefreshNotifiesSSESubscribers(t *testing.T) {
	s := newStack(t, testManifest, "sesame", ratelimit.DefaultSpec())
	sessionID := s.readySession(t)

	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Mcp-Session-Id", sessionID)

	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	events := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data: ") {
				events <- strings.TrimPrefix(line, "data: ")
				return
			}
		}
	}()

	refresh(t, s, "sesame")

	select {
	case data := <-events:
		var notif map[string]any
		require.NoError(t, json.Unmarshal([]byte(data), &notif))
		assert.Equal(t, "notifications/resources/list_changed", notif["method"])
	case <-time.After(3 * time.Second):
		t.Fatal("no notification received on SSE stream")
	}
}
