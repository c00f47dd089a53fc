package admin

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pizzaz/pizzazd/pkg/httputil"
	"github.com/pizzaz/pizzazd/pkg/logging"
	"github.com/pizzaz/pizzazd/pkg/ratelimit"
	"github.com/pizzaz/pizzazd/pkg/widget"
)

// Endpoint paths.
const (
	StatusPath  = "/internal/widgets/status"
	RefreshPath = "/internal/widgets/refresh"
)

// API serves the internal widget endpoints.
type API struct {
	registry *widget.Registry
	limiter  *ratelimit.FixedWindow
	token    string
	onReload func()
	log      *slog.Logger
}

// New creates the admin API. An empty token disables the refresh endpoint.
func New(registry *widget.Registry, limiter *ratelimit.FixedWindow, token string, log *slog.Logger) *API {
	if log == nil {
		log = logging.Nop()
	}
	return &API{
		registry: registry,
		limiter:  limiter,
		token:    token,
		log:      log,
	}
}

// OnReload registers a hook invoked after every successful refresh, e.g. to
// notify connected MCP sessions that the resource list changed.
func (a *API) OnReload(fn func()) {
	a.onReload = fn
}

// Register mounts the endpoints on the mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc(StatusPath, a.handleStatus)
	mux.HandleFunc(RefreshPath, a.handleRefresh)
}

// statusResponse is the diagnostic body of the status endpoint and of
// refresh failure responses.
type statusResponse struct {
	RegistryInitialized bool    `json:"registry_initialized"`
	WidgetsCount        int     `json:"widgets_count"`
	SchemaVersion       *string `json:"schema_version"`
	LastSuccessfulLoad  *string `json:"last_successful_load"`
	ManifestPath        string  `json:"manifest_path"`
	ManifestExists      bool    `json:"manifest_exists"`
}

// refreshFailure is the body of every non-200 refresh response. The
// diagnostic fields reflect the registry as it stands, untouched by the
// failed call.
type refreshFailure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	statusResponse
}

// refreshSuccess is the body of a 200 refresh response.
type refreshSuccess struct {
	Success           bool   `json:"success"`
	WidgetsLoaded     int    `json:"widgets_loaded"`
	SchemaVersion     string `json:"schema_version"`
	ManifestTimestamp string `json:"manifest_timestamp"`
}

// currentStatus snapshots registry metadata into the wire shape.
func (a *API) currentStatus() statusResponse {
	meta := a.registry.Metadata()
	resp := statusResponse{
		RegistryInitialized: meta.Initialized,
		WidgetsCount:        meta.WidgetCount,
		ManifestPath:        meta.ManifestPath,
		ManifestExists:      meta.ManifestExists,
	}
	if meta.Initialized {
		version := meta.SchemaVersion
		resp.SchemaVersion = &version
		lastLoad := meta.LastLoad.UTC().Format(time.RFC3339)
		resp.LastSuccessfulLoad = &lastLoad
	}
	return resp
}

// handleStatus serves registry diagnostics. No auth; always available.
func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteMethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteOK(w, a.currentStatus())
}

// handleRefresh reloads the widget manifest. The call walks a fixed gate
// sequence: feature enabled, bearer token, rate limit, then the reload
// itself.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteMethodNotAllowed(w, http.MethodPost)
		return
	}

	// No token configured: the endpoint does not exist.
	if a.token == "" {
		httputil.WriteNotFound(w, "not_found", "not found")
		return
	}

	if !a.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="widgets"`)
		a.writeFailure(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return
	}

	if ok, retryAfter := a.limiter.Allow(clientAddr(r)); !ok {
		seconds := int(retryAfter / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		a.writeFailure(w, http.StatusTooManyRequests, "rate limit exceeded, retry later")
		return
	}

	result, err := a.registry.Reload()
	switch {
	case err == nil:
		a.log.Info("widget registry refreshed",
			"widgets", result.WidgetsLoaded,
			"schema_version", result.SchemaVersion)
		if a.onReload != nil {
			a.onReload()
		}
		httputil.WriteOK(w, refreshSuccess{
			Success:           true,
			WidgetsLoaded:     result.WidgetsLoaded,
			SchemaVersion:     result.SchemaVersion,
			ManifestTimestamp: result.ManifestTimestamp.UTC().Format(time.RFC3339),
		})

	case isNotFound(err):
		message := "widget manifest is missing"
		if !a.registry.Metadata().Initialized {
			message = "widget manifest has never been loaded and is missing"
		}
		a.log.Warn("widget refresh failed, manifest not found", "error", err)
		a.writeFailure(w, http.StatusServiceUnavailable, message)

	default:
		a.log.Error("widget refresh failed validation", "error", err)
		a.writeFailure(w, http.StatusBadRequest, err.Error())
	}
}

func (a *API) writeFailure(w http.ResponseWriter, status int, message string) {
	httputil.WriteJSON(w, status, refreshFailure{
		Success:        false,
		Message:        message,
		statusResponse: a.currentStatus(),
	})
}

// authorized extracts and checks the bearer token. The comparison is
// constant-time to avoid leaking how much of the token matched.
func (a *API) authorized(r *http.Request) bool {
	scheme, credential, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	credential = strings.TrimSpace(credential)
	if credential == "" || len(credential) != len(a.token) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(a.token)) == 1
}

// clientAddr is the rate-limit key: the remote host without the port.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isNotFound(err error) bool {
	return errors.Is(err, widget.ErrManifestNotFound)
}
