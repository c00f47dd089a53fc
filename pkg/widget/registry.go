package widget

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pizzaz/pizzazd/pkg/logging"
)

// SupportedSchemaMajor is the single manifest schema major version this
// server accepts.
const SupportedSchemaMajor = 1

// ErrManifestNotFound indicates the manifest file does not exist on disk.
var ErrManifestNotFound = errors.New("widget manifest not found")

// ValidationError indicates the manifest was readable but invalid: schema
// mismatch, unsupported schema version, missing required values, duplicate
// identifiers, or missing local asset files.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid widget manifest: " + e.Reason
}

// Metadata is a read-only diagnostic view of the registry.
type Metadata struct {
	// Initialized reports whether a manifest has ever loaded successfully.
	Initialized bool

	// WidgetCount is the number of widgets in the current snapshot.
	WidgetCount int

	// SchemaVersion is the schema version of the loaded manifest ("" if none).
	SchemaVersion string

	// ManifestPath is the configured manifest location.
	ManifestPath string

	// ManifestExists reports whether the manifest file exists right now.
	ManifestExists bool

	// GeneratedAt is the manifest-declared timestamp, or the file's
	// modification time when the manifest does not declare one.
	GeneratedAt time.Time

	// LastLoad is when the current snapshot was installed.
	LastLoad time.Time
}

// ReloadResult summarizes a successful load.
type ReloadResult struct {
	WidgetsLoaded     int
	SchemaVersion     string
	ManifestTimestamp time.Time
}

// snapshot is one immutable generation of the widget catalog. The list is
// sorted by id; both indexes reference exactly the widgets in the list.
type snapshot struct {
	widgets       []*Widget
	byID          map[string]*Widget
	byURI         map[string]*Widget
	schemaVersion string
	generatedAt   time.Time
	loadedAt      time.Time
	initialized   bool
}

// emptySnapshot is the uninitialized state installed before the first
// successful load.
func emptySnapshot() *snapshot {
	return &snapshot{
		byID:  map[string]*Widget{},
		byURI: map[string]*Widget{},
	}
}

// Registry holds the current widget snapshot and the manifest path it loads
// from. Reads take a consistent snapshot; Reload builds a replacement off to
// the side and swaps it under the write lock, so readers never observe a
// partially-built generation.
type Registry struct {
	manifestPath string
	log          *slog.Logger

	mu      sync.RWMutex
	current *snapshot
}

// NewRegistry creates a registry pointed at the given manifest path. No load
// is attempted; call Bootstrap or Reload.
func NewRegistry(manifestPath string, log *slog.Logger) *Registry {
	if log == nil {
		log = logging.Nop()
	}
	return &Registry{
		manifestPath: manifestPath,
		log:          log,
		current:      emptySnapshot(),
	}
}

// ManifestPath returns the configured manifest location.
func (r *Registry) ManifestPath() string {
	return r.manifestPath
}

// Bootstrap attempts the initial load. A missing manifest is not fatal: the
// registry stays empty and uninitialized and the service starts with zero
// widgets. A validation failure keeps whatever snapshot is installed.
func (r *Registry) Bootstrap() {
	result, err := r.Reload()
	switch {
	case errors.Is(err, ErrManifestNotFound):
		r.log.Warn("widget manifest not found, starting with empty registry",
			"path", r.manifestPath)
	case err != nil:
		r.log.Error("widget manifest failed validation, keeping current registry",
			"path", r.manifestPath, "error", err)
	default:
		r.log.Info("widget registry loaded",
			"path", r.manifestPath,
			"widgets", result.WidgetsLoaded,
			"schema_version", result.SchemaVersion)
	}
}

// Reload loads the manifest and atomically installs the new snapshot. On any
// failure the installed snapshot is left untouched and the error is returned
// to the caller.
func (r *Registry) Reload() (*ReloadResult, error) {
	next, err := r.buildSnapshot()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.current = next
	r.mu.Unlock()

	return &ReloadResult{
		WidgetsLoaded:     len(next.widgets),
		SchemaVersion:     next.schemaVersion,
		ManifestTimestamp: next.generatedAt,
	}, nil
}

// buildSnapshot reads and fully validates the manifest into a new snapshot
// without touching registry state.
func (r *Registry) buildSnapshot() (*snapshot, error) {
	info, err := os.Stat(r.manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, r.manifestPath)
		}
		return nil, fmt.Errorf("stat widget manifest %s: %w", r.manifestPath, err)
	}

	manifest, err := ReadManifest(r.manifestPath)
	if err != nil {
		return nil, err
	}

	major, ok := schemaMajor(manifest.SchemaVersion)
	if !ok {
		return nil, &ValidationError{Reason: fmt.Sprintf("schemaVersion %q is not a semantic version", manifest.SchemaVersion)}
	}
	if major != SupportedSchemaMajor {
		return nil, &ValidationError{Reason: fmt.Sprintf(
			"schemaVersion %s has major version %d, supported major version is %d",
			manifest.SchemaVersion, major, SupportedSchemaMajor)}
	}

	manifestDir := filepath.Dir(r.manifestPath)
	widgets := make([]*Widget, 0, len(manifest.Widgets))
	byID := make(map[string]*Widget, len(manifest.Widgets))
	byURI := make(map[string]*Widget, len(manifest.Widgets))

	for i, entry := range manifest.Widgets {
		if entry.ID == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("widget %d has an empty id", i)}
		}
		if entry.TemplateURI == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("widget %q has an empty templateUri", entry.ID)}
		}
		if entry.HTML == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("widget %q has empty html", entry.ID)}
		}
		if _, dup := byID[entry.ID]; dup {
			return nil, &ValidationError{Reason: fmt.Sprintf("duplicate widget id %q", entry.ID)}
		}
		if _, dup := byURI[entry.TemplateURI]; dup {
			return nil, &ValidationError{Reason: fmt.Sprintf("duplicate template URI %q", entry.TemplateURI)}
		}
		if err := validateAssets(entry, manifestDir); err != nil {
			return nil, err
		}

		w := &Widget{
			ID:           entry.ID,
			Title:        entry.Title,
			TemplateURI:  entry.TemplateURI,
			Invoking:     entry.Invoking,
			Invoked:      entry.Invoked,
			HTML:         entry.HTML,
			ResponseText: entry.ResponseText,
		}
		if entry.Assets != nil {
			w.Assets = AssetRefs{HTML: entry.Assets.HTML, CSS: entry.Assets.CSS, JS: entry.Assets.JS}
		}

		widgets = append(widgets, w)
		byID[w.ID] = w
		byURI[w.TemplateURI] = w
	}

	sort.Slice(widgets, func(i, j int) bool { return widgets[i].ID < widgets[j].ID })

	return &snapshot{
		widgets:       widgets,
		byID:          byID,
		byURI:         byURI,
		schemaVersion: manifest.SchemaVersion,
		generatedAt:   manifestTimestamp(manifest.GeneratedAt, info.ModTime()),
		loadedAt:      time.Now(),
		initialized:   true,
	}, nil
}

// validateAssets checks each asset reference of an entry: remote URLs pass,
// local paths must resolve to an existing regular file.
func validateAssets(entry ManifestEntry, manifestDir string) error {
	if entry.Assets == nil {
		return nil
	}
	refs := map[string]string{
		"html": entry.Assets.HTML,
		"css":  entry.Assets.CSS,
		"js":   entry.Assets.JS,
	}
	for kind, ref := range refs {
		if ref == "" || isRemoteRef(ref) {
			continue
		}
		path := ref
		if !filepath.IsAbs(path) {
			path = filepath.Join(manifestDir, path)
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return &ValidationError{Reason: fmt.Sprintf(
				"widget %q references missing %s asset %q", entry.ID, kind, ref)}
		}
	}
	return nil
}

// isRemoteRef reports whether an asset reference is a remote URL rather than
// a local path.
func isRemoteRef(ref string) bool {
	return strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "//")
}

// schemaMajor extracts the major component from a MAJOR.MINOR.PATCH string.
func schemaMajor(version string) (int, bool) {
	head, _, ok := strings.Cut(version, ".")
	if !ok {
		head = version
	}
	major, err := strconv.Atoi(head)
	if err != nil || head == "" {
		return 0, false
	}
	return major, true
}

// manifestTimestamp prefers the manifest-declared generatedAt over the file's
// modification time.
func manifestTimestamp(generatedAt string, modTime time.Time) time.Time {
	if generatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, generatedAt); err == nil {
			return ts
		}
	}
	return modTime
}

// snapshotRef returns the currently installed snapshot.
func (r *Registry) snapshotRef() *snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Widgets returns the widgets of the current snapshot in id order. The
// returned slice is a copy; the widgets themselves are shared and immutable.
func (r *Registry) Widgets() []*Widget {
	snap := r.snapshotRef()
	out := make([]*Widget, len(snap.widgets))
	copy(out, snap.widgets)
	return out
}

// WidgetByID looks up a widget by its id (tool name).
func (r *Registry) WidgetByID(id string) (*Widget, bool) {
	w, ok := r.snapshotRef().byID[id]
	return w, ok
}

// WidgetByURI looks up a widget by its template URI.
func (r *Registry) WidgetByURI(uri string) (*Widget, bool) {
	w, ok := r.snapshotRef().byURI[uri]
	return w, ok
}

// Metadata returns a diagnostic view of the current snapshot. Manifest
// existence is checked at call time.
func (r *Registry) Metadata() Metadata {
	snap := r.snapshotRef()

	_, statErr := os.Stat(r.manifestPath)
	return Metadata{
		Initialized:    snap.initialized,
		WidgetCount:    len(snap.widgets),
		SchemaVersion:  snap.schemaVersion,
		ManifestPath:   r.manifestPath,
		ManifestExists: statErr == nil,
		GeneratedAt:    snap.generatedAt,
		LastLoad:       snap.loadedAt,
	}
}
