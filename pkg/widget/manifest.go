package widget

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// manifestSchema is the JSON Schema the raw manifest document must satisfy.
// It covers shape only (required fields, types); business rules such as
// uniqueness and schema-version compatibility belong to the registry.
const manifestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schemaVersion"],
  "properties": {
    "schemaVersion": {"type": "string", "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+$"},
    "generatedAt": {"type": "string"},
    "widgets": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "title", "templateUri", "invoking", "invoked", "html", "responseText"],
        "properties": {
          "id": {"type": "string"},
          "title": {"type": "string"},
          "templateUri": {"type": "string"},
          "invoking": {"type": "string"},
          "invoked": {"type": "string"},
          "html": {"type": "string"},
          "responseText": {"type": "string"},
          "assets": {
            "type": "object",
            "properties": {
              "html": {"type": "string"},
              "css": {"type": "string"},
              "js": {"type": "string"}
            },
            "additionalProperties": false
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// compileManifestSchema compiles the embedded schema once per process.
func compileManifestSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("manifest.schema.json", strings.NewReader(manifestSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("manifest.schema.json")
	})
	return compiledSchema, schemaErr
}

// Manifest is the top-level widget manifest document.
type Manifest struct {
	SchemaVersion string          `json:"schemaVersion"`
	GeneratedAt   string          `json:"generatedAt,omitempty"`
	Widgets       []ManifestEntry `json:"widgets"`
}

// ManifestEntry is a single widget definition within the manifest.
type ManifestEntry struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	TemplateURI  string          `json:"templateUri"`
	Invoking     string          `json:"invoking"`
	Invoked      string          `json:"invoked"`
	HTML         string          `json:"html"`
	ResponseText string          `json:"responseText"`
	Assets       *ManifestAssets `json:"assets,omitempty"`
}

// ManifestAssets holds the optional asset references of a manifest entry.
type ManifestAssets struct {
	HTML string `json:"html,omitempty"`
	CSS  string `json:"css,omitempty"`
	JS   string `json:"js,omitempty"`
}

// ReadManifest reads and deserializes a widget manifest from disk. The
// document is validated against the embedded JSON Schema before decoding, so
// a successful return guarantees required fields are present with the right
// types. Uniqueness and version compatibility are not checked here.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read widget manifest %s: %w", path, err)
	}

	schema, err := compileManifestSchema()
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("manifest %s is not valid JSON: %v", path, err)}
	}
	if err := schema.Validate(raw); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("manifest %s does not match schema: %v", path, err)}
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("decode manifest %s: %v", path, err)}
	}
	return &manifest, nil
}
