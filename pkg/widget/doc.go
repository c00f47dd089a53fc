// Package widget implements the widget catalog for pizzazd.
//
// Widgets are pizza-themed UI fragments defined by a versioned JSON manifest
// on disk. The package has two halves:
//
//   - Manifest reading: ReadManifest deserializes and shape-checks the JSON
//     document (required fields, types) against an embedded JSON Schema.
//     It does not enforce business rules.
//
//   - The Registry: an injected container holding an immutable snapshot of
//     validated widgets with O(1) lookup by id and by template URI. Reload
//     builds a complete new snapshot off to the side and swaps it in
//     atomically; a failed reload leaves the installed snapshot untouched.
//
// # Manifest format
//
//	{
//	  "schemaVersion": "1.0.0",
//	  "generatedAt": "2026-01-15T10:00:00Z",
//	  "widgets": [
//	    {
//	      "id": "pizza-map",
//	      "title": "Show Pizza Map",
//	      "templateUri": "ui://widget/pizza-map.html",
//	      "invoking": "Hand-tossing a map",
//	      "invoked": "Served a fresh map",
//	      "html": "<div id=\"pizzaz-root\"></div>",
//	      "responseText": "Rendered a pizza map!",
//	      "assets": {"css": "https://cdn.example.com/pizzaz.css"}
//	    }
//	  ]
//	}
//
// Asset references are either remote URLs (http://, https://, or
// protocol-relative //) or paths resolved against the manifest's directory;
// local paths must exist as regular files when the manifest is loaded.
package widget
