package augment

import (
	"github.com/pizzaz/pizzazd/pkg/widget"
)

// Lookup resolves widgets the way the registry does: by id (tool name) and
// by template URI.
type Lookup interface {
	WidgetByID(id string) (*widget.Widget, bool)
	WidgetByURI(uri string) (*widget.Widget, bool)
}

// Result injects widget _meta into a decoded JSON-RPC response document,
// mutating it in place. Within the result object it walks the tools,
// resources, and resourceTemplates arrays; every element that names a known
// widget and does not already carry _meta gets the widget's metadata.
// Caller-supplied _meta is never overwritten, and elements that do not
// resolve to a widget are left alone. Reports whether anything changed.
func Result(payload map[string]any, reg Lookup) bool {
	result, ok := payload["result"].(map[string]any)
	if !ok {
		return false
	}

	byURI := func(uri string) (*widget.Widget, bool) { return reg.WidgetByURI(uri) }

	changed := augmentList(result, "tools", "name", reg.WidgetByID)
	changed = augmentList(result, "resources", "uri", byURI) || changed
	changed = augmentList(result, "resourceTemplates", "uriTemplate", byURI) || changed
	return changed
}

// augmentList attaches _meta to each element of result[field] whose keyField
// value resolves through lookup. Non-object elements and unresolvable keys
// are skipped.
func augmentList(result map[string]any, field, keyField string, lookup func(string) (*widget.Widget, bool)) bool {
	items, ok := result[field].([]any)
	if !ok {
		return false
	}

	changed := false
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		key, ok := obj[keyField].(string)
		if !ok {
			continue
		}
		w, ok := lookup(key)
		if !ok {
			continue
		}
		if _, present := obj["_meta"]; present {
			continue
		}
		obj["_meta"] = w.Meta()
		changed = true
	}
	return changed
}
