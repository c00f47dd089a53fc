package widget

// MimeType is the content type advertised for widget resources: HTML markup
// with a companion script the host injects alongside it.
const MimeType = "text/html+skybridge"

// Metadata keys projected into MCP _meta payloads.
const (
	MetaOutputTemplate         = "openai/outputTemplate"
	MetaInvoking               = "openai/toolInvocation/invoking"
	MetaInvoked                = "openai/toolInvocation/invoked"
	MetaWidgetAccessible       = "openai/widgetAccessible"
	MetaResultCanProduceWidget = "openai/resultCanProduceWidget"
)

// Widget is a single named UI fragment. Widgets are constructed only from a
// manifest entry and are immutable after construction; they are owned by the
// registry snapshot that created them.
type Widget struct {
	// ID is the stable identifier. It doubles as the MCP tool name and is
	// unique within a registry snapshot.
	ID string

	// Title is the human-readable display name.
	Title string

	// TemplateURI is the stable resource URI (ui://widget/<name>.<ext>),
	// unique within a registry snapshot.
	TemplateURI string

	// Invoking is the status message shown while the tool call runs.
	Invoking string

	// Invoked is the status message shown after the tool call completes.
	Invoked string

	// HTML is the markup body served for the widget resource.
	HTML string

	// ResponseText is the text returned from a tool call.
	ResponseText string

	// Assets references the widget's html/css/js files, if any.
	Assets AssetRefs
}

// AssetRefs holds optional html/css/js references for a widget. Each is
// either a remote URL or a path relative to the manifest file.
type AssetRefs struct {
	HTML string
	CSS  string
	JS   string
}

// Meta projects the widget's MCP metadata: the output template URI, the two
// invocation status strings, and the fixed capability flags.
func (w *Widget) Meta() map[string]any {
	return map[string]any{
		MetaOutputTemplate:         w.TemplateURI,
		MetaInvoking:               w.Invoking,
		MetaInvoked:                w.Invoked,
		MetaWidgetAccessible:       true,
		MetaResultCanProduceWidget: true,
	}
}
