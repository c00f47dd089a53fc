package mcp

import "github.com/pizzaz/pizzazd/pkg/widget"

// ResourceProvider projects the widget registry as MCP resources: one
// resource and one resource template per widget, keyed by template URI.
type ResourceProvider struct {
	registry *widget.Registry
}

// NewResourceProvider creates a resource provider backed by the registry.
func NewResourceProvider(registry *widget.Registry) *ResourceProvider {
	return &ResourceProvider{registry: registry}
}

// List returns resource definitions for every widget in the current
// snapshot, in widget id order.
func (p *ResourceProvider) List() []ResourceDefinition {
	widgets := p.registry.Widgets()
	resources := make([]ResourceDefinition, 0, len(widgets))
	for _, w := range widgets {
		resources = append(resources, ResourceDefinition{
			URI:      w.TemplateURI,
			Name:     w.Title,
			MimeType: widget.MimeType,
		})
	}
	return resources
}

// Templates returns resource templates for every widget in the current
// snapshot. Widget URIs carry no parameters, so each template mirrors its
// resource.
func (p *ResourceProvider) Templates() []ResourceTemplate {
	widgets := p.registry.Widgets()
	templates := make([]ResourceTemplate, 0, len(widgets))
	for _, w := range widgets {
		templates = append(templates, ResourceTemplate{
			URITemplate: w.TemplateURI,
			Name:        w.Title,
			MimeType:    widget.MimeType,
		})
	}
	return templates
}

// Read returns the HTML body of the widget with the given template URI.
func (p *ResourceProvider) Read(uri string) ([]ResourceContent, *JSONRPCError) {
	w, ok := p.registry.WidgetByURI(uri)
	if !ok {
		return nil, ResourceNotFoundError(uri)
	}

	return []ResourceContent{
		{
			URI:      w.TemplateURI,
			MimeType: widget.MimeType,
			Text:     w.HTML,
		},
	}, nil
}
