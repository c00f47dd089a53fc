package mcp

import (
	"fmt"

	"github.com/pizzaz/pizzazd/pkg/widget"
)

// ToolInputField is the single required argument every widget tool takes.
const ToolInputField = "pizzaTopping"

// ToolProvider projects the widget registry as MCP tools: one tool per
// widget, named by the widget id.
type ToolProvider struct {
	registry *widget.Registry
}

// NewToolProvider creates a tool provider backed by the registry.
func NewToolProvider(registry *widget.Registry) *ToolProvider {
	return &ToolProvider{registry: registry}
}

// List returns tool definitions for every widget in the current snapshot,
// in widget id order.
func (p *ToolProvider) List() []ToolDefinition {
	widgets := p.registry.Widgets()
	defs := make([]ToolDefinition, 0, len(widgets))
	for _, w := range widgets {
		defs = append(defs, ToolDefinition{
			Name:        w.ID,
			Description: w.Title,
			InputSchema: toolInputSchema(),
		})
	}
	return defs
}

// toolInputSchema is the argument schema shared by all widget tools: one
// required string.
func toolInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			ToolInputField: map[string]interface{}{
				"type":        "string",
				"description": "Topping to feature in the widget.",
			},
		},
		"required": []string{ToolInputField},
	}
}

// Call invokes a widget tool. Unknown tools and invalid arguments are
// reported in the result rather than as JSON-RPC errors, so the client sees
// a descriptive message.
func (p *ToolProvider) Call(name string, args map[string]interface{}) *ToolResult {
	w, ok := p.registry.WidgetByID(name)
	if !ok {
		return ToolResultError("unknown tool: " + name)
	}

	topping, ok := args[ToolInputField].(string)
	if !ok || topping == "" {
		return ToolResultError(fmt.Sprintf("tool %q requires a non-empty string argument %q", name, ToolInputField))
	}

	result := ToolResultText(w.ResponseText)
	result.Meta = w.Meta()
	return result
}
