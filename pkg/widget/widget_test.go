package widget

import "testing"

func TestWidgetMeta(t *testing.T) {
	w := &Widget{
		ID:          "pizza-map",
		TemplateURI: "ui://widget/pizza-map.html",
		Invoking:    "Hand-tossing a map",
		Invoked:     "Served a fresh map",
	}

	meta := w.Meta()

	if got := meta[MetaOutputTemplate]; got != "ui://widget/pizza-map.html" {
		t.Errorf("outputTemplate = %v, want template URI", got)
	}
	if got := meta[MetaInvoking]; got != "Hand-tossing a map" {
		t.Errorf("invoking = %v", got)
	}
	if got := meta[MetaInvoked]; got != "Served a fresh map" {
		t.Errorf("invoked = %v", got)
	}
	if got := meta[MetaWidgetAccessible]; got != true {
		t.Errorf("widgetAccessible = %v, want true", got)
	}
	if got := meta[MetaResultCanProduceWidget]; got != true {
		t.Errorf("resultCanProduceWidget = %v, want true", got)
	}

	required := []string{
		MetaOutputTemplate,
		MetaInvoking,
		MetaInvoked,
		MetaWidgetAccessible,
		MetaResultCanProduceWidget,
	}
	for _, key := range required {
		if _, ok := meta[key]; !ok {
			t.Errorf("missing required meta key %q", key)
		}
	}
}
