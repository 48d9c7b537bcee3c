package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLocator(t *testing.T) {
	tests := []struct {
		in   string
		want Locator
	}{
		{"#title", Locator{Kind: KindCSS, CSS: "#title", Raw: "#title"}},
		{"text=Landing Pages", Locator{Kind: KindText, Text: "Landing Pages", Raw: "text=Landing Pages"}},
		{`text="Hero Area"`, Locator{Kind: KindTextExact, Text: "Hero Area", Raw: `text="Hero Area"`}},
		{`text='Hero Area'`, Locator{Kind: KindTextExact, Text: "Hero Area", Raw: `text='Hero Area'`}},
		{`a:has-text("Bottom CTA")`, Locator{Kind: KindHasText, CSS: "a", Text: "Bottom CTA", Raw: `a:has-text("Bottom CTA")`}},
		{`a.acf-tab-button:has-text('Intro Content')`, Locator{Kind: KindHasText, CSS: "a.acf-tab-button", Text: "Intro Content", Raw: `a.acf-tab-button:has-text('Intro Content')`}},
		{`:has-text("Preview post")`, Locator{Kind: KindHasText, CSS: "*", Text: "Preview post", Raw: `:has-text("Preview post")`}},
		{"//a[@id='x']", Locator{Kind: KindXPath, Expr: "//a[@id='x']", Raw: "//a[@id='x']"}},
		{"xpath=//div", Locator{Kind: KindXPath, Expr: "//div", Raw: "xpath=//div"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLocator(tt.in))
		})
	}
}

func TestSelectorBuilders(t *testing.T) {
	assert.Equal(t, `text="Hero Area"`, TextExact("Hero Area"))
	assert.Equal(t, "text=New Landing Page", Text("New Landing Page"))
	assert.Equal(t, "#acf-field_62f544c0d43e6", ByID("acf-field_62f544c0d43e6"))
	assert.Equal(t, `#\31 23`, ByID("123"))
	assert.Equal(t, `#a\[0\]`, ByID("a[0]"))
	assert.Equal(t, `select[name="acf[field_1][row-0][field_2]"]`, AttrEquals("select", "name", "acf[field_1][row-0][field_2]"))
	assert.Equal(t, `a[title="say \"hi\""]`, AttrEquals("a", "title", `say "hi"`))
}
