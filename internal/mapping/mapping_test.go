package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMapping(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)

	var keys []string
	for _, p := range m.Panels {
		keys = append(keys, p.Key)
	}
	if diff := cmp.Diff(PanelOrder, keys); diff != "" {
		t.Errorf("default panels out of order (-want +got):\n%s", diff)
	}

	title, ok := m.FindField("header_headline")
	require.True(t, ok)
	assert.Equal(t, "#title", title.Selector)
	assert.Equal(t, TypeText, title.Type)
	assert.Empty(t, title.Panel)

	design, ok := m.FindField("page_design")
	require.True(t, ok)
	assert.Equal(t, TypeRadio, design.Type)

	intro, ok := m.FindField("intro_html")
	require.True(t, ok)
	assert.Equal(t, "acf-editor-197", intro.EditorID)

	below, ok := m.FindField("below_content")
	require.True(t, ok)
	assert.Equal(t, []string{"below_content", "below_text"}, below.Keys())

	grid, ok := m.FindField("svc1_name")
	require.True(t, ok)
	assert.Equal(t, []string{"svc1_name", "svc2_name", "svc3_name", "svc4_name"}, grid.Keys())
	assert.Equal(t, "field_62f544c0d43e6", m.Grid.SelectNameFragment)

	list, ok := m.Target(NavListTarget)
	require.True(t, ok)
	assert.Equal(t, "Landing Pages", list.Text)
	create, ok := m.Target(NavCreateTarget)
	require.True(t, ok)
	assert.Equal(t, "New Landing Page", create.Text)

	assert.Equal(t, []string{"bottom_cta_text", "bottom_cta_link_text"}, m.Link.TextKeys)
}

func TestFieldsForPanel(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)

	var got []string
	for _, f := range m.FieldsForPanel("panel_top_cta") {
		got = append(got, f.PayloadKey)
	}
	assert.Equal(t, []string{"cta_headline", "cta_text"}, got)

	var loose []string
	for _, f := range m.FieldsForPanel("") {
		loose = append(loose, f.PayloadKey)
	}
	assert.Equal(t, []string{"header_headline", "page_design"}, loose)

	assert.Empty(t, m.FieldsForPanel("panel_unknown"))

	_, ok := m.FindPanel("panel_unknown")
	assert.False(t, ok)
	_, ok = m.FindField("nc_order")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	base := func() *Mapping {
		return &Mapping{
			Panels: []Panel{{Key: "panel_hero_area", Selector: "#hero"}},
			Fields: []Field{
				{PayloadKey: "header_headline", Selector: "#title", Type: TypeText},
				{PayloadKey: "hero_text_left", Panel: "panel_hero_area", Selector: "#left", Type: TypeText},
			},
		}
	}
	require.NoError(t, base().Validate())

	tests := []struct {
		name    string
		mutate  func(m *Mapping)
		wantMsg string
	}{
		{"undeclared panel", func(m *Mapping) { m.Fields[1].Panel = "panel_missing" }, "undeclared panel"},
		{"duplicate payload key", func(m *Mapping) { m.Fields[1].PayloadKey = "header_headline" }, "bound more than once"},
		{"alias collides", func(m *Mapping) { m.Fields[1].Aliases = []string{"header_headline"} }, "bound more than once"},
		{"unknown type", func(m *Mapping) { m.Fields[0].Type = "checkbox" }, "unknown type"},
		{"duplicate panel", func(m *Mapping) { m.Panels = append(m.Panels, m.Panels[0]) }, "duplicate panel"},
		{"rich text without editor", func(m *Mapping) { m.Fields[1].Type = TypeRichText }, "editorId"},
		{"radio without placeholder", func(m *Mapping) { m.Fields[1].Type = TypeRadio }, ValuePlaceholder},
		{"grid without section", func(m *Mapping) {
			m.Fields[1].Type = TypeGridSelect
			m.Fields[1].Inputs = []string{"hero_text_left"}
		}, "grid"},
		{"link without section", func(m *Mapping) { m.Fields[1].Type = TypeLink }, "link section"},
		{"panels out of order", func(m *Mapping) {
			m.Panels = []Panel{{Key: "panel_bottom_cta", Label: "Bottom CTA"}, {Key: "panel_hero_area", Label: "Hero Area"}}
		}, "out of order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.mutate(m)
			err := m.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml by extension", func(t *testing.T) {
		path := filepath.Join(dir, "mapping.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
panels:
  - key: panel_top_cta
    label: Call to Action
    selector: "#cta-tab"
fields:
  - payloadKey: header_headline
    selector: "#title"
    type: text
  - payloadKey: cta_headline
    panel: panel_top_cta
    selector: "#cta"
    type: text
`), 0o600))

		m, err := Load(path)
		require.NoError(t, err)
		p, ok := m.FindPanel("panel_top_cta")
		require.True(t, ok)
		assert.Equal(t, "Call to Action", p.Label)
		assert.Len(t, m.FieldsForPanel("panel_top_cta"), 1)
	})

	t.Run("json by extension", func(t *testing.T) {
		path := filepath.Join(dir, "mapping.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"fields":[{"payloadKey":"header_headline","selector":"#title","type":"text"}]}`), 0o600))
		m, err := Load(path)
		require.NoError(t, err)
		assert.Len(t, m.Fields, 1)
	})

	t.Run("empty path is the default", func(t *testing.T) {
		m, err := Load("")
		require.NoError(t, err)
		assert.Len(t, m.Panels, len(PanelOrder))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.json"))
		require.Error(t, err)
	})

	t.Run("invalid content", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"fields":[{"payloadKey":"x","panel":"ghost","selector":"#x","type":"text"}]}`), 0o600))
		_, err := Load(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func TestPayloadKeys(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)
	keys := m.PayloadKeys()
	assert.Equal(t, "header_headline", keys[0])
	assert.Contains(t, keys, "below_text")
	for _, k := range m.Link.TextKeys {
		assert.Contains(t, keys, k)
	}
}
