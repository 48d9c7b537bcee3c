// Package mapping holds the selector mapping that ties payload keys to editor
// controls. A Mapping is loaded once at startup, validated, and then shared
// read-only by every component that drives the editor.
package mapping

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

//go:embed default_mapping.json
var defaultMapping []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid selector mapping")

// Navigation target names used by the navigator.
const (
	NavListTarget   = "landing_page_main_sidebar"
	NavCreateTarget = "new_landing_page_button"
)

// ValuePlaceholder is replaced by the payload value in radio selectors.
const ValuePlaceholder = "{value}"

// FieldType selects the strategy used to fill a field.
type FieldType string

const (
	TypeText       FieldType = "text"
	TypeRichText   FieldType = "rich-text"
	TypeRadio      FieldType = "radio"
	TypeGridSelect FieldType = "grid-select"
	TypeLink       FieldType = "link"
)

// Valid reports whether t names a known strategy.
func (t FieldType) Valid() bool {
	switch t {
	case TypeText, TypeRichText, TypeRadio, TypeGridSelect, TypeLink:
		return true
	}
	return false
}

// NavTarget is a clickable admin element with its fallbacks.
type NavTarget struct {
	Selector             string   `json:"selector" yaml:"selector"`
	AlternativeSelectors []string `json:"alternativeSelectors" yaml:"alternativeSelectors"`
	// Text is the visible label used as a last text-match fallback.
	Text string `json:"text" yaml:"text"`
}

// Panel is one tab of the ACF field group.
type Panel struct {
	Key                  string   `json:"key" yaml:"key"`
	Label                string   `json:"label" yaml:"label"`
	Selector             string   `json:"selector" yaml:"selector"`
	AlternativeSelectors []string `json:"alternativeSelectors" yaml:"alternativeSelectors"`
}

// Field binds a payload key to an editor control.
type Field struct {
	PayloadKey string    `json:"payloadKey" yaml:"payloadKey"`
	Panel      string    `json:"panel,omitempty" yaml:"panel,omitempty"`
	Selector   string    `json:"selector" yaml:"selector"`
	Type       FieldType `json:"type" yaml:"type"`

	AlternativeSelectors []string `json:"alternativeSelectors,omitempty" yaml:"alternativeSelectors,omitempty"`
	// Aliases are consulted in order when PayloadKey carries no value.
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	// Inputs lists the payload keys feeding a grid-select field, in row order.
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	EditorID   string `json:"editorId,omitempty" yaml:"editorId,omitempty"`
	TextButton string `json:"textButton,omitempty" yaml:"textButton,omitempty"`
}

// Keys returns every payload key the field reads, primary key first.
func (f Field) Keys() []string {
	if len(f.Inputs) > 0 {
		return append([]string(nil), f.Inputs...)
	}
	return append([]string{f.PayloadKey}, f.Aliases...)
}

// Grid describes the ACF repeater backing the services grid.
type Grid struct {
	RowSelector        string   `json:"rowSelector" yaml:"rowSelector"`
	AddRowSelectors    []string `json:"addRowSelectors" yaml:"addRowSelectors"`
	SelectNameFragment string   `json:"selectNameFragment" yaml:"selectNameFragment"`
}

// Link describes the WordPress link dialog.
type Link struct {
	TriggerLabel   string   `json:"triggerLabel" yaml:"triggerLabel"`
	URLSelector    string   `json:"urlSelector" yaml:"urlSelector"`
	TextSelector   string   `json:"textSelector" yaml:"textSelector"`
	SubmitSelector string   `json:"submitSelector" yaml:"submitSelector"`
	TextKeys       []string `json:"textKeys" yaml:"textKeys"`
}

// Mapping is the full selector mapping. Treat it as read-only once loaded.
type Mapping struct {
	Navigation map[string]NavTarget `json:"navigation" yaml:"navigation"`
	Panels     []Panel              `json:"panels" yaml:"panels"`
	Fields     []Field              `json:"fields" yaml:"fields"`
	Grid       Grid                 `json:"grid" yaml:"grid"`
	Link       Link                 `json:"link" yaml:"link"`
}

// PanelOrder is the order in which the editor tabs are always visited.
var PanelOrder = []string{
	"panel_hero_area",
	"panel_intro_content",
	"panel_top_cta",
	"panel_below_form",
	"panel_services_grid",
	"panel_bottom_cta",
}

// Default returns the built-in mapping.
func Default() (*Mapping, error) {
	return Parse(defaultMapping, "json")
}

// Load reads and validates a mapping file. The format follows the file
// extension: .yaml and .yml are YAML, anything else is JSON. An empty path
// selects the built-in mapping.
func Load(path string) (*Mapping, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping %s: %w", path, err)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	m, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a mapping in the given format ("json" or "yaml").
func Parse(data []byte, format string) (*Mapping, error) {
	var m Mapping
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to decode yaml mapping: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to decode json mapping: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported mapping format %q", format)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate enforces the structural invariants of the mapping.
func (m *Mapping) Validate() error {
	panels := make(map[string]bool, len(m.Panels))
	for i, p := range m.Panels {
		if p.Key == "" {
			return fmt.Errorf("%w: panel #%d has no key", ErrInvalid, i)
		}
		if panels[p.Key] {
			return fmt.Errorf("%w: duplicate panel key %q", ErrInvalid, p.Key)
		}
		if p.Selector == "" && len(p.AlternativeSelectors) == 0 && p.Label == "" {
			return fmt.Errorf("%w: panel %q has no selector, alternative or label", ErrInvalid, p.Key)
		}
		panels[p.Key] = true
	}
	if err := m.checkPanelOrder(); err != nil {
		return err
	}

	keys := make(map[string]bool, len(m.Fields))
	claim := func(key string) error {
		if keys[key] {
			return fmt.Errorf("%w: payload key %q is bound more than once", ErrInvalid, key)
		}
		keys[key] = true
		return nil
	}
	for i, f := range m.Fields {
		if f.PayloadKey == "" {
			return fmt.Errorf("%w: field #%d has no payloadKey", ErrInvalid, i)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("%w: field %q has unknown type %q", ErrInvalid, f.PayloadKey, f.Type)
		}
		if f.Panel != "" && !panels[f.Panel] {
			return fmt.Errorf("%w: field %q references undeclared panel %q", ErrInvalid, f.PayloadKey, f.Panel)
		}
		if f.Selector == "" && f.Type != TypeLink {
			return fmt.Errorf("%w: field %q has no selector", ErrInvalid, f.PayloadKey)
		}
		for _, k := range f.Keys() {
			if err := claim(k); err != nil {
				return err
			}
		}
		switch f.Type {
		case TypeRichText:
			if f.EditorID == "" {
				return fmt.Errorf("%w: rich-text field %q needs an editorId", ErrInvalid, f.PayloadKey)
			}
		case TypeRadio:
			if !strings.Contains(f.Selector, ValuePlaceholder) {
				return fmt.Errorf("%w: radio field %q selector must contain %s", ErrInvalid, f.PayloadKey, ValuePlaceholder)
			}
		case TypeGridSelect:
			if len(f.Inputs) == 0 || f.Inputs[0] != f.PayloadKey {
				return fmt.Errorf("%w: grid field %q must list its inputs starting with its payloadKey", ErrInvalid, f.PayloadKey)
			}
			if m.Grid.RowSelector == "" || len(m.Grid.AddRowSelectors) == 0 || m.Grid.SelectNameFragment == "" {
				return fmt.Errorf("%w: grid field %q needs grid rowSelector, addRowSelectors and selectNameFragment", ErrInvalid, f.PayloadKey)
			}
		case TypeLink:
			l := m.Link
			if l.TriggerLabel == "" || l.URLSelector == "" || l.TextSelector == "" || l.SubmitSelector == "" || len(l.TextKeys) == 0 {
				return fmt.Errorf("%w: link field %q needs a complete link section", ErrInvalid, f.PayloadKey)
			}
			for _, k := range l.TextKeys {
				if err := claim(k); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// checkPanelOrder rejects mappings that declare the known panels out of order.
func (m *Mapping) checkPanelOrder() error {
	rank := make(map[string]int, len(PanelOrder))
	for i, k := range PanelOrder {
		rank[k] = i
	}
	last := -1
	for _, p := range m.Panels {
		r, known := rank[p.Key]
		if !known {
			continue
		}
		if r < last {
			return fmt.Errorf("%w: panel %q is declared out of order", ErrInvalid, p.Key)
		}
		last = r
	}
	return nil
}

// FindPanel looks up a panel by key.
func (m *Mapping) FindPanel(key string) (Panel, bool) {
	for _, p := range m.Panels {
		if p.Key == key {
			return p, true
		}
	}
	return Panel{}, false
}

// FindField looks up a field by its primary payload key.
func (m *Mapping) FindField(payloadKey string) (Field, bool) {
	for _, f := range m.Fields {
		if f.PayloadKey == payloadKey {
			return f, true
		}
	}
	return Field{}, false
}

// FieldsForPanel returns the fields of a panel in declaration order. The empty
// key returns the fields that sit outside any panel.
func (m *Mapping) FieldsForPanel(panelKey string) []Field {
	var out []Field
	for _, f := range m.Fields {
		if f.Panel == panelKey {
			out = append(out, f)
		}
	}
	return out
}

// Target returns the navigation target for name, if declared.
func (m *Mapping) Target(name string) (NavTarget, bool) {
	t, ok := m.Navigation[name]
	return t, ok
}

// PayloadKeys returns every payload key the mapping reads, in field order.
func (m *Mapping) PayloadKeys() []string {
	var out []string
	for _, f := range m.Fields {
		out = append(out, f.Keys()...)
		if f.Type == TypeLink {
			out = append(out, m.Link.TextKeys...)
		}
	}
	return out
}
