package browser

import (
	"regexp"
	"strings"
)

// LocatorKind classifies a selector string.
type LocatorKind int

const (
	// KindCSS is a plain CSS selector.
	KindCSS LocatorKind = iota
	// KindText matches the smallest element whose text contains Text.
	KindText
	// KindTextExact matches the smallest element whose trimmed text equals Text.
	KindTextExact
	// KindHasText matches elements selected by CSS whose text contains Text.
	KindHasText
	// KindXPath is an XPath expression.
	KindXPath
)

// Locator is a parsed selector.
type Locator struct {
	Kind LocatorKind
	CSS  string
	Text string
	Expr string
	Raw  string
}

var hasTextRe = regexp.MustCompile(`^(.*):has-text\((?:"([^"]*)"|'([^']*)')\)\s*$`)

// ParseLocator understands the selector forms used in mappings:
//
//	text=Landing Pages       substring text match
//	text="Hero Area"         exact text match
//	a:has-text("Bottom CTA") CSS filtered by contained text
//	//a[@id='x'], xpath=...  XPath
//	anything else            CSS
func ParseLocator(s string) Locator {
	raw := s
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "text="):
		text := strings.TrimPrefix(s, "text=")
		if unq, ok := unquote(text); ok {
			return Locator{Kind: KindTextExact, Text: unq, Raw: raw}
		}
		return Locator{Kind: KindText, Text: text, Raw: raw}
	case strings.HasPrefix(s, "xpath="):
		return Locator{Kind: KindXPath, Expr: strings.TrimPrefix(s, "xpath="), Raw: raw}
	case strings.HasPrefix(s, "//") || strings.HasPrefix(s, "(//"):
		return Locator{Kind: KindXPath, Expr: s, Raw: raw}
	}
	if m := hasTextRe.FindStringSubmatch(s); m != nil {
		css := strings.TrimSpace(m[1])
		if css == "" {
			css = "*"
		}
		text := m[2]
		if text == "" {
			text = m[3]
		}
		return Locator{Kind: KindHasText, CSS: css, Text: text, Raw: raw}
	}
	return Locator{Kind: KindCSS, CSS: s, Raw: raw}
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1], true
		}
	}
	return "", false
}

// TextExact builds an exact text locator.
func TextExact(text string) string {
	return `text="` + text + `"`
}

// Text builds a substring text locator.
func Text(text string) string {
	return "text=" + text
}

// ByID builds a CSS id selector, escaping characters that are not valid in
// an unescaped identifier.
func ByID(id string) string {
	var b strings.Builder
	b.WriteByte('#')
	for i, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-', r >= 0x80:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteString(`\3` + string(r) + " ")
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AttrEquals builds a CSS attribute selector with a quoted value.
func AttrEquals(tag, attr, value string) string {
	v := strings.ReplaceAll(value, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return tag + "[" + attr + `="` + v + `"]`
}
