package cdp

import (
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/wp-filler/internal/browser"
)

type locateMode string

const (
	modeCount   locateMode = "count"
	modeExists  locateMode = "exists"
	modeVisible locateMode = "visible"
	// modeTag marks the first visible match (or the first match) with a
	// data attribute and returns a CSS selector for it.
	modeTag locateMode = "tag"
)

type locateSpec struct {
	Kind string     `json:"kind"`
	CSS  string     `json:"css,omitempty"`
	Text string     `json:"text,omitempty"`
	Expr string     `json:"expr,omitempty"`
	Mode locateMode `json:"mode"`
}

const refAttr = "data-wpf-ref"

// locateJS resolves a locateSpec in the page. Text matching picks the
// innermost elements so a label match does not also select every ancestor.
const locateJS = `(function(spec) {
	const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
	const visible = (el) => {
		if (!el || !el.isConnected) return false;
		const st = window.getComputedStyle(el);
		if (st.visibility === 'hidden' || st.display === 'none') return false;
		return !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
	};
	let found = [];
	if (spec.kind === 'css') {
		found = Array.from(document.querySelectorAll(spec.css));
	} else if (spec.kind === 'xpath') {
		const r = document.evaluate(spec.expr, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < r.snapshotLength; i++) found.push(r.snapshotItem(i));
	} else if (spec.kind === 'has-text') {
		const needle = spec.text.toLowerCase();
		found = Array.from(document.querySelectorAll(spec.css)).filter((el) => norm(el.textContent).toLowerCase().includes(needle));
	} else {
		const needle = spec.text.toLowerCase();
		const match = spec.kind === 'text-exact'
			? (el) => norm(el.textContent) === spec.text
			: (el) => norm(el.textContent).toLowerCase().includes(needle);
		const all = document.body ? Array.from(document.body.querySelectorAll('*')) : [];
		found = all.filter((el) => match(el) && !Array.from(el.children).some(match));
	}
	switch (spec.mode) {
	case 'count': return found.length;
	case 'exists': return found.length > 0;
	case 'visible': return found.some(visible);
	}
	const el = found.find(visible) || found[0];
	if (!el) return '';
	const ref = 'r' + Math.random().toString(36).slice(2, 10);
	el.setAttribute('` + refAttr + `', ref);
	return '[` + refAttr + `="' + ref + '"]';
})(%s)`

func kindName(k browser.LocatorKind) string {
	switch k {
	case browser.KindText:
		return "text"
	case browser.KindTextExact:
		return "text-exact"
	case browser.KindHasText:
		return "has-text"
	case browser.KindXPath:
		return "xpath"
	default:
		return "css"
	}
}

// locateScript renders the resolver call for selector in the given mode.
func locateScript(selector string, mode locateMode) (string, error) {
	loc := browser.ParseLocator(selector)
	spec := locateSpec{Kind: kindName(loc.Kind), CSS: loc.CSS, Text: loc.Text, Expr: loc.Expr, Mode: mode}
	arg, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to encode locator %q: %w", selector, err)
	}
	return fmt.Sprintf(locateJS, arg), nil
}

// callOnScript renders fn applied to the element matched by a CSS selector
// and a JSON argument. fn receives (el, arg); a missing element yields an
// error thrown in the page.
func callOnScript(css, fn string, arg any) (string, error) {
	encodedArg, err := json.Marshal(arg)
	if err != nil {
		return "", err
	}
	encodedSel, err := json.Marshal(css)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(function(sel, arg) {
	const el = document.querySelector(sel);
	if (!el) throw new Error('element not found: ' + sel);
	return (%s)(el, arg);
})(%s, %s)`, fn, encodedSel, encodedArg), nil
}

const fillFn = `function(el, value) {
	el.focus();
	el.value = value;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return el.value;
}`

const selectFn = `function(el, value) {
	const opt = Array.from(el.options || []).find((o) => o.value === value || o.text.trim() === value);
	if (!opt) throw new Error('option not found: ' + value);
	el.value = opt.value;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return el.value;
}`

const valueFn = `function(el) { return el.value === undefined ? (el.textContent || '') : String(el.value); }`

const checkedFn = `function(el) { return !!el.checked; }`
