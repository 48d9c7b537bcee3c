package filler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/wp-filler/internal/browser"
	"github.com/xkilldash9x/wp-filler/internal/mapping"
	"github.com/xkilldash9x/wp-filler/internal/payload"
	"go.uber.org/zap"
)

const pollInterval = 100 * time.Millisecond

// fillText waits for the input, replaces its value and reads it back. A
// read-back mismatch is only logged.
func (o *Orchestrator) fillText(ctx context.Context, page browser.Page, f mapping.Field, req payload.Request) (string, error) {
	value, key := req.First(f.Keys()...)
	sel, err := o.waitFirst(ctx, page, append([]string{f.Selector}, f.AlternativeSelectors...)...)
	if err != nil {
		return "", fmt.Errorf("input not found: %w", err)
	}
	if err := page.Fill(ctx, sel, value); err != nil {
		return "", fmt.Errorf("failed to fill %s: %w", sel, err)
	}
	if got, err := page.Value(ctx, sel); err != nil || got != value {
		o.logger.Warn("Filled value did not read back",
			zap.String("field", f.PayloadKey), zap.String("selector", sel), zap.Error(err))
	}
	return key, nil
}

// fillRadio clicks the option whose id carries the payload value.
func (o *Orchestrator) fillRadio(ctx context.Context, page browser.Page, f mapping.Field, req payload.Request) (string, error) {
	value, _ := req.First(f.Keys()...)
	sel := strings.ReplaceAll(f.Selector, mapping.ValuePlaceholder, value)

	stepCtx, cancel := context.WithTimeout(ctx, o.opts.SelectorTimeout)
	defer cancel()
	if err := page.ScrollIntoView(stepCtx, sel); err != nil {
		return "", fmt.Errorf("option %s not found: %w", sel, err)
	}
	if err := page.Click(stepCtx, sel); err != nil {
		return "", fmt.Errorf("failed to select %s: %w", sel, err)
	}
	if checked, err := page.Checked(stepCtx, sel); err != nil || !checked {
		o.logger.Warn("Option does not report checked after click",
			zap.String("field", f.PayloadKey), zap.String("selector", sel), zap.Error(err))
	}
	return sel, nil
}

func gridValues(f mapping.Field, req payload.Request) []string {
	var out []string
	for _, k := range f.Keys() {
		if v := req.Get(k); v != "" {
			out = append(out, v)
		}
	}
	return out
}

type gridSelect struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

const gridSelectsJS = `/* grid-selects */ (function(a) {
	return Array.from(document.querySelectorAll(a.rows)).flatMap((row) =>
		Array.from(row.querySelectorAll('select')).filter((s) => (s.name || '').includes(a.fragment))
	).map((s) => ({ id: s.id || '', name: s.name || '' }));
})(%s)`

// fillGrid makes sure the repeater has a row per value, adding only the
// missing rows, then assigns values to the row selects in order. Surplus
// rows are left alone.
func (o *Orchestrator) fillGrid(ctx context.Context, page browser.Page, f mapping.Field, req payload.Request) (string, error) {
	grid := o.mapping.Grid
	values := gridValues(f, req)

	existing, err := page.Count(ctx, grid.RowSelector)
	if err != nil {
		return "", fmt.Errorf("failed to count rows: %w", err)
	}
	needed := max(0, len(values)-existing)
	o.logger.Debug("Preparing services grid",
		zap.Int("desired", len(values)), zap.Int("existing", existing), zap.Int("adding", needed))

	addChain := browser.ClickChain(grid.AddRowSelectors[0], grid.AddRowSelectors[1:], "")
	rows := existing
	for i := 0; i < needed; i++ {
		if _, err := browser.ResolveAndAct(ctx, page, addChain, o.opts.SelectorTimeout, o.logger); err != nil {
			return "", fmt.Errorf("failed to add row %d: %w", rows+1, err)
		}
		n, err := o.waitRowCount(ctx, page, grid.RowSelector, rows+1)
		if err != nil {
			return "", fmt.Errorf("row %d did not render: %w", rows+1, err)
		}
		rows = n
	}

	arg, err := json.Marshal(map[string]string{"rows": grid.RowSelector, "fragment": grid.SelectNameFragment})
	if err != nil {
		return "", err
	}
	var selects []gridSelect
	if err := page.Evaluate(ctx, fmt.Sprintf(gridSelectsJS, arg), &selects); err != nil {
		return "", fmt.Errorf("failed to list row selects: %w", err)
	}

	n := min(len(values), len(selects))
	if n == 0 {
		return "", fmt.Errorf("no row selects matching %q", grid.SelectNameFragment)
	}
	var errs []error
	for i := 0; i < n; i++ {
		sel := browser.AttrEquals("select", "name", selects[i].Name)
		if selects[i].ID != "" {
			sel = browser.ByID(selects[i].ID)
		}
		if err := page.SelectOption(ctx, sel, values[i]); err != nil {
			o.logger.Warn("Could not select service", zap.Int("row", i+1), zap.String("value", values[i]), zap.Error(err))
			errs = append(errs, fmt.Errorf("row %d: %w", i+1, err))
			continue
		}
		o.logger.Debug("Selected service", zap.Int("row", i+1), zap.String("value", values[i]))
	}
	if len(errs) == n {
		return "", errors.Join(errs...)
	}
	detail := fmt.Sprintf("%d/%d rows selected, %d added", n-len(errs), len(values), needed)
	return detail, nil
}

// waitRowCount polls until at least want rows exist.
func (o *Orchestrator) waitRowCount(ctx context.Context, page browser.Page, rowSelector string, want int) (int, error) {
	waitCtx, cancel := context.WithTimeout(ctx, o.opts.SelectorTimeout)
	defer cancel()
	for {
		n, err := page.Count(waitCtx, rowSelector)
		if err == nil && n >= want {
			return n, nil
		}
		if err := sleepCtx(waitCtx, pollInterval); err != nil {
			return n, err
		}
	}
}

const linkTriggerAttr = "data-wpf-link-trigger"

// linkTriggerJS marks the first visible anchor whose trimmed text equals the
// label. The control has no stable id, so it is found by text.
const linkTriggerJS = `/* link-trigger */ (function(label) {
	document.querySelectorAll('[` + linkTriggerAttr + `]').forEach((el) => el.removeAttribute('` + linkTriggerAttr + `'));
	const a = Array.from(document.querySelectorAll('a')).find((el) => el.textContent.trim() === label && el.offsetParent !== null);
	if (!a) return false;
	a.setAttribute('` + linkTriggerAttr + `', '1');
	return true;
})(%s)`

// LinkTriggerSelector addresses the anchor marked by the trigger lookup.
var LinkTriggerSelector = browser.AttrEquals("a", linkTriggerAttr, "1")

// fillLink opens the link dialog, fills URL and text and submits it.
func (o *Orchestrator) fillLink(ctx context.Context, page browser.Page, f mapping.Field, req payload.Request) (string, error) {
	l := o.mapping.Link
	url, urlKey := req.First(f.Keys()...)
	text, textKey := req.First(l.TextKeys...)

	arg, err := json.Marshal(l.TriggerLabel)
	if err != nil {
		return "", err
	}
	var found bool
	if err := page.Evaluate(ctx, fmt.Sprintf(linkTriggerJS, arg), &found); err != nil {
		return "", fmt.Errorf("link not set: trigger lookup failed: %w", err)
	}
	if !found {
		return "", fmt.Errorf("link not set: no visible %q control", l.TriggerLabel)
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.opts.SelectorTimeout)
	defer cancel()
	if err := page.Click(stepCtx, LinkTriggerSelector); err != nil {
		return "", fmt.Errorf("link not set: %w", err)
	}
	if err := page.WaitVisible(stepCtx, l.URLSelector); err != nil {
		return "", fmt.Errorf("link not set: dialog did not open: %w", err)
	}
	if err := page.Fill(stepCtx, l.URLSelector, url); err != nil {
		return "", fmt.Errorf("link not set: url: %w", err)
	}
	if err := page.Fill(stepCtx, l.TextSelector, text); err != nil {
		return "", fmt.Errorf("link not set: text: %w", err)
	}
	if err := o.pacing.Pause(stepCtx); err != nil {
		return "", err
	}
	if err := page.Click(stepCtx, l.SubmitSelector); err != nil {
		return "", fmt.Errorf("link not set: submit: %w", err)
	}
	return urlKey + "+" + textKey, nil
}
