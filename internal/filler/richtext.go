package filler

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/wp-filler/internal/browser"
	"github.com/xkilldash9x/wp-filler/internal/mapping"
	"github.com/xkilldash9x/wp-filler/internal/payload"
	"go.uber.org/zap"
)

// InitPlaceholder is the text ACF shows on a delayed-init editor.
const InitPlaceholder = "Click to initialize TinyMCE"

// editorCaps is what the page reports about one TinyMCE instance.
type editorCaps struct {
	// NeedsInit is set while the editor still shows its placeholder.
	NeedsInit   bool `json:"needsInit"`
	HasAPI      bool `json:"hasAPI"`
	Initialized bool `json:"initialized"`
	HasSurface  bool `json:"hasSurface"`
	HasPlain    bool `json:"hasPlain"`
	// Probed is false when the capability script could not run.
	Probed bool `json:"probed"`
}

// richTextVariant is one way of putting HTML into an editor.
type richTextVariant int

const (
	// variantAPI goes through tinymce.get(id).setContent and save.
	variantAPI richTextVariant = iota
	// variantSurface writes the iframe body directly and mirrors the textarea.
	variantSurface
	// variantPlain switches to the Text tab and fills the textarea.
	variantPlain
)

func (v richTextVariant) String() string {
	switch v {
	case variantAPI:
		return "api"
	case variantSurface:
		return "surface"
	case variantPlain:
		return "plain"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// planRichText orders the variants the editor can support. Without a probe
// result every variant is tried.
func planRichText(c editorCaps) []richTextVariant {
	if !c.Probed {
		return []richTextVariant{variantAPI, variantSurface, variantPlain}
	}
	var plan []richTextVariant
	if c.HasAPI && c.Initialized {
		plan = append(plan, variantAPI)
	}
	if c.HasSurface {
		plan = append(plan, variantSurface)
	}
	if c.HasPlain {
		plan = append(plan, variantPlain)
	}
	return plan
}

const probeEditorJS = `/* probe-editor */ (function(id) {
	const ed = window.tinymce ? window.tinymce.get(id) : null;
	const ta = document.getElementById(id);
	const wrap = document.getElementById('wp-' + id + '-wrap') || (ta ? ta.closest('.acf-editor-wrap') : null);
	const delayed = !!(wrap && wrap.classList.contains('delay'));
	return {
		probed: true,
		needsInit: !ed && delayed,
		hasAPI: !!ed,
		initialized: !!(ed && ed.initialized),
		hasSurface: !!document.getElementById(id + '_ifr'),
		hasPlain: !!ta,
	};
})(%s)`

const editorAPIJS = `/* editor-api */ (function(a) {
	const ed = window.tinymce ? window.tinymce.get(a.id) : null;
	if (!ed || !ed.initialized) return false;
	ed.setContent(a.html);
	ed.save();
	ed.fire('change');
	return true;
})(%s)`

const editorSurfaceJS = `/* editor-surface */ (function(a) {
	const frame = document.getElementById(a.id + '_ifr');
	const body = frame && frame.contentDocument ? frame.contentDocument.body : null;
	if (!body) return false;
	body.innerHTML = a.html;
	body.dispatchEvent(new Event('input', { bubbles: true }));
	const ta = document.getElementById(a.id);
	if (ta) {
		ta.value = a.html;
		ta.dispatchEvent(new Event('change', { bubbles: true }));
	}
	return true;
})(%s)`

func editorScript(tmpl string, arg any) string {
	data, _ := json.Marshal(arg)
	return fmt.Sprintf(tmpl, data)
}

func (o *Orchestrator) probeEditor(ctx context.Context, page browser.Page, id string) editorCaps {
	var caps editorCaps
	if err := page.Evaluate(ctx, editorScript(probeEditorJS, id), &caps); err != nil {
		o.logger.Debug("Editor probe failed", zap.String("editor", id), zap.Error(err))
		return editorCaps{}
	}
	return caps
}

// fillRichText initializes the editor if needed, then tries each supported
// variant in order until one takes the content.
func (o *Orchestrator) fillRichText(ctx context.Context, page browser.Page, f mapping.Field, req payload.Request) (string, error) {
	value, key := req.First(f.Keys()...)
	html := value
	if o.opts.SanitizeHTML {
		html = o.sanitizer.Sanitize(value)
	}
	id := f.EditorID
	logger := o.logger.With(zap.String("field", f.PayloadKey), zap.String("editor", id))

	caps := o.probeEditor(ctx, page, id)
	if caps.NeedsInit {
		caps = o.initializeEditor(ctx, page, id, logger)
	}

	plan := planRichText(caps)
	if len(plan) == 0 {
		return "", fmt.Errorf("editor %s offers no way to set content", id)
	}
	var errs []error
	for _, v := range plan {
		err := o.applyVariant(ctx, page, f, v, html)
		if err == nil {
			logger.Debug("Rich text set", zap.Stringer("variant", v))
			return key + " via " + v.String(), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Debug("Rich text variant failed", zap.Stringer("variant", v), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", v, err))
	}
	return "", errors.Join(errs...)
}

// initializeEditor clicks the placeholder (or the editor chrome) and waits
// for the editor to come up, returning the fresh capabilities.
func (o *Orchestrator) initializeEditor(ctx context.Context, page browser.Page, id string, logger *zap.Logger) editorCaps {
	wrap := browser.ByID("wp-" + id + "-wrap")
	chain := browser.ClickChain(browser.TextExact(InitPlaceholder), []string{wrap + " .acf-editor-toolbar", wrap}, "")
	if _, err := browser.ResolveAndAct(ctx, page, chain, o.opts.SelectorTimeout, logger); err != nil {
		logger.Warn("Could not trigger editor initialization", zap.Error(err))
	}

	readyCtx, cancel := context.WithTimeout(ctx, o.opts.EditorReady)
	defer cancel()
	for {
		caps := o.probeEditor(readyCtx, page, id)
		if caps.Probed && (caps.Initialized || !caps.NeedsInit) {
			return caps
		}
		if err := sleepCtx(readyCtx, 250*time.Millisecond); err != nil {
			logger.Debug("Editor did not report ready in time", zap.Duration("timeout", o.opts.EditorReady))
			// Probe once more on the parent context so the plan reflects
			// whatever did come up.
			return o.probeEditor(ctx, page, id)
		}
	}
}

func (o *Orchestrator) applyVariant(ctx context.Context, page browser.Page, f mapping.Field, v richTextVariant, html string) error {
	arg := map[string]string{"id": f.EditorID, "html": html}
	switch v {
	case variantAPI, variantSurface:
		tmpl := editorAPIJS
		if v == variantSurface {
			tmpl = editorSurfaceJS
		}
		var ok bool
		if err := page.Evaluate(ctx, editorScript(tmpl, arg), &ok); err != nil {
			return err
		}
		if !ok {
			return errors.New("editor rejected content")
		}
		return nil
	case variantPlain:
		button := f.TextButton
		if button == "" {
			button = browser.ByID(f.EditorID + "-html")
		}
		stepCtx, cancel := context.WithTimeout(ctx, o.opts.SelectorTimeout)
		defer cancel()
		if visible, _ := page.Visible(stepCtx, button); visible {
			if err := page.Click(stepCtx, button); err != nil {
				o.logger.Debug("Text tab click failed", zap.String("button", button), zap.Error(err))
			}
		}
		return page.Fill(stepCtx, browser.ByID(f.EditorID), html)
	}
	return fmt.Errorf("unknown variant %s", v)
}
