// Package filler walks the selector mapping and fills the landing page editor
// panel by panel. Field failures are recorded and logged but never stop the
// run; the goal is to fill as much of the form as the page allows.
package filler

import (
	"context"
	"fmt"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/xkilldash9x/wp-filler/internal/browser"
	"github.com/xkilldash9x/wp-filler/internal/config"
	"github.com/xkilldash9x/wp-filler/internal/humanoid"
	"github.com/xkilldash9x/wp-filler/internal/mapping"
	"github.com/xkilldash9x/wp-filler/internal/payload"
	"go.uber.org/zap"
)

// Options bounds the waits performed while filling.
type Options struct {
	// SelectorTimeout bounds each wait for an element or a chain step.
	SelectorTimeout time.Duration
	// PanelSettle is slept after a panel tab is activated.
	PanelSettle time.Duration
	// EditorReady bounds the wait for a rich-text editor to initialize.
	EditorReady  time.Duration
	SanitizeHTML bool
}

// OptionsFromConfig picks the filler settings out of the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SelectorTimeout: cfg.Timeouts.Selector,
		PanelSettle:     cfg.Timeouts.PanelSettle,
		EditorReady:     cfg.Timeouts.EditorReady,
		SanitizeHTML:    cfg.Content.SanitizeHTML,
	}
}

// strategy fills one field. It returns a short description of how the value
// was applied.
type strategy func(ctx context.Context, page browser.Page, f mapping.Field, req payload.Request) (string, error)

// Orchestrator fills the editor form. It holds no per-run state and may be
// shared across runs, each with its own page.
type Orchestrator struct {
	mapping    *mapping.Mapping
	pacing     humanoid.Pacing
	opts       Options
	sanitizer  *bluemonday.Policy
	logger     *zap.Logger
	strategies map[mapping.FieldType]strategy
}

// New builds an Orchestrator. A nil pacing means no deliberate delays.
func New(m *mapping.Mapping, pacing humanoid.Pacing, opts Options, logger *zap.Logger) *Orchestrator {
	if pacing == nil {
		pacing = humanoid.Nop{}
	}
	if opts.SelectorTimeout <= 0 {
		opts.SelectorTimeout = 5 * time.Second
	}
	if opts.EditorReady <= 0 {
		opts.EditorReady = 5 * time.Second
	}
	o := &Orchestrator{
		mapping:   m,
		pacing:    pacing,
		opts:      opts,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.Named("filler"),
	}
	o.strategies = map[mapping.FieldType]strategy{
		mapping.TypeText:       o.fillText,
		mapping.TypeRichText:   o.fillRichText,
		mapping.TypeRadio:      o.fillRadio,
		mapping.TypeGridSelect: o.fillGrid,
		mapping.TypeLink:       o.fillLink,
	}
	return o
}

// HasData reports whether the request carries what field needs to be filled.
// A link needs both its URL and its label.
func (o *Orchestrator) HasData(f mapping.Field, req payload.Request) bool {
	v, _ := req.First(f.Keys()...)
	if f.Type == mapping.TypeGridSelect {
		return len(gridValues(f, req)) > 0
	}
	if v == "" {
		return false
	}
	if f.Type == mapping.TypeLink {
		label, _ := req.First(o.mapping.Link.TextKeys...)
		return label != ""
	}
	return true
}

// Fill fills the loose fields first, then every panel in mapping order.
// Each panel is activated even when none of its fields has data, so the
// editor goes through the same tab sequence on every run. It only returns
// early when ctx ends; the remaining fields are then reported as failed.
func (o *Orchestrator) Fill(ctx context.Context, page browser.Page, req payload.Request) FillSummary {
	var summary FillSummary
	start := time.Now()
	o.logger.Info("Starting form fill", zap.String("headline", req.Headline()), zap.Int("keys", len(req.Keys())))

	for _, f := range o.mapping.FieldsForPanel("") {
		summary.Fields = append(summary.Fields, o.fillField(ctx, page, f, req))
	}

	for _, p := range o.mapping.Panels {
		fields := o.mapping.FieldsForPanel(p.Key)
		pr := PanelResult{Key: p.Key}

		for _, f := range fields {
			if o.HasData(f, req) {
				pr.HasData = true
				break
			}
		}

		via, err := o.activatePanel(ctx, page, p)
		if err != nil {
			pr.Error = err.Error()
			summary.Panels = append(summary.Panels, pr)
			o.logger.Warn("Could not activate panel, skipping its fields", zap.String("panel", p.Key), zap.Error(err))
			for _, f := range fields {
				if !o.HasData(f, req) {
					summary.Fields = append(summary.Fields, skipped(f))
					continue
				}
				summary.Fields = append(summary.Fields, FillResult{
					PayloadKey: f.PayloadKey, Panel: f.Panel, Type: f.Type,
					Status: StatusFailed, Error: "panel not activated: " + err.Error(),
				})
			}
			continue
		}
		pr.Activated = true
		pr.Via = via
		summary.Panels = append(summary.Panels, pr)

		for _, f := range fields {
			summary.Fields = append(summary.Fields, o.fillField(ctx, page, f, req))
		}
	}

	o.logger.Info("Form fill finished",
		zap.Int("filled", summary.Count(StatusFilled)),
		zap.Int("skipped", summary.Count(StatusSkipped)),
		zap.Int("failed", summary.Count(StatusFailed)),
		zap.Duration("duration", time.Since(start)),
	)
	return summary
}

func skipped(f mapping.Field) FillResult {
	return FillResult{PayloadKey: f.PayloadKey, Panel: f.Panel, Type: f.Type, Status: StatusSkipped}
}

// activatePanel clicks the panel tab through its fallback chain and lets the
// tab content settle.
func (o *Orchestrator) activatePanel(ctx context.Context, page browser.Page, p mapping.Panel) (string, error) {
	text := ""
	if p.Label != "" {
		text = browser.TextExact(p.Label)
	}
	chain := browser.ClickChain(p.Selector, p.AlternativeSelectors, text)
	step, err := browser.ResolveAndAct(ctx, page, chain, o.opts.SelectorTimeout, o.logger.With(zap.String("panel", p.Key)))
	if err != nil {
		return "", err
	}
	o.logger.Debug("Panel activated", zap.String("panel", p.Key), zap.String("via", step.Label))
	if err := sleepCtx(ctx, o.opts.PanelSettle); err != nil {
		return step.Label, err
	}
	return step.Label, nil
}

// fillField runs the field's strategy when the request has data for it,
// converting errors and panics into a failed result.
func (o *Orchestrator) fillField(ctx context.Context, page browser.Page, f mapping.Field, req payload.Request) FillResult {
	res := FillResult{PayloadKey: f.PayloadKey, Panel: f.Panel, Type: f.Type}
	if !o.HasData(f, req) {
		res.Status = StatusSkipped
		return res
	}
	logger := o.logger.With(zap.String("field", f.PayloadKey), zap.String("type", string(f.Type)))

	start := time.Now()
	detail, err := o.runStrategy(ctx, page, f, req)
	res.Duration = time.Since(start)
	res.Detail = detail
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		logger.Warn("Field fill failed", zap.Error(err))
		return res
	}
	res.Status = StatusFilled
	logger.Debug("Field filled", zap.String("detail", detail), zap.Duration("duration", res.Duration))
	return res
}

func (o *Orchestrator) runStrategy(ctx context.Context, page browser.Page, f mapping.Field, req payload.Request) (detail string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy for %s panicked: %v", f.PayloadKey, r)
		}
	}()
	fill, ok := o.strategies[f.Type]
	if !ok {
		return "", fmt.Errorf("no strategy for field type %q", f.Type)
	}
	if err := o.pacing.Pause(ctx); err != nil {
		return "", err
	}
	return fill(ctx, page, f, req)
}

// waitFirst waits for the first of selectors to become visible, each bounded
// by the selector timeout.
func (o *Orchestrator) waitFirst(ctx context.Context, page browser.Page, selectors ...string) (string, error) {
	var lastErr error
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		waitCtx, cancel := context.WithTimeout(ctx, o.opts.SelectorTimeout)
		err := page.WaitVisible(waitCtx, sel)
		cancel()
		if err == nil {
			return sel, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = browser.ErrNotFound
	}
	return "", lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
