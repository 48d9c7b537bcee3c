package cdp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/wp-filler/internal/browser"
	"go.uber.org/zap"
)

const pollInterval = 100 * time.Millisecond

// Page drives a single chromedp target.
type Page struct {
	tabCtx     context.Context
	navTimeout time.Duration
	slowMo     time.Duration
	logger     *zap.Logger
}

var _ browser.Page = (*Page)(nil)

// run executes actions on the tab, bounded by the caller's ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(p.tabCtx, ctx)
	defer cancel()
	err := chromedp.Run(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// act runs an interaction and then honors the configured slow-motion delay.
func (p *Page) act(ctx context.Context, actions ...chromedp.Action) error {
	if err := p.run(ctx, actions...); err != nil {
		return err
	}
	if p.slowMo > 0 {
		return sleepCtx(ctx, p.slowMo)
	}
	return nil
}

func (p *Page) eval(ctx context.Context, script string, out any) error {
	return p.run(ctx, chromedp.Evaluate(script, out))
}

func (p *Page) locate(ctx context.Context, selector string, mode locateMode, out any) error {
	script, err := locateScript(selector, mode)
	if err != nil {
		return err
	}
	return p.eval(ctx, script, out)
}

// resolve returns a CSS selector addressing the element selector matches.
func (p *Page) resolve(ctx context.Context, selector string) (string, error) {
	var tagged string
	if err := p.locate(ctx, selector, modeTag, &tagged); err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", selector, err)
	}
	if tagged == "" {
		return "", fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	return tagged, nil
}

func (p *Page) callOn(ctx context.Context, selector, fn string, arg any, out any) error {
	css, err := p.resolve(ctx, selector)
	if err != nil {
		return err
	}
	script, err := callOnScript(css, fn, arg)
	if err != nil {
		return err
	}
	return p.eval(ctx, script, out)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating to URL", zap.String("url", url))
	navCtx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()
	if err := p.run(navCtx, chromedp.Navigate(url)); err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("navigation to %s timed out after %s: %w", url, p.navTimeout, err)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	if err := p.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

// WaitLoad polls document.readyState and then waits for a short quiet period
// with no pending fetches reported by the resource timing buffer.
func (p *Page) WaitLoad(ctx context.Context) error {
	const quiet = 500 * time.Millisecond
	var lastCount = -1
	stableSince := time.Time{}
	for {
		var state struct {
			Ready     string `json:"ready"`
			Resources int    `json:"resources"`
		}
		err := p.eval(ctx, `({ready: document.readyState, resources: performance.getEntriesByType('resource').length})`, &state)
		if err == nil && state.Ready == "complete" {
			if state.Resources == lastCount {
				if !stableSince.IsZero() && time.Since(stableSince) >= quiet {
					return nil
				}
				if stableSince.IsZero() {
					stableSince = time.Now()
				}
			} else {
				lastCount = state.Resources
				stableSince = time.Now()
			}
		}
		if err := sleepCtx(ctx, pollInterval); err != nil {
			return err
		}
	}
}

func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := p.locate(ctx, selector, modeExists, &ok)
	return ok, err
}

func (p *Page) Visible(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := p.locate(ctx, selector, modeVisible, &ok)
	return ok, err
}

func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	for {
		ok, err := p.Visible(ctx, selector)
		if err == nil && ok {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s not visible: %w", browser.ErrNotFound, selector, ctx.Err())
		}
		if err := sleepCtx(ctx, pollInterval); err != nil {
			return fmt.Errorf("%w: %s not visible: %w", browser.ErrNotFound, selector, err)
		}
	}
}

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	var n int
	err := p.locate(ctx, selector, modeCount, &n)
	return n, err
}

func (p *Page) Click(ctx context.Context, selector string) error {
	css, err := p.resolve(ctx, selector)
	if err != nil {
		return err
	}
	return p.act(ctx, chromedp.Click(css, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *Page) Type(ctx context.Context, selector, text string, keyDelay func() time.Duration) error {
	css, err := p.resolve(ctx, selector)
	if err != nil {
		return err
	}
	if err := p.run(ctx, chromedp.Focus(css, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to focus %q: %w", selector, err)
	}
	for _, r := range text {
		if err := p.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("failed to type into %q: %w", selector, err)
		}
		if keyDelay != nil {
			if err := sleepCtx(ctx, keyDelay()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if err := p.callOn(ctx, selector, fillFn, value, nil); err != nil {
		return err
	}
	if p.slowMo > 0 {
		return sleepCtx(ctx, p.slowMo)
	}
	return nil
}

func (p *Page) Value(ctx context.Context, selector string) (string, error) {
	var v string
	err := p.callOn(ctx, selector, valueFn, nil, &v)
	return v, err
}

func (p *Page) Checked(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := p.callOn(ctx, selector, checkedFn, nil, &ok)
	return ok, err
}

func (p *Page) SelectOption(ctx context.Context, selector, value string) error {
	return p.callOn(ctx, selector, selectFn, value, nil)
}

func (p *Page) ScrollIntoView(ctx context.Context, selector string) error {
	css, err := p.resolve(ctx, selector)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.ScrollIntoView(css, chromedp.ByQuery))
}

func (p *Page) Evaluate(ctx context.Context, script string, out any) error {
	return p.eval(ctx, script, out)
}

func (p *Page) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *Page) MouseMove(ctx context.Context, x, y float64) error {
	return p.run(ctx, chromedp.MouseEvent(input.MouseMoved, x, y))
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, err
	}
	return buf, nil
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
