package pw

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"github.com/xkilldash9x/wp-filler/internal/browser"
	"go.uber.org/zap"
)

// defaultActionTimeout applies when the caller's context has no deadline.
const defaultActionTimeout = 30 * time.Second

// Page adapts a playwright.Page. Playwright understands the text=, :has-text
// and XPath selector forms natively, so selectors pass through unchanged.
type Page struct {
	page       playwright.Page
	navTimeout time.Duration
	logger     *zap.Logger
}

var _ browser.Page = (*Page)(nil)

// timeoutMs converts what is left of ctx into a Playwright timeout.
func timeoutMs(ctx context.Context, fallback time.Duration) *float64 {
	d := fallback
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return playwright.Float(float64(d.Milliseconds()))
}

// notFound maps Playwright timeouts onto browser.ErrNotFound.
func notFound(selector string, err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %s: %w", browser.ErrNotFound, selector, err)
	}
	return err
}

func (p *Page) first(selector string) playwright.Locator {
	return p.page.Locator(selector).First()
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.logger.Debug("Navigating to URL", zap.String("url", url))
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMs(ctx, p.navTimeout),
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	return p.page.URL(), ctx.Err()
}

func (p *Page) WaitLoad(ctx context.Context) error {
	err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: timeoutMs(ctx, p.navTimeout),
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	n, err := p.Count(ctx, selector)
	return n > 0, err
}

func (p *Page) Visible(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.first(selector).IsVisible()
}

func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	err := p.first(selector).WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeoutMs(ctx, defaultActionTimeout),
	})
	return notFound(selector, err)
}

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.page.Locator(selector).Count()
}

func (p *Page) Click(ctx context.Context, selector string) error {
	err := p.first(selector).Click(playwright.LocatorClickOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
	return notFound(selector, err)
}

func (p *Page) Type(ctx context.Context, selector, text string, keyDelay func() time.Duration) error {
	loc := p.first(selector)
	if err := loc.Focus(playwright.LocatorFocusOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)}); err != nil {
		return notFound(selector, err)
	}
	for _, r := range text {
		if err := p.page.Keyboard().Type(string(r)); err != nil {
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
	err := p.first(selector).Fill(value, playwright.LocatorFillOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
	return notFound(selector, err)
}

func (p *Page) Value(ctx context.Context, selector string) (string, error) {
	v, err := p.first(selector).InputValue(playwright.LocatorInputValueOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
	return v, notFound(selector, err)
}

func (p *Page) Checked(ctx context.Context, selector string) (bool, error) {
	ok, err := p.first(selector).IsChecked(playwright.LocatorIsCheckedOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
	return ok, notFound(selector, err)
}

func (p *Page) SelectOption(ctx context.Context, selector, value string) error {
	loc := p.first(selector)
	opts := playwright.LocatorSelectOptionOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)}
	if _, err := loc.SelectOption(playwright.SelectOptionValues{Values: &[]string{value}}, opts); err == nil {
		return nil
	}
	_, err := loc.SelectOption(playwright.SelectOptionValues{Labels: &[]string{value}}, opts)
	return notFound(selector, err)
}

func (p *Page) ScrollIntoView(ctx context.Context, selector string) error {
	err := p.first(selector).ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
	return notFound(selector, err)
}

func (p *Page) Evaluate(ctx context.Context, script string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := p.page.Evaluate(script)
	if err != nil {
		return err
	}
	if out == nil || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation result: %w", err)
	}
	return json.Unmarshal(data, out)
}

func (p *Page) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

func (p *Page) MouseMove(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Mouse().Move(x, y)
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
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
