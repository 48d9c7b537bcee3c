// Package browsertest provides an in-memory browser.Page that records every
// interaction, for exercising editor automation without a browser.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/wp-filler/internal/browser"
	"github.com/xkilldash9x/wp-filler/internal/browser/sessionstate"
)

const pollInterval = 5 * time.Millisecond

// Call is one recorded interaction.
type Call struct {
	Op       string
	Selector string
	Value    string
}

func (c Call) String() string {
	if c.Value == "" {
		return c.Op + " " + c.Selector
	}
	return c.Op + " " + c.Selector + " = " + c.Value
}

// Element is the fake state behind a selector.
type Element struct {
	Visible bool
	Value   string
	Checked bool
	// ClickErr makes Click fail.
	ClickErr error
	// OnClick runs after a successful click, with the page lock released.
	OnClick func(p *Page)
	// Radio makes a click mark the element checked.
	Radio bool
}

// Page is a fake browser.Page. Selectors are matched literally.
type Page struct {
	mu       sync.Mutex
	calls    []Call
	elements map[string]*Element
	counts   map[string]int
	url      string
	content  string

	// NavigateFunc, when set, decides the outcome of Navigate.
	NavigateFunc func(p *Page, url string) error
	// EvalFunc answers Evaluate. The returned value is JSON-decoded into out.
	EvalFunc func(p *Page, script string) (any, error)
}

var _ browser.Page = (*Page)(nil)

// NewPage returns an empty fake page.
func NewPage() *Page {
	return &Page{
		elements: make(map[string]*Element),
		counts:   make(map[string]int),
	}
}

// Add registers a visible element and returns it for further tweaking.
func (p *Page) Add(selector string) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	el := &Element{Visible: true}
	p.elements[selector] = el
	return el
}

// AddHidden registers an element that exists but is not visible.
func (p *Page) AddHidden(selector string) *Element {
	el := p.Add(selector)
	p.mu.Lock()
	el.Visible = false
	p.mu.Unlock()
	return el
}

// Remove drops an element.
func (p *Page) Remove(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, selector)
}

// Element returns the registered element, if any.
func (p *Page) Element(selector string) (*Element, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	return el, ok
}

// SetCount fixes the answer Count gives for selector.
func (p *Page) SetCount(selector string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[selector] = n
}

// SetContent fixes the HTML returned by Content.
func (p *Page) SetContent(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.content = html
}

// SetURL fixes the current URL.
func (p *Page) SetURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
}

// Calls returns a copy of the recorded interactions.
func (p *Page) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallsFor returns recorded calls with the given op.
func (p *Page) CallsFor(op string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Touched reports whether any recorded call targeted selector.
func (p *Page) Touched(selector string) bool {
	for _, c := range p.Calls() {
		if c.Selector == selector {
			return true
		}
	}
	return false
}

// Reset clears the call log.
func (p *Page) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

func (p *Page) record(op, selector, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Op: op, Selector: selector, Value: value})
}

func (p *Page) lookup(selector string) (*Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	return el, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.record("navigate", url, "")
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.NavigateFunc != nil {
		if err := p.NavigateFunc(p, url); err != nil {
			return err
		}
	}
	p.SetURL(url)
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) WaitLoad(ctx context.Context) error {
	p.record("wait-load", "", "")
	return ctx.Err()
}

func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	p.record("exists", selector, "")
	_, err := p.lookup(selector)
	return err == nil, ctx.Err()
}

func (p *Page) Visible(ctx context.Context, selector string) (bool, error) {
	p.record("visible", selector, "")
	el, err := p.lookup(selector)
	if err != nil {
		return false, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return el.Visible, ctx.Err()
}

// WaitVisible polls until selector is registered and visible or ctx ends.
// Only the first attempt is recorded.
func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	p.record("wait-visible", selector, "")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if el, err := p.lookup(selector); err == nil {
			p.mu.Lock()
			visible := el.Visible
			p.mu.Unlock()
			if visible {
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s not visible: %w", browser.ErrNotFound, selector, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	p.record("count", selector, "")
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[selector], ctx.Err()
}

func (p *Page) Click(ctx context.Context, selector string) error {
	p.record("click", selector, "")
	el, err := p.lookup(selector)
	if err != nil {
		return err
	}
	p.mu.Lock()
	clickErr, hook := el.ClickErr, el.OnClick
	if clickErr == nil && el.Radio {
		el.Checked = true
	}
	p.mu.Unlock()
	if clickErr != nil {
		return clickErr
	}
	if hook != nil {
		hook(p)
	}
	return ctx.Err()
}

func (p *Page) Type(ctx context.Context, selector, text string, keyDelay func() time.Duration) error {
	p.record("type", selector, text)
	el, err := p.lookup(selector)
	if err != nil {
		return err
	}
	if keyDelay != nil {
		for range text {
			_ = keyDelay()
		}
	}
	p.mu.Lock()
	el.Value += text
	p.mu.Unlock()
	return ctx.Err()
}

func (p *Page) Fill(ctx context.Context, selector, value string) error {
	p.record("fill", selector, value)
	el, err := p.lookup(selector)
	if err != nil {
		return err
	}
	p.mu.Lock()
	el.Value = value
	p.mu.Unlock()
	return ctx.Err()
}

func (p *Page) Value(ctx context.Context, selector string) (string, error) {
	el, err := p.lookup(selector)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return el.Value, ctx.Err()
}

func (p *Page) Checked(ctx context.Context, selector string) (bool, error) {
	el, err := p.lookup(selector)
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return el.Checked, ctx.Err()
}

func (p *Page) SelectOption(ctx context.Context, selector, value string) error {
	p.record("select", selector, value)
	el, err := p.lookup(selector)
	if err != nil {
		return err
	}
	p.mu.Lock()
	el.Value = value
	p.mu.Unlock()
	return ctx.Err()
}

func (p *Page) ScrollIntoView(ctx context.Context, selector string) error {
	p.record("scroll", selector, "")
	if _, err := p.lookup(selector); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Page) Evaluate(ctx context.Context, script string, out any) error {
	p.record("eval", firstLine(script), "")
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.EvalFunc == nil {
		return nil
	}
	v, err := p.EvalFunc(p, script)
	if err != nil {
		return err
	}
	if out == nil || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (p *Page) Content(ctx context.Context) (string, error) {
	p.record("content", "", "")
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content, ctx.Err()
}

func (p *Page) MouseMove(ctx context.Context, x, y float64) error {
	p.record("mouse-move", "", fmt.Sprintf("%.0f,%.0f", x, y))
	return ctx.Err()
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.record("screenshot", "", "")
	return []byte("\x89PNG"), ctx.Err()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Session wraps a fake Page as a browser.Session.
type Session struct {
	FakePage *Page
	State    *sessionstate.State
	SaveErr  error

	mu     sync.Mutex
	closed bool
	saved  int
}

var _ browser.Session = (*Session)(nil)

func (s *Session) Page() browser.Page { return s.FakePage }

func (s *Session) SaveState(ctx context.Context) (*sessionstate.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved++
	if s.SaveErr != nil {
		return nil, s.SaveErr
	}
	if s.State == nil {
		return &sessionstate.State{}, nil
	}
	return s.State, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Saves reports how many times SaveState was called.
func (s *Session) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// Driver hands out pre-built sessions.
type Driver struct {
	// NewSession builds the session for each Open call.
	NewSession func(state *sessionstate.State) (*Session, error)

	mu     sync.Mutex
	opened []*sessionstate.State
}

var _ browser.Driver = (*Driver)(nil)

func (d *Driver) Open(ctx context.Context, state *sessionstate.State) (browser.Session, error) {
	d.mu.Lock()
	d.opened = append(d.opened, state)
	d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := d.NewSession(state)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenedWith returns the states passed to Open, in order.
func (d *Driver) OpenedWith() []*sessionstate.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*sessionstate.State(nil), d.opened...)
}
