// Package browser defines the page-level capability the rest of the program
// drives. Concrete backends live in the cdp (chromedp) and pw (playwright)
// subpackages; browsertest provides a recording fake.
package browser

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/wp-filler/internal/browser/sessionstate"
)

var (
	// ErrNotFound is returned when no element matches a locator.
	ErrNotFound = errors.New("element not found")
	// ErrChainExhausted is returned when every step of a Chain failed.
	ErrChainExhausted = errors.New("all fallback selectors failed")
)

// Page is a single open tab. Selectors use the locator grammar of ParseLocator.
// Every call honors ctx cancellation; callers bound waits with context.WithTimeout.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	// WaitLoad blocks until the document has finished loading and the network
	// has settled, or ctx ends.
	WaitLoad(ctx context.Context) error

	Exists(ctx context.Context, selector string) (bool, error)
	Visible(ctx context.Context, selector string) (bool, error)
	WaitVisible(ctx context.Context, selector string) error
	Count(ctx context.Context, selector string) (int, error)

	Click(ctx context.Context, selector string) error
	// Type focuses the element and sends text one key at a time, sleeping
	// keyDelay() between keys. A nil keyDelay types without pauses.
	Type(ctx context.Context, selector, text string, keyDelay func() time.Duration) error
	// Fill replaces the value of an input or textarea and dispatches input
	// and change events.
	Fill(ctx context.Context, selector, value string) error
	Value(ctx context.Context, selector string) (string, error)
	Checked(ctx context.Context, selector string) (bool, error)
	SelectOption(ctx context.Context, selector, value string) error
	ScrollIntoView(ctx context.Context, selector string) error

	// Evaluate runs a JavaScript expression in the page and decodes its
	// JSON-compatible result into out (which may be nil).
	Evaluate(ctx context.Context, script string, out any) error
	Content(ctx context.Context) (string, error)
	MouseMove(ctx context.Context, x, y float64) error
	Screenshot(ctx context.Context) ([]byte, error)
}

// Session is one browser context with a single page.
type Session interface {
	Page() Page
	// SaveState captures cookies and local storage for the next run.
	SaveState(ctx context.Context) (*sessionstate.State, error)
	Close() error
}

// Driver launches sessions. state may be nil for a fresh profile.
type Driver interface {
	Open(ctx context.Context, state *sessionstate.State) (Session, error)
}
