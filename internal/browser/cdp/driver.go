// Package cdp implements browser.Driver on top of chromedp.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/wp-filler/internal/browser"
	"github.com/xkilldash9x/wp-filler/internal/browser/sessionstate"
	"github.com/xkilldash9x/wp-filler/internal/browser/stealth"
	"github.com/xkilldash9x/wp-filler/internal/config"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Driver launches a local Chrome through chromedp's exec allocator.
type Driver struct {
	cfg        config.BrowserConfig
	persona    stealth.Persona
	navTimeout time.Duration
	logger     *zap.Logger
}

var _ browser.Driver = (*Driver)(nil)

// NewDriver returns a chromedp-backed driver.
func NewDriver(cfg config.BrowserConfig, navTimeout time.Duration, logger *zap.Logger) *Driver {
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	return &Driver{
		cfg:        cfg,
		persona:    stealth.FromConfig(cfg),
		navTimeout: navTimeout,
		logger:     logger.Named("cdp"),
	}
}

// execOptions builds the allocator options from configuration.
func execOptions(cfg config.BrowserConfig, persona stealth.Persona) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(persona.UserAgent),
		chromedp.WindowSize(persona.Width, persona.Height),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if key, value, found := strings.Cut(arg, "="); found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}
	return opts
}

// Open launches the browser, applies the persona and restores state.
func (d *Driver) Open(ctx context.Context, state *sessionstate.State) (browser.Session, error) {
	// The browser outlives the caller's ctx until Close; ctx only bounds startup.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOptions(d.cfg, d.persona)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(d.logger.Sugar().Debugf),
		chromedp.WithErrorf(d.logger.Sugar().Debugf),
	)

	s := &Session{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		logger:      d.logger,
		page: &Page{
			tabCtx:     tabCtx,
			navTimeout: d.navTimeout,
			slowMo:     d.cfg.SlowMo,
			logger:     d.logger,
		},
	}

	startCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()

	tasks := chromedp.Tasks{network.Enable()}
	if d.cfg.IgnoreTLSErrors {
		tasks = append(tasks, security.SetIgnoreCertificateErrors(true))
	}
	tasks = append(tasks, stealth.Apply(d.persona, d.logger))
	tasks = append(tasks, restoreState(state, d.logger))

	if err := chromedp.Run(startCtx, tasks); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	d.logger.Info("Browser session started",
		zap.Bool("headless", d.cfg.Headless),
		zap.Bool("restored_state", !state.Empty()),
	)
	return s, nil
}

// restoreState sets saved cookies and replays local storage through an init
// script keyed by origin.
func restoreState(state *sessionstate.State, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if state.Empty() {
			return nil
		}
		params := make([]*network.CookieParam, 0, len(state.Cookies))
		for _, c := range state.Cookies {
			p := &network.CookieParam{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
				SameSite: network.CookieSameSite(c.SameSite),
			}
			if c.Expires > 0 {
				exp := cdp.TimeSinceEpoch(time.Unix(0, int64(c.Expires*float64(time.Second))))
				p.Expires = &exp
			}
			params = append(params, p)
		}
		if len(params) > 0 {
			if err := network.SetCookies(params).Do(ctx); err != nil {
				return fmt.Errorf("failed to restore cookies: %w", err)
			}
		}

		if len(state.Origins) > 0 {
			script, err := localStorageScript(state.Origins)
			if err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to install local storage restore: %w", err)
			}
		}
		logger.Debug("Restored browser state", zap.Int("cookies", len(params)), zap.Int("origins", len(state.Origins)))
		return nil
	})
}

func localStorageScript(origins []sessionstate.Origin) (string, error) {
	byOrigin := make(map[string]map[string]string, len(origins))
	for _, o := range origins {
		entries := make(map[string]string, len(o.LocalStorage))
		for _, kv := range o.LocalStorage {
			entries[kv.Name] = kv.Value
		}
		byOrigin[o.Origin] = entries
	}
	data, err := json.Marshal(byOrigin)
	if err != nil {
		return "", fmt.Errorf("failed to encode local storage: %w", err)
	}
	return fmt.Sprintf(`(function(all) {
	const entries = all[window.location.origin];
	if (!entries) return;
	try {
		for (const [k, v] of Object.entries(entries)) {
			if (window.localStorage.getItem(k) === null) window.localStorage.setItem(k, v);
		}
	} catch (e) {}
})(%s);`, data), nil
}

// Session is one chromedp browser with a single tab.
type Session struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	page        *Page
	logger      *zap.Logger
}

var _ browser.Session = (*Session)(nil)

func (s *Session) Page() browser.Page { return s.page }

// SaveState collects every cookie in the browser and the local storage of
// the current origin.
func (s *Session) SaveState(ctx context.Context) (*sessionstate.State, error) {
	st := &sessionstate.State{}
	err := s.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to read cookies: %w", err)
		}
		for _, c := range cookies {
			expires := c.Expires
			if c.Session {
				expires = -1
			}
			st.Cookies = append(st.Cookies, sessionstate.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  expires,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
				SameSite: c.SameSite.String(),
			})
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}

	var origin sessionstate.Origin
	captureJS := `(function() {
		const out = { origin: window.location.origin, localStorage: [] };
		try {
			for (let i = 0; i < window.localStorage.length; i++) {
				const k = window.localStorage.key(i);
				out.localStorage.push({ name: k, value: window.localStorage.getItem(k) });
			}
		} catch (e) {}
		return out;
	})()`
	if err := s.page.eval(ctx, captureJS, &origin); err != nil {
		s.logger.Debug("Could not capture local storage", zap.Error(err))
	} else if strings.HasPrefix(origin.Origin, "http") && len(origin.LocalStorage) > 0 {
		st.Origins = append(st.Origins, origin)
	}
	return st, nil
}

// Close shuts the browser down, waiting at most shutdownTimeout.
func (s *Session) Close() error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.tabCtx) }()

	var err error
	select {
	case err = <-done:
	case <-time.After(shutdownTimeout):
		err = fmt.Errorf("browser shutdown timed out after %s", shutdownTimeout)
	}
	s.tabCancel()
	s.allocCancel()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	s.logger.Debug("Browser session closed")
	return err
}
