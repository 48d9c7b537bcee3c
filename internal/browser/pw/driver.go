// Package pw implements browser.Driver on top of playwright-go. Its session
// state is Playwright's own storageState, so files written by either backend
// load in the other.
package pw

import (
	"context"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"github.com/xkilldash9x/wp-filler/internal/browser"
	"github.com/xkilldash9x/wp-filler/internal/browser/sessionstate"
	"github.com/xkilldash9x/wp-filler/internal/browser/stealth"
	"github.com/xkilldash9x/wp-filler/internal/config"
	"go.uber.org/zap"
)

const (
	installTimeout = 5 * time.Minute
	launchTimeout  = 60 * time.Second
)

// Driver starts a Playwright driver and a Chromium instance per session.
type Driver struct {
	cfg        config.BrowserConfig
	persona    stealth.Persona
	navTimeout time.Duration
	logger     *zap.Logger
	// Install runs playwright.Install for chromium before the first launch.
	Install bool
}

var _ browser.Driver = (*Driver)(nil)

// NewDriver returns a playwright-backed driver.
func NewDriver(cfg config.BrowserConfig, navTimeout time.Duration, logger *zap.Logger) *Driver {
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	return &Driver{
		cfg:        cfg,
		persona:    stealth.FromConfig(cfg),
		navTimeout: navTimeout,
		logger:     logger.Named("playwright"),
	}
}

func (d *Driver) ensureInstallation(ctx context.Context) error {
	installCtx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			errCh <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for playwright installation: %w", installCtx.Err())
	}
}

func launchOptions(cfg config.BrowserConfig) playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Timeout:  playwright.Float(float64(launchTimeout.Milliseconds())),
		Args: append([]string{
			"--disable-gpu",
			"--disable-dev-shm-usage",
			"--disable-blink-features=AutomationControlled",
		}, cfg.Args...),
	}
	if cfg.SlowMo > 0 {
		opts.SlowMo = playwright.Float(float64(cfg.SlowMo.Milliseconds()))
	}
	return opts
}

func contextOptions(cfg config.BrowserConfig, p stealth.Persona, state *sessionstate.State) (playwright.BrowserNewContextOptions, error) {
	opts := playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(p.UserAgent),
		Viewport:          &playwright.Size{Width: p.Width, Height: p.Height},
		IgnoreHttpsErrors: playwright.Bool(cfg.IgnoreTLSErrors),
		ExtraHttpHeaders:  p.ExtraHeaders(),
	}
	if p.Locale != "" {
		opts.Locale = playwright.String(p.Locale)
	}
	if p.Timezone != "" {
		opts.TimezoneId = playwright.String(p.Timezone)
	}
	if !state.Empty() {
		st, err := toPlaywright(state)
		if err != nil {
			return opts, err
		}
		opts.StorageState = st
	}
	return opts, nil
}

// toPlaywright converts through JSON; the on-disk layouts are identical.
func toPlaywright(state *sessionstate.State) (*playwright.OptionalStorageState, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session state: %w", err)
	}
	var st playwright.OptionalStorageState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to convert session state: %w", err)
	}
	return &st, nil
}

func fromPlaywright(st *playwright.StorageState) (*sessionstate.State, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to encode storage state: %w", err)
	}
	var out sessionstate.State
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to convert storage state: %w", err)
	}
	return &out, nil
}

// Open starts Playwright, launches Chromium and opens one page.
func (d *Driver) Open(ctx context.Context, state *sessionstate.State) (browser.Session, error) {
	if d.Install {
		if err := d.ensureInstallation(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}
	s := &Session{pw: pw, logger: d.logger}

	b, err := pw.Chromium.Launch(launchOptions(d.cfg))
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to launch browser instance: %w", err)
	}
	s.browser = b

	opts, err := contextOptions(d.cfg, d.persona, state)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	bctx, err := b.NewContext(opts)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	s.context = bctx

	for _, script := range d.persona.InitScripts() {
		if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(script)}); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to add init script: %w", err)
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	s.page = &Page{page: page, navTimeout: d.navTimeout, logger: d.logger}

	d.logger.Info("Browser session started",
		zap.Bool("headless", d.cfg.Headless),
		zap.String("browser_version", b.Version()),
		zap.Bool("restored_state", !state.Empty()),
	)
	return s, nil
}

// Session owns the Playwright driver process, the browser and its context.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    *Page
	logger  *zap.Logger
}

var _ browser.Session = (*Session)(nil)

func (s *Session) Page() browser.Page { return s.page }

func (s *Session) SaveState(ctx context.Context) (*sessionstate.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := s.context.StorageState()
	if err != nil {
		return nil, fmt.Errorf("failed to read storage state: %w", err)
	}
	return fromPlaywright(st)
}

// Close tears everything down in reverse order and reports the first error.
func (s *Session) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.context != nil {
		keep(s.context.Close())
	}
	if s.browser != nil {
		keep(s.browser.Close())
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			keep(fmt.Errorf("failed to stop playwright driver: %w", err))
		}
	}
	s.logger.Debug("Browser session closed")
	return firstErr
}
