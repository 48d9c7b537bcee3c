package stealth

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	rodstealth "github.com/go-rod/stealth"
	"github.com/xkilldash9x/wp-filler/internal/config"
	"go.uber.org/zap"
)

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent string
	Platform  string
	Languages []string
	Timezone  string
	Locale    string
	Width     int
	Height    int
	Headers   map[string]string
	// Evasions toggles the opaque anti-automation script.
	Evasions bool
}

// DefaultPersona mirrors a desktop Chrome on macOS in New York.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Platform:  "MacIntel",
	Languages: []string{"en-US", "en"},
	Timezone:  "America/New_York",
	Locale:    "en-US",
	Width:     1920,
	Height:    1080,
	Evasions:  true,
}

// FromConfig builds the persona from browser settings, falling back to
// DefaultPersona for anything left empty.
func FromConfig(cfg config.BrowserConfig) Persona {
	p := DefaultPersona
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	if cfg.Timezone != "" {
		p.Timezone = cfg.Timezone
	}
	if cfg.Locale != "" {
		p.Locale = cfg.Locale
		base := strings.SplitN(cfg.Locale, "-", 2)[0]
		p.Languages = []string{cfg.Locale}
		if base != cfg.Locale {
			p.Languages = append(p.Languages, base)
		}
	}
	if w := cfg.Viewport["width"]; w > 0 {
		p.Width = w
	}
	if h := cfg.Viewport["height"]; h > 0 {
		p.Height = h
	}
	p.Headers = cfg.Headers
	p.Evasions = cfg.Stealth
	return p
}

// AcceptLanguage renders the persona's languages as an Accept-Language value.
func (p Persona) AcceptLanguage() string {
	if len(p.Languages) == 0 {
		return ""
	}
	parts := []string{p.Languages[0]}
	q := 9
	for _, l := range p.Languages[1:] {
		if q < 1 {
			break
		}
		parts = append(parts, fmt.Sprintf("%s;q=0.%d", l, q))
		q--
	}
	return strings.Join(parts, ",")
}

// ExtraHeaders is the header set sent with every request.
func (p Persona) ExtraHeaders() map[string]string {
	h := make(map[string]string, len(p.Headers)+1)
	if al := p.AcceptLanguage(); al != "" {
		h["Accept-Language"] = al
	}
	for k, v := range p.Headers {
		h[k] = v
	}
	return h
}

// InitScripts returns the scripts to evaluate before any page script runs.
func (p Persona) InitScripts() []string {
	if !p.Evasions {
		return nil
	}
	return []string{rodstealth.JS}
}

// Apply constructs the Chrome DevTools Protocol actions that make the
// headless browser present as the persona.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
		zap.Bool("evasions", p.Evasions),
	)

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithAcceptLanguage(p.AcceptLanguage()).
			WithPlatform(p.Platform),
	}

	for _, script := range p.InitScripts() {
		// AddScriptToEvaluateOnNewDocument returns an identifier as well, so it
		// needs wrapping to satisfy chromedp.Action.
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}))
	}

	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if p.Width > 0 && p.Height > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(int64(p.Width), int64(p.Height), 1, false))
	}

	headers := network.Headers{}
	for k, v := range p.ExtraHeaders() {
		headers[k] = v
	}
	if len(headers) > 0 {
		tasks = append(tasks, network.SetExtraHTTPHeaders(headers))
	}
	return tasks
}
