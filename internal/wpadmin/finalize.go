package wpadmin

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xkilldash9x/wp-filler/internal/browser"
	"github.com/xkilldash9x/wp-filler/internal/config"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// Save modes.
const (
	ModeDraft   = "draft"
	ModePublish = "publish"
)

const (
	DraftButton   = "#save-post"
	PublishButton = "#publish"
	SuccessNotice = "#message.updated"
	PermalinkLink = "#sample-permalink a"
	// SavedPreviewLink is the anchor in the post-save notice. The editor's own
	// "Preview" button is on the page before saving and is no save marker.
	SavedPreviewLink = `a:has-text("Preview post")`
)

// Finalizer saves the entry and reports where it can be viewed.
type Finalizer struct {
	adminURL string
	timeouts config.TimeoutsConfig
	logger   *zap.Logger
}

func NewFinalizer(wp config.WordPressConfig, timeouts config.TimeoutsConfig, logger *zap.Logger) *Finalizer {
	return &Finalizer{
		adminURL: wp.AdminURL,
		timeouts: withDefaults(timeouts),
		logger:   logger.Named("finalizer"),
	}
}

// SaveDraftOrPublish clicks the save (or publish) control and extracts the
// preview or permalink URL. found is false when no URL could be read, which
// is not an error. err is a *SaveError when the control could not be clicked.
func (f *Finalizer) SaveDraftOrPublish(ctx context.Context, page browser.Page, mode string) (link string, found bool, err error) {
	button := DraftButton
	if mode == ModePublish {
		button = PublishButton
	} else {
		mode = ModeDraft
	}

	if err := page.Evaluate(ctx, "window.scrollTo(0, 0)", nil); err != nil {
		f.logger.Debug("Scroll to top failed", zap.Error(err))
	}
	chain := browser.ClickChain(button, nil, "")
	if _, err := browser.ResolveAndAct(ctx, page, chain, f.timeouts.Selector, f.logger); err != nil {
		return "", false, &SaveError{Mode: mode, Err: err}
	}
	f.logger.Info("Save requested", zap.String("mode", mode))

	if !f.waitOutcome(ctx, page, mode) {
		f.logger.Warn("No save confirmation seen in time", zap.Duration("timeout", f.timeouts.Save))
	}

	html, err := page.Content(ctx)
	if err != nil {
		f.logger.Warn("Could not read page after save", zap.Error(err))
		return "", false, nil
	}
	link, found = ExtractURL(html, f.adminURL, mode)
	if !found {
		f.logger.Warn("Saved, but no preview or permalink URL was found")
		return "", false, nil
	}
	f.logger.Info("Entry saved", zap.String("url", link))
	return link, true, nil
}

// waitOutcome polls for the success notice or a post-save anchor until the
// save timeout elapses.
func (f *Finalizer) waitOutcome(ctx context.Context, page browser.Page, mode string) bool {
	markers := []string{SuccessNotice, SavedPreviewLink}
	if mode == ModePublish {
		markers = append(markers, PermalinkLink)
	}
	waitCtx, cancel := context.WithTimeout(ctx, f.timeouts.Save)
	defer cancel()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		for _, m := range markers {
			if ok, _ := page.Visible(waitCtx, m); ok {
				return true
			}
		}
		select {
		case <-waitCtx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// ExtractURL scans the anchors of html for the preview link, then for any
// preview=true link, then (publish) for the permalink. Links leaving the
// admin site's registrable domain are ignored.
func ExtractURL(html, adminURL string, mode string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	base, err := url.Parse(adminURL)
	if err != nil {
		return "", false
	}

	pick := func(sel string, keep func(*goquery.Selection) bool) (string, bool) {
		var out string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if keep != nil && !keep(s) {
				return true
			}
			href, ok := s.Attr("href")
			if !ok {
				return true
			}
			if abs, ok := resolveOnSite(base, href); ok {
				out = abs
				return false
			}
			return true
		})
		return out, out != ""
	}
	textHas := func(sub string) func(*goquery.Selection) bool {
		return func(s *goquery.Selection) bool { return strings.Contains(s.Text(), sub) }
	}

	if u, ok := pick(`a[target="_blank"]`, textHas("Preview")); ok {
		return u, true
	}
	if u, ok := pick(`a[href*="preview=true"]`, nil); ok {
		return u, true
	}
	if mode == ModePublish {
		if u, ok := pick(PermalinkLink, nil); ok {
			return u, true
		}
		if u, ok := pick("a", textHas("View post")); ok {
			return u, true
		}
	}
	return "", false
}

// resolveOnSite makes href absolute against base and keeps it only when it
// shares base's registrable domain.
func resolveOnSite(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if site(abs.Hostname()) != site(base.Hostname()) {
		return "", false
	}
	return abs.String(), true
}

func site(host string) string {
	host = strings.ToLower(host)
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}
