package runner

import (
	"fmt"

	"github.com/xkilldash9x/wp-filler/internal/browser"
	"github.com/xkilldash9x/wp-filler/internal/browser/cdp"
	"github.com/xkilldash9x/wp-filler/internal/browser/pw"
	"github.com/xkilldash9x/wp-filler/internal/config"
	"go.uber.org/zap"
)

// NewDriver returns the browser backend selected by browser.driver.
func NewDriver(cfg *config.Config, logger *zap.Logger) (browser.Driver, error) {
	switch cfg.Browser.Driver {
	case "", "chromedp":
		return cdp.NewDriver(cfg.Browser, cfg.Timeouts.Navigation, logger), nil
	case "playwright":
		d := pw.NewDriver(cfg.Browser, cfg.Timeouts.Navigation, logger)
		d.Install = true
		return d, nil
	}
	return nil, fmt.Errorf("unknown browser driver %q", cfg.Browser.Driver)
}
