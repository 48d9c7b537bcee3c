package wpadmin

import (
	"context"
	"errors"

	"github.com/xkilldash9x/wp-filler/internal/browser"
	"github.com/xkilldash9x/wp-filler/internal/config"
	"github.com/xkilldash9x/wp-filler/internal/mapping"
	"go.uber.org/zap"
)

// TitleInput is present once the new entry editor has rendered.
const TitleInput = "#title"

type navStep struct {
	target string
	text   string
	path   string
}

// Navigator walks from the admin screen to a new entry editor.
type Navigator struct {
	mapping  *mapping.Mapping
	wp       config.WordPressConfig
	timeouts config.TimeoutsConfig
	logger   *zap.Logger
}

func NewNavigator(m *mapping.Mapping, wp config.WordPressConfig, timeouts config.TimeoutsConfig, logger *zap.Logger) *Navigator {
	return &Navigator{
		mapping:  m,
		wp:       wp,
		timeouts: withDefaults(timeouts),
		logger:   logger.Named("navigator"),
	}
}

func (n *Navigator) steps() []navStep {
	pt := n.wp.PostType
	if pt == "" {
		pt = "landing"
	}
	return []navStep{
		{target: mapping.NavListTarget, text: "Landing Pages", path: "edit.php?post_type=" + pt},
		{target: mapping.NavCreateTarget, text: "New Landing Page", path: "post-new.php?post_type=" + pt},
	}
}

// chain builds the fallback order for one navigation step: primary selector,
// alternatives in declaration order, a text match, and finally the direct URL.
func (n *Navigator) chain(s navStep) browser.Chain {
	t, _ := n.mapping.Target(s.target)
	text := t.Text
	if text == "" {
		text = s.text
	}
	direct := n.wp.AdminURL + "/" + s.path
	return browser.ClickChain(t.Selector, t.AlternativeSelectors, browser.Text(text)).WithDirect(direct)
}

// GoToNewEntryEditor opens the entry list and then the create screen. It
// returns a *NavigationError when a step fails even by direct URL.
func (n *Navigator) GoToNewEntryEditor(ctx context.Context, page browser.Page) error {
	for _, s := range n.steps() {
		step, err := browser.ResolveAndAct(ctx, page, n.chain(s), n.timeouts.Selector, n.logger.With(zap.String("target", s.target)))
		if err != nil {
			return &NavigationError{Target: s.target, Err: err}
		}
		n.logger.Info("Navigation step done", zap.String("target", s.target), zap.String("via", step.Label))
		n.settle(ctx, page)
	}

	readyCtx, cancel := context.WithTimeout(ctx, n.timeouts.Selector)
	defer cancel()
	if err := page.WaitVisible(readyCtx, TitleInput); err != nil {
		if ctx.Err() != nil {
			return &NavigationError{Target: mapping.NavCreateTarget, Err: ctx.Err()}
		}
		n.logger.Warn("Editor title field did not show up in time, continuing", zap.Error(err))
	}
	return nil
}

func (n *Navigator) settle(ctx context.Context, page browser.Page) {
	loadCtx, cancel := context.WithTimeout(ctx, n.timeouts.Navigation)
	defer cancel()
	if err := page.WaitLoad(loadCtx); err != nil && !errors.Is(err, context.Canceled) {
		n.logger.Debug("Page did not settle after navigation", zap.Error(err))
	}
}
