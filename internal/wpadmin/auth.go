// Package wpadmin drives the parts of wp-admin around the editor: logging in,
// reaching the new entry screen and saving the result.
package wpadmin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/wp-filler/internal/browser"
	"github.com/xkilldash9x/wp-filler/internal/config"
	"github.com/xkilldash9x/wp-filler/internal/humanoid"
	"go.uber.org/zap"
)

// Selectors of the stock WordPress login and admin screens.
const (
	DashboardMarker = "#adminmenu"
	UsernameInput   = "#user_login"
	PasswordInput   = "#user_pass"
	RememberMe      = "#rememberme"
	LoginSubmit     = "#wp-submit"
)

func withDefaults(t config.TimeoutsConfig) config.TimeoutsConfig {
	if t.Navigation <= 0 {
		t.Navigation = 30 * time.Second
	}
	if t.Selector <= 0 {
		t.Selector = 5 * time.Second
	}
	if t.Save <= 0 {
		t.Save = 10 * time.Second
	}
	return t
}

// LoginURL derives the login form address from the admin URL.
func LoginURL(adminURL string) string {
	base := strings.TrimRight(adminURL, "/")
	base = strings.TrimSuffix(base, "/wp-admin")
	return base + "/wp-login.php"
}

// Authenticator makes sure the page holds a logged-in admin session.
type Authenticator struct {
	wp       config.WordPressConfig
	timeouts config.TimeoutsConfig
	pacing   humanoid.Pacing
	logger   *zap.Logger
}

// NewAuthenticator creates an Authenticator. A nil pacing types without delays.
func NewAuthenticator(wp config.WordPressConfig, timeouts config.TimeoutsConfig, pacing humanoid.Pacing, logger *zap.Logger) *Authenticator {
	if pacing == nil {
		pacing = humanoid.Nop{}
	}
	return &Authenticator{
		wp:       wp,
		timeouts: withDefaults(timeouts),
		pacing:   pacing,
		logger:   logger.Named("auth"),
	}
}

// EnsureLoggedIn opens the admin root and logs in when the dashboard is not
// shown. It returns an *AuthError on any failure and never retries.
func (a *Authenticator) EnsureLoggedIn(ctx context.Context, page browser.Page) error {
	if err := a.open(ctx, page, a.wp.AdminURL); err != nil {
		return &AuthError{Stage: "open admin", Err: err}
	}
	if ok, _ := page.Visible(ctx, DashboardMarker); ok {
		a.logger.Info("Existing session is still logged in")
		return nil
	}

	if ok, _ := page.Visible(ctx, UsernameInput); !ok {
		loginURL := LoginURL(a.wp.AdminURL)
		a.logger.Debug("Login form not shown, opening it directly", zap.String("url", loginURL))
		if err := a.open(ctx, page, loginURL); err != nil {
			return &AuthError{Stage: "open login form", Err: err}
		}
	}
	a.logger.Info("Logging in", zap.String("username", a.wp.Username))

	if err := a.enter(ctx, page, UsernameInput, a.wp.Username); err != nil {
		return &AuthError{Stage: "username", Err: err}
	}
	if err := a.enter(ctx, page, PasswordInput, a.wp.Password); err != nil {
		return &AuthError{Stage: "password", Err: err}
	}
	if a.wp.RememberMe {
		a.tickRememberMe(ctx, page)
	}

	if err := a.pacing.Pause(ctx); err != nil {
		return &AuthError{Stage: "submit", Err: err}
	}
	stepCtx, cancel := context.WithTimeout(ctx, a.timeouts.Selector)
	err := page.Click(stepCtx, LoginSubmit)
	cancel()
	if err != nil {
		return &AuthError{Stage: "submit", Err: err}
	}
	a.settle(ctx, page)

	waitCtx, cancel := context.WithTimeout(ctx, a.timeouts.Selector)
	defer cancel()
	if err := page.WaitVisible(waitCtx, DashboardMarker); err != nil {
		if ctx.Err() != nil {
			return &AuthError{Stage: "verify", Err: ctx.Err()}
		}
		return &AuthError{Stage: "verify", Err: fmt.Errorf("%w: %v", ErrLoginRejected, err)}
	}
	a.logger.Info("Login successful")
	return nil
}

func (a *Authenticator) open(ctx context.Context, page browser.Page, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, a.timeouts.Navigation)
	defer cancel()
	if err := page.Navigate(navCtx, url); err != nil {
		return err
	}
	a.settle(ctx, page)
	return nil
}

// settle waits for the network to go quiet. Pages that never settle are
// tolerated; the next marker check decides.
func (a *Authenticator) settle(ctx context.Context, page browser.Page) {
	loadCtx, cancel := context.WithTimeout(ctx, a.timeouts.Navigation)
	defer cancel()
	if err := page.WaitLoad(loadCtx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Debug("Page did not settle", zap.Error(err))
	}
}

// enter clicks the input, clears it and types value one key at a time.
func (a *Authenticator) enter(ctx context.Context, page browser.Page, sel, value string) error {
	if err := a.pacing.Pause(ctx); err != nil {
		return err
	}
	stepCtx, cancel := context.WithTimeout(ctx, a.timeouts.Selector)
	defer cancel()
	if err := page.WaitVisible(stepCtx, sel); err != nil {
		return err
	}
	if err := page.Click(stepCtx, sel); err != nil {
		return err
	}
	if err := page.Fill(stepCtx, sel, ""); err != nil {
		return err
	}
	// Typing is paced by keystroke, so it gets the outer deadline.
	return page.Type(ctx, sel, value, a.pacing.Keystroke)
}

func (a *Authenticator) tickRememberMe(ctx context.Context, page browser.Page) {
	stepCtx, cancel := context.WithTimeout(ctx, a.timeouts.Selector)
	defer cancel()
	checked, err := page.Checked(stepCtx, RememberMe)
	if err != nil {
		a.logger.Debug("Remember me control not found", zap.Error(err))
		return
	}
	if checked {
		return
	}
	if err := page.Click(stepCtx, RememberMe); err != nil {
		a.logger.Warn("Could not tick remember me", zap.Error(err))
	}
}
