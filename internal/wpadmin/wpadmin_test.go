package wpadmin

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/wp-filler/internal/browser"
	"github.com/xkilldash9x/wp-filler/internal/browser/browsertest"
	"github.com/xkilldash9x/wp-filler/internal/config"
	"github.com/xkilldash9x/wp-filler/internal/humanoid"
	"github.com/xkilldash9x/wp-filler/internal/mapping"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const adminURL = "https://example.com/wp-admin"

func testWordPress() config.WordPressConfig {
	return config.WordPressConfig{
		AdminURL:    adminURL,
		Username:    "editor",
		Password:    "s3cret",
		PostType:    "landing",
		RememberMe:  true,
		PublishMode: ModeDraft,
	}
}

func testTimeouts() config.TimeoutsConfig {
	return config.TimeoutsConfig{
		Navigation: time.Second,
		Selector:   100 * time.Millisecond,
		Save:       200 * time.Millisecond,
	}
}

// countingPacing records how often it was asked for delays.
type countingPacing struct {
	pauses     atomic.Int32
	keystrokes atomic.Int32
}

func (c *countingPacing) Pause(ctx context.Context) error {
	c.pauses.Add(1)
	return ctx.Err()
}

func (c *countingPacing) Keystroke() time.Duration {
	c.keystrokes.Add(1)
	return 0
}

func (c *countingPacing) WarmUp(ctx context.Context, _ browser.Page) error { return ctx.Err() }

var _ humanoid.Pacing = (*countingPacing)(nil)

func addLoginForm(p *browsertest.Page) {
	p.Add(UsernameInput)
	p.Add(PasswordInput)
	p.Add(RememberMe)
	p.Add(LoginSubmit).OnClick = func(p *browsertest.Page) { p.Add(DashboardMarker) }
}

func navigations(p *browsertest.Page) []string {
	var out []string
	for _, c := range p.CallsFor("navigate") {
		out = append(out, c.Selector)
	}
	return out
}

func TestLoginURL(t *testing.T) {
	assert.Equal(t, "https://example.com/wp-login.php", LoginURL("https://example.com/wp-admin"))
	assert.Equal(t, "https://example.com/wp-login.php", LoginURL("https://example.com/wp-admin/"))
	assert.Equal(t, "https://example.com/blog/wp-login.php", LoginURL("https://example.com/blog/wp-admin"))
}

func TestEnsureLoggedIn_ExistingSession(t *testing.T) {
	page := browsertest.NewPage()
	page.Add(DashboardMarker)
	a := NewAuthenticator(testWordPress(), testTimeouts(), nil, zap.NewNop())

	require.NoError(t, a.EnsureLoggedIn(context.Background(), page))
	assert.Equal(t, []string{adminURL}, navigations(page))
	assert.Empty(t, page.CallsFor("type"))
}

func TestEnsureLoggedIn_FillsLoginForm(t *testing.T) {
	page := browsertest.NewPage()
	addLoginForm(page)
	pacing := &countingPacing{}
	a := NewAuthenticator(testWordPress(), testTimeouts(), pacing, zap.NewNop())

	require.NoError(t, a.EnsureLoggedIn(context.Background(), page))

	assert.Equal(t, []string{adminURL}, navigations(page), "login form was already shown")
	types := page.CallsFor("type")
	require.Len(t, types, 2)
	assert.Equal(t, browsertest.Call{Op: "type", Selector: UsernameInput, Value: "editor"}, types[0])
	assert.Equal(t, browsertest.Call{Op: "type", Selector: PasswordInput, Value: "s3cret"}, types[1])
	assert.Equal(t, int32(len("editor")+len("s3cret")), pacing.keystrokes.Load())
	assert.GreaterOrEqual(t, pacing.pauses.Load(), int32(3))

	var clicks []string
	for _, c := range page.CallsFor("click") {
		clicks = append(clicks, c.Selector)
	}
	assert.Equal(t, []string{UsernameInput, PasswordInput, RememberMe, LoginSubmit}, clicks)
}

func TestEnsureLoggedIn_OpensLoginFormDirectly(t *testing.T) {
	page := browsertest.NewPage()
	page.NavigateFunc = func(p *browsertest.Page, url string) error {
		if strings.HasSuffix(url, "/wp-login.php") {
			addLoginForm(p)
		}
		return nil
	}
	a := NewAuthenticator(testWordPress(), testTimeouts(), humanoid.Nop{}, zap.NewNop())

	require.NoError(t, a.EnsureLoggedIn(context.Background(), page))
	assert.Equal(t, []string{adminURL, "https://example.com/wp-login.php"}, navigations(page))
}

func TestEnsureLoggedIn_RememberMeAlreadyTicked(t *testing.T) {
	page := browsertest.NewPage()
	addLoginForm(page)
	el, _ := page.Element(RememberMe)
	el.Checked = true
	a := NewAuthenticator(testWordPress(), testTimeouts(), humanoid.Nop{}, zap.NewNop())

	require.NoError(t, a.EnsureLoggedIn(context.Background(), page))
	for _, c := range page.CallsFor("click") {
		assert.NotEqual(t, RememberMe, c.Selector)
	}
}

func TestEnsureLoggedIn_Rejected(t *testing.T) {
	page := browsertest.NewPage()
	addLoginForm(page)
	page.Add(LoginSubmit) // submitting leads nowhere
	a := NewAuthenticator(testWordPress(), testTimeouts(), humanoid.Nop{}, zap.NewNop())

	err := a.EnsureLoggedIn(context.Background(), page)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "verify", authErr.Stage)
	assert.ErrorIs(t, err, ErrLoginRejected)
	assert.Len(t, page.CallsFor("type"), 2, "login is attempted once")
}

func TestEnsureLoggedIn_AdminUnreachable(t *testing.T) {
	page := browsertest.NewPage()
	boom := errors.New("net::ERR_NAME_NOT_RESOLVED")
	page.NavigateFunc = func(*browsertest.Page, string) error { return boom }
	a := NewAuthenticator(testWordPress(), testTimeouts(), nil, zap.NewNop())

	err := a.EnsureLoggedIn(context.Background(), page)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "open admin", authErr.Stage)
	assert.ErrorIs(t, err, boom)
}

func TestEnsureLoggedIn_MissingPasswordField(t *testing.T) {
	page := browsertest.NewPage()
	addLoginForm(page)
	page.Remove(PasswordInput)
	a := NewAuthenticator(testWordPress(), testTimeouts(), nil, zap.NewNop())

	err := a.EnsureLoggedIn(context.Background(), page)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "password", authErr.Stage)
	assert.ErrorIs(t, err, browser.ErrNotFound)
}

func testNavigator(t *testing.T, logger *zap.Logger) *Navigator {
	t.Helper()
	m, err := mapping.Default()
	require.NoError(t, err)
	return NewNavigator(m, testWordPress(), testTimeouts(), logger)
}

func TestNavigator_UsesFirstWorkingAlternative(t *testing.T) {
	n := testNavigator(t, zap.NewNop())
	page := browsertest.NewPage()
	list := `#adminmenu a[href*="post_type=landing"]`
	page.Add(list)
	page.Add(`#wpbody-content a[href*="post-new.php?post_type=landing"]`)
	page.Add(`a.page-title-action`)
	page.Add(TitleInput)

	require.NoError(t, n.GoToNewEntryEditor(context.Background(), page))

	var clicks []string
	for _, c := range page.CallsFor("click") {
		clicks = append(clicks, c.Selector)
	}
	assert.Equal(t, []string{list, "a.page-title-action"}, clicks)
	assert.Empty(t, page.CallsFor("navigate"), "direct URL must not be used")

	// The list step waited on the primary and the first alternative before the winner.
	var probed []string
	for _, c := range page.CallsFor("wait-visible") {
		probed = append(probed, c.Selector)
	}
	assert.Equal(t, []string{
		"#menu-posts-landing > a",
		`#adminmenu a[href="edit.php?post_type=landing"]`,
		list,
		"a.page-title-action",
		TitleInput,
	}, probed)
}

func TestNavigator_FallsBackToText(t *testing.T) {
	n := testNavigator(t, zap.NewNop())
	page := browsertest.NewPage()
	page.Add("text=Landing Pages")
	page.Add("text=New Landing Page")
	page.Add(TitleInput)

	require.NoError(t, n.GoToNewEntryEditor(context.Background(), page))
	assert.True(t, page.Touched("text=Landing Pages"))
	assert.Empty(t, page.CallsFor("navigate"))
}

func TestNavigator_DirectURLLastResort(t *testing.T) {
	n := testNavigator(t, zap.NewNop())
	page := browsertest.NewPage()
	page.Add(TitleInput)

	require.NoError(t, n.GoToNewEntryEditor(context.Background(), page))
	assert.Equal(t, []string{
		adminURL + "/edit.php?post_type=landing",
		adminURL + "/post-new.php?post_type=landing",
	}, navigations(page))
}

func TestNavigator_FailsWhenDirectURLFails(t *testing.T) {
	n := testNavigator(t, zap.NewNop())
	page := browsertest.NewPage()
	page.NavigateFunc = func(*browsertest.Page, string) error { return errors.New("timeout") }

	err := n.GoToNewEntryEditor(context.Background(), page)
	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, mapping.NavListTarget, navErr.Target)
	assert.ErrorIs(t, err, browser.ErrChainExhausted)
}

func TestNavigator_TitleWaitIsBounded(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	n := testNavigator(t, zap.New(core))
	page := browsertest.NewPage()
	page.Add("#menu-posts-landing > a")
	page.Add("a.page-title-action")

	start := time.Now()
	require.NoError(t, n.GoToNewEntryEditor(context.Background(), page))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, logs.FilterMessage("Editor title field did not show up in time, continuing").Len())
}

const savedHTML = `<html><body>
<div id="message" class="updated"><p>Post draft updated. <a href="https://evil.example.net/?p=1&preview=true" target="_blank">Preview post</a></p></div>
<div id="minor-publishing-actions">
  <a class="preview button" href="https://example.com/?p=42&amp;preview=true" target="_blank">Preview post</a>
</div>
</body></html>`

func TestSaveDraft(t *testing.T) {
	f := NewFinalizer(testWordPress(), testTimeouts(), zap.NewNop())
	page := browsertest.NewPage()
	page.Add(DraftButton).OnClick = func(p *browsertest.Page) {
		p.Add(SuccessNotice)
		p.SetContent(savedHTML)
	}

	link, found, err := f.SaveDraftOrPublish(context.Background(), page, ModeDraft)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://example.com/?p=42&preview=true", link)

	calls := page.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "eval", calls[0].Op, "scrolls to origin first")
	assert.False(t, page.Touched(PublishButton))
}

func TestSaveDraft_WaitsForSaveNotPreviewButton(t *testing.T) {
	timeouts := testTimeouts()
	timeouts.Save = 2 * time.Second
	f := NewFinalizer(testWordPress(), timeouts, zap.NewNop())

	// The editor renders its Preview button before anything is saved.
	page := browsertest.NewPage()
	page.Add(`a:has-text("Preview")`)
	page.SetContent(`<a id="post-preview" href="https://example.com/?p=7&amp;preview=true" target="_blank">Preview</a>`)
	const saveDelay = 300 * time.Millisecond
	page.Add(DraftButton).OnClick = func(p *browsertest.Page) {
		time.AfterFunc(saveDelay, func() {
			p.SetContent(savedHTML)
			p.Add(SuccessNotice)
		})
	}

	start := time.Now()
	link, found, err := f.SaveDraftOrPublish(context.Background(), page, ModeDraft)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), saveDelay)
	assert.True(t, found)
	assert.Equal(t, "https://example.com/?p=42&preview=true", link)
}

func TestPublish(t *testing.T) {
	f := NewFinalizer(testWordPress(), testTimeouts(), zap.NewNop())
	page := browsertest.NewPage()
	page.Add(PublishButton).OnClick = func(p *browsertest.Page) {
		p.Add(PermalinkLink)
		p.SetContent(`<span id="sample-permalink"><a href="/cost-guide/">https://example.com/cost-guide/</a></span>`)
	}

	link, found, err := f.SaveDraftOrPublish(context.Background(), page, ModePublish)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://example.com/cost-guide/", link)
	assert.False(t, page.Touched(DraftButton))
}

func TestSave_NoURLIsNotAnError(t *testing.T) {
	f := NewFinalizer(testWordPress(), testTimeouts(), zap.NewNop())
	page := browsertest.NewPage()
	page.Add(DraftButton)
	page.SetContent("<html><body>Saving…</body></html>")

	link, found, err := f.SaveDraftOrPublish(context.Background(), page, ModeDraft)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, link)
}

func TestSave_MissingButton(t *testing.T) {
	f := NewFinalizer(testWordPress(), testTimeouts(), zap.NewNop())
	page := browsertest.NewPage()

	_, _, err := f.SaveDraftOrPublish(context.Background(), page, "")
	var saveErr *SaveError
	require.ErrorAs(t, err, &saveErr)
	assert.Equal(t, ModeDraft, saveErr.Mode)
}

func TestExtractURL(t *testing.T) {
	tests := []struct {
		name  string
		html  string
		mode  string
		want  string
		found bool
	}{
		{
			name:  "preview anchor",
			html:  `<a href="https://example.com/?p=7&preview=true" target="_blank">Preview post</a>`,
			mode:  ModeDraft,
			want:  "https://example.com/?p=7&preview=true",
			found: true,
		},
		{
			name:  "relative preview href",
			html:  `<a href="/?p=7&preview=true" target="_blank">Preview</a>`,
			mode:  ModeDraft,
			want:  "https://example.com/?p=7&preview=true",
			found: true,
		},
		{
			name:  "same registrable domain",
			html:  `<a href="https://www.example.com/?p=7&preview=true" target="_blank">Preview post</a>`,
			mode:  ModeDraft,
			want:  "https://www.example.com/?p=7&preview=true",
			found: true,
		},
		{
			name: "foreign host ignored",
			html: `<a href="https://other.org/?p=7&preview=true" target="_blank">Preview post</a>`,
			mode: ModeDraft,
		},
		{
			name:  "preview query fallback",
			html:  `<a href="https://example.com/?p=9&preview=true">Open</a>`,
			mode:  ModeDraft,
			want:  "https://example.com/?p=9&preview=true",
			found: true,
		},
		{
			name: "permalink ignored for drafts",
			html: `<span id="sample-permalink"><a href="https://example.com/page/">x</a></span>`,
			mode: ModeDraft,
		},
		{
			name:  "view post for publish",
			html:  `<a href="https://example.com/page/">View post</a>`,
			mode:  ModePublish,
			want:  "https://example.com/page/",
			found: true,
		},
		{
			name: "javascript href ignored",
			html: `<a href="javascript:void(0)" target="_blank">Preview</a>`,
			mode: ModeDraft,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractURL(tt.html, adminURL, tt.mode)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}
