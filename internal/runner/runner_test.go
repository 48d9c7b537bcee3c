package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/wp-filler/internal/browser/browsertest"
	"github.com/xkilldash9x/wp-filler/internal/browser/cdp"
	"github.com/xkilldash9x/wp-filler/internal/browser/pw"
	"github.com/xkilldash9x/wp-filler/internal/browser/sessionstate"
	"github.com/xkilldash9x/wp-filler/internal/config"
	"github.com/xkilldash9x/wp-filler/internal/filler"
	"github.com/xkilldash9x/wp-filler/internal/humanoid"
	"github.com/xkilldash9x/wp-filler/internal/mapping"
	"github.com/xkilldash9x/wp-filler/internal/payload"
	"github.com/xkilldash9x/wp-filler/internal/store"
	"github.com/xkilldash9x/wp-filler/internal/wpadmin"
	"go.uber.org/zap"
)

const previewURL = "https://example.com/?p=42&preview=true"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.WordPress.AdminURL = "https://example.com/wp-admin"
	cfg.WordPress.Username = "editor"
	cfg.WordPress.Password = "s3cret"
	cfg.Timeouts = config.TimeoutsConfig{
		Navigation:  time.Second,
		Selector:    100 * time.Millisecond,
		EditorReady: 200 * time.Millisecond,
		Save:        200 * time.Millisecond,
		Run:         10 * time.Second,
	}
	cfg.Browser.ScreenshotOnError = true
	cfg.Browser.ScreenshotDir = filepath.Join(t.TempDir(), "shots")
	cfg.Session.StateFile = filepath.Join(t.TempDir(), "state", "browser-state.json")
	return cfg
}

// fakeSite is a logged-in admin with a landing page editor holding one
// services row.
func fakeSite(t *testing.T, m *mapping.Mapping) *browsertest.Page {
	t.Helper()
	page := browsertest.NewPage()
	page.Add(wpadmin.DashboardMarker)
	page.Add("#menu-posts-landing > a")
	page.Add("a.page-title-action")
	page.Add(wpadmin.TitleInput)
	for _, p := range m.Panels {
		page.Add(p.Selector)
	}
	for _, f := range m.Fields {
		if f.Type == mapping.TypeText {
			page.Add(f.Selector)
		}
	}
	page.SetCount(m.Grid.RowSelector, 1)
	page.Add("#acf-svc-1")
	page.EvalFunc = func(_ *browsertest.Page, script string) (any, error) {
		if strings.HasPrefix(script, "/* grid-selects */") {
			return []map[string]string{{"id": "acf-svc-1", "name": "acf[row-0][field_62f544c0d43e6]"}}, nil
		}
		return nil, nil
	}
	page.Add(wpadmin.DraftButton).OnClick = func(p *browsertest.Page) {
		p.Add(wpadmin.SuccessNotice)
		p.SetContent(`<a href="` + previewURL + `" target="_blank">Preview post</a>`)
	}
	return page
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []store.Run
	err  error
}

func (f *fakeRecorder) RecordRun(_ context.Context, run store.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return f.err
}

type harness struct {
	runner   *Runner
	driver   *browsertest.Driver
	sessions []*browsertest.Session
	states   *sessionstate.Store
	recorder *fakeRecorder
	cfg      *config.Config
}

func newHarness(t *testing.T, build func(m *mapping.Mapping) *browsertest.Page) *harness {
	t.Helper()
	m, err := mapping.Default()
	require.NoError(t, err)
	cfg := testConfig(t)
	states, err := sessionstate.NewStore(cfg.Session.StateFile, zap.NewNop())
	require.NoError(t, err)

	h := &harness{states: states, recorder: &fakeRecorder{}, cfg: cfg}
	h.driver = &browsertest.Driver{NewSession: func(*sessionstate.State) (*browsertest.Session, error) {
		s := &browsertest.Session{
			FakePage: build(m),
			State:    &sessionstate.State{Cookies: []sessionstate.Cookie{{Name: "wordpress_logged_in", Value: "v", Domain: "example.com", Path: "/", Expires: -1}}},
		}
		h.sessions = append(h.sessions, s)
		return s, nil
	}}
	h.runner = New(cfg, m, Components{
		Driver:   h.driver,
		Pacing:   humanoid.Nop{},
		States:   states,
		Recorder: h.recorder,
	}, zap.NewNop())
	return h
}

func costGuide() payload.Request {
	return payload.New(map[string]string{
		"header_headline": "Cost Guide",
		"hero_text_left":  "Dementia",
		"svc1_name":       "Dementia Care",
	})
}

func TestRun_CostGuide(t *testing.T) {
	h := newHarness(t, func(m *mapping.Mapping) *browsertest.Page { return fakeSite(t, m) })

	res, err := h.runner.Run(context.Background(), costGuide())
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.NotNil(t, res.URL)
	assert.Equal(t, previewURL, *res.URL)
	assert.Equal(t, "Landing page created and saved as draft successfully", res.Message)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"header_headline", "hero_text_left", "svc1_name"}, res.Summary.Attempted())
	assert.Zero(t, res.Summary.Count(filler.StatusFailed))

	require.Len(t, h.sessions, 1)
	sess := h.sessions[0]
	assert.True(t, sess.Closed())
	assert.Equal(t, 1, sess.Saves())

	saved, err := h.states.Load()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "wordpress_logged_in", saved.Cookies[0].Name)

	require.Len(t, h.recorder.runs, 1)
	rec := h.recorder.runs[0]
	assert.Equal(t, res.RunID, rec.ID)
	assert.Equal(t, "Cost Guide", rec.Headline)
	assert.True(t, rec.Success)
	assert.Len(t, rec.Fields, len(res.Summary.Fields))

	_, err = os.Stat(h.cfg.Browser.ScreenshotDir)
	assert.True(t, os.IsNotExist(err), "no screenshot on success")
}

func TestRun_SecondRunReusesSavedState(t *testing.T) {
	h := newHarness(t, func(m *mapping.Mapping) *browsertest.Page { return fakeSite(t, m) })

	_, err := h.runner.Run(context.Background(), costGuide())
	require.NoError(t, err)
	_, err = h.runner.Run(context.Background(), costGuide())
	require.NoError(t, err)

	opened := h.driver.OpenedWith()
	require.Len(t, opened, 2)
	assert.Nil(t, opened[0], "first run starts without saved state")
	require.NotNil(t, opened[1])
	assert.Len(t, opened[1].Cookies, 1)
}

func TestRun_FreshSessionsAttemptSameFields(t *testing.T) {
	h := newHarness(t, func(m *mapping.Mapping) *browsertest.Page { return fakeSite(t, m) })
	h.runner.states = nil

	first, err := h.runner.Run(context.Background(), costGuide())
	require.NoError(t, err)
	second, err := h.runner.Run(context.Background(), costGuide())
	require.NoError(t, err)

	assert.Equal(t, first.Summary.Attempted(), second.Summary.Attempted())
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_AuthFailureStillCleansUp(t *testing.T) {
	h := newHarness(t, func(m *mapping.Mapping) *browsertest.Page {
		page := fakeSite(t, m)
		page.Remove(wpadmin.DashboardMarker)
		return page
	})

	res, err := h.runner.Run(context.Background(), costGuide())
	require.Error(t, err)
	var authErr *wpadmin.AuthError
	assert.ErrorAs(t, err, &authErr)

	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Empty(t, res.Summary.Fields)

	sess := h.sessions[0]
	assert.True(t, sess.Closed())
	assert.Equal(t, 1, sess.Saves(), "state is persisted on failure too")
	assert.NotEmpty(t, sess.FakePage.CallsFor("screenshot"))

	shots, err := os.ReadDir(h.cfg.Browser.ScreenshotDir)
	require.NoError(t, err)
	require.Len(t, shots, 1)
	assert.True(t, strings.HasPrefix(shots[0].Name(), "error-"))
	assert.True(t, strings.HasSuffix(shots[0].Name(), ".png"))

	require.Len(t, h.recorder.runs, 1)
	assert.NotEmpty(t, h.recorder.runs[0].Error)
}

func TestRun_SaveFailureIsFatal(t *testing.T) {
	h := newHarness(t, func(m *mapping.Mapping) *browsertest.Page {
		page := fakeSite(t, m)
		page.Remove(wpadmin.DraftButton)
		return page
	})

	res, err := h.runner.Run(context.Background(), costGuide())
	var saveErr *wpadmin.SaveError
	require.ErrorAs(t, err, &saveErr)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Summary.Attempted(), "fill ran before the save failed")
	assert.True(t, h.sessions[0].Closed())
}

func TestRun_SucceedsWithoutURLAndWithFailedFields(t *testing.T) {
	h := newHarness(t, func(m *mapping.Mapping) *browsertest.Page {
		page := fakeSite(t, m)
		page.Remove("#acf-field_62f5463fa1cf1")
		page.Add(wpadmin.DraftButton)
		return page
	})

	res, err := h.runner.Run(context.Background(), costGuide())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Nil(t, res.URL)
	assert.Empty(t, res.Link())

	// Callers see an explicit null rather than a missing key.
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"url":null`)
	assert.Equal(t, 1, res.Summary.Count(filler.StatusFailed))
}

func TestRun_LaunchFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.driver.NewSession = func(*sessionstate.State) (*browsertest.Session, error) {
		return nil, errors.New("chrome not found")
	}

	res, err := h.runner.Run(context.Background(), costGuide())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to launch browser")
	assert.False(t, res.Success)
	assert.Equal(t, err.Error(), res.Message)
}

func TestRun_RecorderErrorIsNotFatal(t *testing.T) {
	h := newHarness(t, func(m *mapping.Mapping) *browsertest.Page { return fakeSite(t, m) })
	h.recorder.err = errors.New("db down")

	res, err := h.runner.Run(context.Background(), costGuide())
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Landing page created and saved as draft successfully", Message("Landing page", wpadmin.ModeDraft))
	assert.Equal(t, "Test page created and saved as draft successfully", Message("Test page", wpadmin.ModeDraft))
	assert.Equal(t, "Landing page created and published successfully", Message("Landing page", wpadmin.ModePublish))
}

func TestNewDriver(t *testing.T) {
	cfg := config.NewDefaultConfig()

	d, err := NewDriver(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &cdp.Driver{}, d)

	cfg.Browser.Driver = "playwright"
	d, err = NewDriver(cfg, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &pw.Driver{}, d)
	assert.True(t, d.(*pw.Driver).Install)

	cfg.Browser.Driver = "firefox"
	_, err = NewDriver(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestViewportOf(t *testing.T) {
	assert.Equal(t, humanoid.Vector2D{X: 1280, Y: 800}, viewportOf(config.BrowserConfig{Viewport: map[string]int{"width": 1280, "height": 800}}))
	assert.Equal(t, humanoid.Vector2D{X: 1920, Y: 1080}, viewportOf(config.BrowserConfig{}))
}
