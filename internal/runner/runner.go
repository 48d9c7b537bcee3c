// Package runner owns the lifecycle of one fill run: open a browser session,
// log in, reach the editor, fill it, save, persist the session state and
// close the browser, whatever happens along the way.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/wp-filler/internal/browser"
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

// cleanupTimeout bounds state persistence and history recording, which run
// even after the run context has ended.
const cleanupTimeout = 10 * time.Second

// Recorder stores finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, run store.Run) error
}

// Result is what a run reports back to its caller.
type Result struct {
	Success bool `json:"success"`
	// URL is the preview or permalink. It is nil when none could be read,
	// which does not make the run a failure.
	URL     *string `json:"url"`
	Message string  `json:"message"`
	RunID   string  `json:"run_id"`
	// Summary is the per-field record. It is empty when the run failed
	// before filling started.
	Summary    filler.FillSummary `json:"summary"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Link returns the URL, or "" when there is none.
func (r *Result) Link() string {
	if r.URL == nil {
		return ""
	}
	return *r.URL
}

// Components are the collaborators a Runner drives.
type Components struct {
	Driver browser.Driver
	Pacing humanoid.Pacing
	// States persists the browser state between runs; nil disables it.
	States *sessionstate.Store
	// Recorder keeps the run history; nil disables it.
	Recorder Recorder
}

// Runner executes fill runs. Runs are independent, each owning its own
// browser session, so a Runner may be used concurrently.
type Runner struct {
	cfg      *config.Config
	driver   browser.Driver
	pacing   humanoid.Pacing
	states   *sessionstate.Store
	recorder Recorder

	auth   *wpadmin.Authenticator
	nav    *wpadmin.Navigator
	filler *filler.Orchestrator
	final  *wpadmin.Finalizer
	logger *zap.Logger
}

// New wires a Runner from already built components.
func New(cfg *config.Config, m *mapping.Mapping, c Components, logger *zap.Logger) *Runner {
	pacing := c.Pacing
	if pacing == nil {
		pacing = humanoid.Nop{}
	}
	return &Runner{
		cfg:      cfg,
		driver:   c.Driver,
		pacing:   pacing,
		states:   c.States,
		recorder: c.Recorder,
		auth:     wpadmin.NewAuthenticator(cfg.WordPress, cfg.Timeouts, pacing, logger),
		nav:      wpadmin.NewNavigator(m, cfg.WordPress, cfg.Timeouts, logger),
		filler:   filler.New(m, pacing, filler.OptionsFromConfig(cfg), logger),
		final:    wpadmin.NewFinalizer(cfg.WordPress, cfg.Timeouts, logger),
		logger:   logger.Named("runner"),
	}
}

// NewFromConfig builds the browser driver, pacing and state store described
// by cfg. recorder may be nil.
func NewFromConfig(cfg *config.Config, m *mapping.Mapping, recorder Recorder, logger *zap.Logger) (*Runner, error) {
	driver, err := NewDriver(cfg, logger)
	if err != nil {
		return nil, err
	}
	c := Components{
		Driver:   driver,
		Pacing:   humanoid.New(cfg.Humanoid, viewportOf(cfg.Browser), logger),
		Recorder: recorder,
	}
	if cfg.Session.Enabled {
		states, err := sessionstate.NewStore(cfg.Session.StateFile, logger)
		if err != nil {
			return nil, err
		}
		c.States = states
	}
	return New(cfg, m, c, logger), nil
}

func viewportOf(b config.BrowserConfig) humanoid.Vector2D {
	w, h := b.Viewport["width"], b.Viewport["height"]
	if w <= 0 || h <= 0 {
		w, h = 1920, 1080
	}
	return humanoid.Vector2D{X: float64(w), Y: float64(h)}
}

// Message is the human readable outcome of a successful run.
func Message(subject, mode string) string {
	if mode == wpadmin.ModePublish {
		return subject + " created and published successfully"
	}
	return subject + " created and saved as draft successfully"
}

// Run performs one complete fill. The returned Result is never nil; err is
// set for run-fatal failures (browser launch, login, navigation, save).
// Field failures only show up in the summary.
func (r *Runner) Run(ctx context.Context, req payload.Request) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), StartedAt: time.Now()}
	logger := r.logger.With(zap.String("run_id", res.RunID), zap.String("headline", req.Headline()))

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeouts.Run)
	defer cancel()

	err := r.run(ctx, req, res, logger)
	res.FinishedAt = time.Now()
	if err != nil {
		res.Success = false
		res.Message = err.Error()
		logger.Error("Run failed", zap.Error(err), zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)))
	} else {
		logger.Info("Run finished",
			zap.String("url", res.Link()),
			zap.Int("fields_failed", res.Summary.Count(filler.StatusFailed)),
			zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)),
		)
	}
	r.record(ctx, res, req, err, logger)
	return res, err
}

func (r *Runner) run(ctx context.Context, req payload.Request, res *Result, logger *zap.Logger) (err error) {
	state := r.loadState(logger)

	sess, err := r.driver.Open(ctx, state)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		r.persistState(ctx, sess, logger)
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("Error while closing browser session", zap.Error(cerr))
		}
	}()

	page := sess.Page()
	defer func() {
		if err != nil {
			r.captureFailure(ctx, page, logger)
		}
	}()

	if werr := r.pacing.WarmUp(ctx, page); werr != nil {
		logger.Debug("Warm-up interrupted", zap.Error(werr))
	}
	if err := r.auth.EnsureLoggedIn(ctx, page); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := r.nav.GoToNewEntryEditor(ctx, page); err != nil {
		return fmt.Errorf("editor: %w", err)
	}

	res.Summary = r.filler.Fill(ctx, page, req)

	mode := r.cfg.WordPress.PublishMode
	url, found, err := r.final.SaveDraftOrPublish(ctx, page, mode)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	res.Success = true
	if found {
		res.URL = &url
	}
	res.Message = Message("Landing page", mode)
	return nil
}

func (r *Runner) loadState(logger *zap.Logger) *sessionstate.State {
	if r.states == nil {
		return nil
	}
	st, err := r.states.Load()
	if err != nil {
		logger.Warn("Ignoring unreadable browser state", zap.Error(err))
		return nil
	}
	return st
}

// persistState saves the session state on every exit path. It is best
// effort: failures are logged only.
func (r *Runner) persistState(ctx context.Context, sess browser.Session, logger *zap.Logger) {
	if r.states == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	st, err := sess.SaveState(saveCtx)
	if err != nil {
		logger.Warn("Could not capture browser state", zap.Error(err))
		return
	}
	if err := r.states.Save(st); err != nil {
		logger.Warn("Could not persist browser state", zap.Error(err))
		return
	}
	logger.Debug("Browser state saved", zap.String("path", r.states.Path()))
}

// captureFailure writes a full page screenshot next to the configured
// screenshot directory.
func (r *Runner) captureFailure(ctx context.Context, page browser.Page, logger *zap.Logger) {
	b := r.cfg.Browser
	if !b.ScreenshotOnError || b.ScreenshotDir == "" {
		return
	}
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	data, err := page.Screenshot(shotCtx)
	if err != nil {
		logger.Warn("Could not take failure screenshot", zap.Error(err))
		return
	}
	if err := os.MkdirAll(b.ScreenshotDir, 0o755); err != nil {
		logger.Warn("Could not create screenshot directory", zap.Error(err))
		return
	}
	path := filepath.Join(b.ScreenshotDir, fmt.Sprintf("error-%d.png", time.Now().UnixMilli()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warn("Could not write failure screenshot", zap.Error(err))
		return
	}
	logger.Info("Failure screenshot saved", zap.String("path", path))
}

func (r *Runner) record(ctx context.Context, res *Result, req payload.Request, runErr error, logger *zap.Logger) {
	if r.recorder == nil {
		return
	}
	run := store.Run{
		ID:         res.RunID,
		Headline:   req.Headline(),
		Success:    res.Success,
		URL:        res.Link(),
		Message:    res.Message,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	for _, f := range res.Summary.Fields {
		run.Fields = append(run.Fields, store.FieldOutcome{
			PayloadKey: f.PayloadKey,
			Panel:      f.Panel,
			Type:       string(f.Type),
			Status:     string(f.Status),
			Detail:     f.Detail,
			Error:      f.Error,
			Duration:   f.Duration,
		})
	}
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := r.recorder.RecordRun(recCtx, run); err != nil {
		logger.Warn("Could not record run history", zap.Error(err))
	}
}
