// Package humanoid supplies the human-like pacing used while driving the
// WordPress admin: randomized pauses between steps, per-keystroke typing
// delays, and a short burst of pointer movement after a page opens.
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/xkilldash9x/wp-filler/internal/browser"
	"github.com/xkilldash9x/wp-filler/internal/config"
	"go.uber.org/zap"
)

// Pacing is injected wherever the automation waits on purpose.
type Pacing interface {
	// Pause sleeps for a randomized step delay, returning early with ctx.Err().
	Pause(ctx context.Context) error
	// Keystroke returns the delay to wait after typing one key.
	Keystroke() time.Duration
	// WarmUp moves the pointer around the page a few times.
	WarmUp(ctx context.Context, page browser.Page) error
}

// New returns a Random pacer when cfg.Enabled, otherwise Nop.
func New(cfg config.HumanoidConfig, viewport Vector2D, logger *zap.Logger) Pacing {
	if !cfg.Enabled {
		return Nop{}
	}
	return NewRandom(cfg, viewport, time.Now().UnixNano(), logger)
}

// Nop never waits and never moves the pointer.
type Nop struct{}

func (Nop) Pause(ctx context.Context) error                  { return ctx.Err() }
func (Nop) Keystroke() time.Duration                         { return 0 }
func (Nop) WarmUp(ctx context.Context, _ browser.Page) error { return ctx.Err() }

// Random draws every delay uniformly from the configured ranges.
type Random struct {
	cfg      config.HumanoidConfig
	viewport Vector2D
	logger   *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
	pos Vector2D

	// sleep is replaceable so tests run without wall-clock waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRandom builds a seeded Random pacer.
func NewRandom(cfg config.HumanoidConfig, viewport Vector2D, seed int64, logger *zap.Logger) *Random {
	return &Random{
		cfg:      cfg,
		viewport: viewport,
		logger:   logger.Named("humanoid"),
		rng:      rand.New(rand.NewSource(seed)),
		pos:      viewport.Mul(0.5),
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Random) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + time.Duration(r.rng.Int63n(int64(hi-lo)+1))
}

func (r *Random) float() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *Random) Pause(ctx context.Context) error {
	return r.sleep(ctx, r.between(r.cfg.PauseMin, r.cfg.PauseMax))
}

func (r *Random) Keystroke() time.Duration {
	return r.between(r.cfg.KeystrokeMin, r.cfg.KeystrokeMax)
}

// WarmUp performs cfg.WarmupMoves curved pointer moves to random points.
// Failures are logged and do not stop the run.
func (r *Random) WarmUp(ctx context.Context, page browser.Page) error {
	const steps = 12
	for i := 0; i < r.cfg.WarmupMoves; i++ {
		target := Vector2D{X: r.float() * r.viewport.X, Y: r.float() * r.viewport.Y}
		bend1, bend2 := r.float()*0.4-0.2, r.float()*0.4-0.2

		r.mu.Lock()
		start := r.pos
		r.mu.Unlock()

		for _, p := range curvedPath(start, target, bend1, bend2, steps) {
			p = p.Clamp(r.viewport.X, r.viewport.Y)
			if err := page.MouseMove(ctx, p.X, p.Y); err != nil {
				r.logger.Debug("Warm-up pointer move failed", zap.Error(err))
				return nil
			}
			if err := r.sleep(ctx, r.between(8*time.Millisecond, 24*time.Millisecond)); err != nil {
				return err
			}
		}

		r.mu.Lock()
		r.pos = target
		r.mu.Unlock()

		if err := r.sleep(ctx, r.between(100*time.Millisecond, 300*time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}
