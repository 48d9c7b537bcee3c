package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StepKind says what a chain step does once reached.
type StepKind int

const (
	// StepClick clicks the step's selector.
	StepClick StepKind = iota
	// StepNavigate loads the step's URL directly.
	StepNavigate
)

// Step is one entry of a fallback chain.
type Step struct {
	Kind   StepKind
	Target string
	// Label names the step in logs ("primary", "alternative[1]", "text", "direct").
	Label string
}

// Chain is an ordered list of fallbacks. The first step that succeeds wins.
type Chain []Step

// ClickChain builds a chain that clicks each selector in turn, skipping empty ones.
func ClickChain(primary string, alternatives []string, text string) Chain {
	var c Chain
	if primary != "" {
		c = append(c, Step{Kind: StepClick, Target: primary, Label: "primary"})
	}
	for i, alt := range alternatives {
		if alt == "" {
			continue
		}
		c = append(c, Step{Kind: StepClick, Target: alt, Label: fmt.Sprintf("alternative[%d]", i)})
	}
	if text != "" {
		c = append(c, Step{Kind: StepClick, Target: text, Label: "text"})
	}
	return c
}

// WithDirect appends a direct navigation as the last resort.
func (c Chain) WithDirect(url string) Chain {
	return append(append(Chain(nil), c...), Step{Kind: StepNavigate, Target: url, Label: "direct"})
}

// ResolveAndAct walks the chain and performs the first step that works. Each
// click step waits up to stepTimeout for its element to become visible and
// then clicks it. It returns the step that succeeded, or an error
// wrapping ErrChainExhausted and the last failure.
func ResolveAndAct(ctx context.Context, page Page, chain Chain, stepTimeout time.Duration, logger *zap.Logger) (Step, error) {
	if len(chain) == 0 {
		return Step{}, fmt.Errorf("%w: empty chain", ErrChainExhausted)
	}
	var lastErr error
	for _, step := range chain {
		if err := ctx.Err(); err != nil {
			return Step{}, err
		}
		err := actStep(ctx, page, step, stepTimeout)
		if err == nil {
			logger.Debug("Fallback step succeeded", zap.String("step", step.Label), zap.String("target", step.Target))
			return step, nil
		}
		logger.Debug("Fallback step failed", zap.String("step", step.Label), zap.String("target", step.Target), zap.Error(err))
		lastErr = err
	}
	return Step{}, errors.Join(ErrChainExhausted, lastErr)
}

func actStep(ctx context.Context, page Page, step Step, stepTimeout time.Duration) error {
	stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	switch step.Kind {
	case StepNavigate:
		return page.Navigate(stepCtx, step.Target)
	default:
		if err := page.WaitVisible(stepCtx, step.Target); err != nil {
			return err
		}
		return page.Click(stepCtx, step.Target)
	}
}
