package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wp-filler/internal/config"
	"github.com/xkilldash9x/wp-filler/internal/mapping"
	"github.com/xkilldash9x/wp-filler/internal/runner"
	"github.com/xkilldash9x/wp-filler/internal/store"
)

var errNoConfig = errors.New("configuration was not loaded")

// addRunFlags registers the flags shared by the commands that drive a browser.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("driver", "", "browser driver: chromedp or playwright")
	cmd.Flags().Bool("headless", true, "run the browser without a window")
	cmd.Flags().String("mapping", "", "mapping file (default is the built-in mapping)")
	cmd.Flags().String("publish-mode", "", "draft or publish")
}

// openRecorder connects the run history when it is enabled. The returned
// close function is never nil.
func openRecorder(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.Store, func(), error) {
	if !cfg.Store.Enabled {
		return nil, func() {}, nil
	}
	s, closeFn, err := store.Open(ctx, cfg.Store.URL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open run history: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	return s, closeFn, nil
}

// buildRunner assembles a runner from cfg.
func buildRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runner.Runner, func(), error) {
	if cfg == nil {
		return nil, nil, errNoConfig
	}
	if err := cfg.ValidateForRun(); err != nil {
		return nil, nil, err
	}
	m, err := mapping.Load(cfg.Mapping.Path)
	if err != nil {
		return nil, nil, err
	}
	s, closeFn, err := openRecorder(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	var recorder runner.Recorder
	if s != nil {
		recorder = s
	}
	r, err := runner.NewFromConfig(cfg, m, recorder, logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	logger.Info("Runner ready",
		zap.String("driver", cfg.Browser.Driver),
		zap.Bool("headless", cfg.Browser.Headless),
		zap.String("publish_mode", cfg.WordPress.PublishMode),
		zap.Int("mapped_fields", len(m.Fields)),
		zap.Bool("history", s != nil),
	)
	return r, closeFn, nil
}
