package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wp-filler/internal/config"
	"github.com/xkilldash9x/wp-filler/internal/observability"
	"github.com/xkilldash9x/wp-filler/internal/service"
)

func newServeCmd(getConfig func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long: `Starts the HTTP server that accepts landing page payloads on
POST /create-landing and fills them into WordPress one run at a time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := getConfig()
			logger := observability.GetLogger()

			r, closeFn, err := buildRunner(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			if cfg.Server.WebhookSecret == "" {
				logger.Warn("No webhook secret configured, /create-landing accepts unauthenticated requests")
			}
			logger.Info("Starting wpfiller", zap.String("version", Version), zap.String("addr", cfg.Server.Addr))
			return service.New(cfg, r, Version, logger).ListenAndServe(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :3000)")
	addRunFlags(cmd)
	return cmd
}
