// Package cmd holds the wpfiller command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wp-filler/internal/config"
	"github.com/xkilldash9x/wp-filler/internal/observability"
)

// flagKeys binds command flags to configuration keys. A flag only overrides
// the file and environment when it was set explicitly.
var flagKeys = map[string]string{
	"addr":         "server.addr",
	"driver":       "browser.driver",
	"headless":     "browser.headless",
	"mapping":      "mapping.path",
	"publish-mode": "wordpress.publish_mode",
}

// NewRootCommand builds a fresh command tree. Every call returns an
// independent tree with its own configuration state.
func NewRootCommand() *cobra.Command {
	var (
		cfgFile string
		cfg     *config.Config
	)

	rootCmd := &cobra.Command{
		Use:           "wpfiller",
		Short:         "wpfiller fills WordPress landing pages from webhook payloads.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			c, err := config.NewConfigFromViper(v)
			if err != nil {
				return err
			}
			observability.InitializeLogger(c.Logger)
			observability.GetLogger().Debug("Configuration loaded",
				zap.String("version", Version),
				zap.String("config_file", v.ConfigFileUsed()),
			)
			cfg = c
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "wpfiller version %s\n" .Version}}`)

	getConfig := func() *config.Config { return cfg }
	rootCmd.AddCommand(
		newServeCmd(getConfig),
		newFillCmd(getConfig),
		newMappingCmd(getConfig),
		newHistoryCmd(getConfig),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command line against os.Args.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// initializeConfig reads the config file, the environment and the flags of
// cmd into v.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("WPFILLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Only the implicit ./config.yaml is optional.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}
