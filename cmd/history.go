package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/wp-filler/internal/config"
	"github.com/xkilldash9x/wp-filler/internal/observability"
	"github.com/xkilldash9x/wp-filler/internal/store"
)

func newHistoryCmd(getConfig func() *config.Config) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent fill runs from the run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			if cfg == nil {
				return errNoConfig
			}
			if !cfg.Store.Enabled {
				return errors.New("run history is disabled (set store.enabled and store.url)")
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive (got %d)", limit)
			}
			s, closeFn, err := openRecorder(cmd.Context(), cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer closeFn()

			runs, err := s.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printRuns(cmd, runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func printRuns(cmd *cobra.Command, runs []store.Run) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tSTATUS\tHEADLINE\tURL")
	for _, r := range runs {
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		url := r.URL
		if url == "" {
			url = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
			status, r.Headline, url,
		)
	}
	return tw.Flush()
}
