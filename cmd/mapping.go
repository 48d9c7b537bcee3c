package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/wp-filler/internal/config"
	"github.com/xkilldash9x/wp-filler/internal/mapping"
)

func newMappingCmd(getConfig func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Inspect the field mapping",
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a mapping file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if cfg := getConfig(); cfg != nil {
				path = cfg.Mapping.Path
			}
			m, err := mapping.Load(path)
			if err != nil {
				return err
			}
			source := path
			if source == "" {
				source = "built-in"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mapping %s is valid: %d panels, %d fields, %d payload keys\n",
				source, len(m.Panels), len(m.Fields), len(m.PayloadKeys()))

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PANEL\tKEY\tTYPE")
			for _, f := range m.FieldsForPanel("") {
				fmt.Fprintf(tw, "-\t%s\t%s\n", f.PayloadKey, f.Type)
			}
			for _, panel := range m.Panels {
				for _, f := range m.FieldsForPanel(panel.Key) {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", panel.Key, f.PayloadKey, f.Type)
				}
			}
			return tw.Flush()
		},
	}
	validateCmd.Flags().String("mapping", "", "mapping file (default is the built-in mapping)")
	cmd.AddCommand(validateCmd)
	return cmd
}
