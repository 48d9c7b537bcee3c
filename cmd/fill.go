package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/wp-filler/internal/config"
	"github.com/xkilldash9x/wp-filler/internal/observability"
	"github.com/xkilldash9x/wp-filler/internal/payload"
)

// timeNow is replaced in tests.
var timeNow = time.Now

func newFillCmd(getConfig func() *config.Config) *cobra.Command {
	var (
		payloadPath string
		sample      bool
	)
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Fill one landing page from a payload file and exit",
		Example: `  wpfiller fill --payload landing.json
  cat landing.json | wpfiller fill --payload -
  wpfiller fill --sample --headless=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readPayload(cmd.InOrStdin(), payloadPath, sample)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			r, closeFn, err := buildRunner(ctx, getConfig(), observability.GetLogger())
			if err != nil {
				return err
			}
			defer closeFn()

			res, runErr := r.Run(ctx, req)
			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&payloadPath, "payload", "p", "", `payload JSON file, "-" reads stdin`)
	cmd.Flags().BoolVar(&sample, "sample", false, "use the built-in sample payload")
	addRunFlags(cmd)
	return cmd
}

// readPayload loads and validates the payload named by path.
func readPayload(stdin io.Reader, path string, sample bool) (payload.Request, error) {
	switch {
	case sample && path != "":
		return payload.Request{}, errors.New("--payload and --sample are mutually exclusive")
	case sample:
		return payload.Sample(timeNow()), nil
	case path == "":
		return payload.Request{}, errors.New("--payload is required (or --sample)")
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return payload.Request{}, fmt.Errorf("failed to read payload: %w", err)
	}
	req, err := payload.Decode(data)
	if err != nil {
		return payload.Request{}, err
	}
	return req, nil
}
