package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/bulutsoft-dev/Transmind-PI/internal/health"
	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
)

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Run one health probe against the configured source",
		Long: `Opens the configured frame source once, runs a single health probe and prints the result as JSON. ` +
			`Exits non-zero when the source is unhealthy, so it can back a container or systemd health check.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *Options) {
			if err := runProbe(cmd.Context(), opts, cmd.OutOrStdout()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				os.Exit(1)
			}
		}),
	}
}

func runProbe(ctx context.Context, opts *Options, out io.Writer) error {
	logger := logging.GetLogger("probe")

	src, err := opts.NewSource()
	if err != nil {
		return err
	}
	if err := src.Init(ctx); err != nil {
		// Check reports the source as not initialized.
		logger.Warn("Source did not open", "source", src.Name(), "error", err)
	}

	res := health.NewProber(src, opts.HealthTimeout()).Check(ctx)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Healthy() {
		return fmt.Errorf("%s is unhealthy: %s", res.Source, res.Reason)
	}
	return nil
}
