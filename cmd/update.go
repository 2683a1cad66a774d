package cmd

import (
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/bulutsoft-dev/Transmind-PI/internal/updater"
)

// CreateUpdateCmd creates the update command.
func CreateUpdateCmd() *cobra.Command {
	var checkOnly bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update transmind to the latest release",
		Long:  `Replaces this binary with the latest GitHub release. The previous binary is kept for rollback through the API.`,
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *Options) {
			svc, err := updater.NewService(updater.Options{
				Repository: opts.UpdateRepository,
				Prerelease: opts.UpdatePrerelease,
				// The command exits on its own; nothing to restart.
				Restart: func() {},
			})
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				os.Exit(1)
			}
			if !svc.IsEnabled() {
				fmt.Fprintln(cmd.ErrOrStderr(), "update disabled:", svc.DisabledReason())
				os.Exit(1)
			}

			info, err := svc.CheckForUpdate(cmd.Context())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				os.Exit(1)
			}
			out := cmd.OutOrStdout()
			if !info.UpdateAvailable {
				fmt.Fprintf(out, "transmind %s is up to date (latest %s)\n", info.CurrentVersion, info.LatestVersion)
				return
			}
			fmt.Fprintf(out, "update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
			if checkOnly {
				return
			}

			if err := svc.ApplyUpdate(cmd.Context()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				os.Exit(1)
			}
			fmt.Fprintf(out, "updated to %s, restart the service to run it\n", info.LatestVersion)
		}),
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only check for an update")
	return cmd
}
