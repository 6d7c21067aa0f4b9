package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hostdesk/hostdesk-cli/internal/update"
)

// version is set at build time via -ldflags "-X ...cmd.version=1.2.3".
var version = "dev"

func newVersionCmd() *cobra.Command {
	var noCheck bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the hostdesk version",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if isJSON(cmd) {
				payload := map[string]any{"version": version}
				if !noCheck {
					if result := update.CheckForUpdate(cmd.Context(), version); result != nil && result.UpdateAvailable {
						payload["latest_version"] = result.LatestVersion
						payload["update_url"] = result.UpdateURL
					}
				}
				return printJSON(cmd, payload)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "hostdesk-cli version %s\n", version)
			if !noCheck {
				if result := update.CheckForUpdate(cmd.Context(), version); result != nil && result.UpdateAvailable {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "A newer version is available: %s (%s)\n", result.LatestVersion, result.UpdateURL)
				}
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&noCheck, "no-check", false, "Skip the release update check")

	return cmd
}
