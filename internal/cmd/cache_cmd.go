package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hostdesk/hostdesk-cli/internal/cache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local response cache",
		Long:  "Department and operator listings are cached briefly so name resolution stays fast.",
	}

	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCachePathCmd())

	return cmd
}

func newCacheClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached API responses",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			cache.ClearAll(resolveCacheDir())
			printIfNotQuiet(cmd, "Cache cleared\n")
			return nil
		}),
	}

	return cmd
}

func newCachePathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			dir := resolveCacheDir()
			if isJSON(cmd) {
				return printJSON(cmd, map[string]string{"path": dir})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		}),
	}

	return cmd
}
